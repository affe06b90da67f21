package main

import "github.com/ostigter/xantippe/cmd"

func main() {
	cmd.Execute()
}
