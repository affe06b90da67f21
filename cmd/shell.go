package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ostigter/xantippe/internal/catalog"
	"github.com/ostigter/xantippe/internal/database"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell over the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		db := database.New("default", dataDir)
		if err := db.Start(); err != nil {
			return fmt.Errorf("start database at %s: %w", dataDir, err)
		}
		defer db.Shutdown()

		conn := database.NewConnection()
		return runShell(db, conn, os.Stdin, os.Stdout)
	},
}

func runShell(db *database.Database, conn database.Connection, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, "xantippe shell. Commands: ls, cat, put, rm, mkcol, exit")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "exit", "quit":
			return nil
		case "ls":
			shellLs(db, out, fields)
		case "cat":
			shellCat(db, conn, out, fields)
		case "put":
			shellPut(db, conn, out, fields)
		case "rm":
			shellRm(db, conn, out, fields)
		case "mkcol":
			shellMkcol(db, conn, out, fields)
		default:
			fmt.Fprintf(out, "unknown command %q\n", fields[0])
		}
	}
}

func shellLs(db *database.Database, out io.Writer, fields []string) {
	if len(fields) != 2 {
		fmt.Fprintln(out, "usage: ls <uri>")
		return
	}
	col, err := db.GetCollection(fields[1])
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	fmt.Fprintf(out, "collection %q: %d child collections, %d documents\n", fields[1], len(col.ChildCollectionIDs), len(col.ChildDocumentIDs))
}

func shellCat(db *database.Database, conn database.Connection, out io.Writer, fields []string) {
	if len(fields) != 2 {
		fmt.Fprintln(out, "usage: cat <uri>")
		return
	}
	rc, err := db.GetContent(conn, fields[1])
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	defer rc.Close()
	io.Copy(out, rc)
	fmt.Fprintln(out)
}

func shellPut(db *database.Database, conn database.Connection, out io.Writer, fields []string) {
	if len(fields) != 3 {
		fmt.Fprintln(out, "usage: put <uri> <local-file>")
		return
	}
	parent, name, err := catalog.ParentURI(fields[1])
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	data, err := os.ReadFile(fields[2])
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	if _, err := db.PutDocument(conn, parent, name, catalog.MediaXML, data, nil); err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	fmt.Fprintf(out, "stored %d bytes at %s\n", len(data), fields[1])
}

func shellRm(db *database.Database, conn database.Connection, out io.Writer, fields []string) {
	if len(fields) != 2 {
		fmt.Fprintln(out, "usage: rm <uri>")
		return
	}
	if err := db.DeleteDocument(conn, fields[1]); err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	fmt.Fprintf(out, "removed %s\n", fields[1])
}

func shellMkcol(db *database.Database, conn database.Connection, out io.Writer, fields []string) {
	if len(fields) != 2 {
		fmt.Fprintln(out, "usage: mkcol <uri>")
		return
	}
	parent, name, err := catalog.ParentURI(fields[1])
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	if _, err := db.CreateCollection(conn, parent, name); err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	fmt.Fprintf(out, "created collection %s\n", fields[1])
}
