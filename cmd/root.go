package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ostigter/xantippe/internal/xlog"
)

var (
	// Version, Commit, and Date are set via -ldflags at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	dataDir  string
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:     "xantippe",
	Short:   "Xantippe: an embedded document database",
	Version: fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := xlog.InfoLevel
		switch logLevel {
		case "debug":
			level = xlog.DebugLevel
		case "warn":
			level = xlog.WarnLevel
		case "error":
			level = xlog.ErrorLevel
		}
		xlog.Init(xlog.Config{Level: level, JSONOutput: logJSON})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data", "d", "./data", "Data directory for the database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shellCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
