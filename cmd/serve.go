package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ostigter/xantippe/internal/database"
	"github.com/ostigter/xantippe/internal/xlog"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the database and block until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := xlog.WithComponent("cmd")

		db := database.New("default", dataDir)
		if err := db.Start(); err != nil {
			return fmt.Errorf("start database at %s: %w", dataDir, err)
		}
		fmt.Printf("Xantippe serving %s (Ctrl-C to stop)\n", dataDir)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		fmt.Println("\nShutting down...")
		if err := db.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
			return err
		}
		return nil
	},
}
