package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine until interrupted",
	Long:  `Starts the engine: loads caches and runs the telegram worker when a bot token is configured. Stops cleanly on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}

		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return a.Stop(stopCtx)
	},
}
