// Command spacenote runs the note engine: a daemon mode plus admin tooling
// for users, spaces, notes and export/import.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spacenote/spacenote/internal/app"
	"github.com/spacenote/spacenote/internal/config"
	"github.com/spacenote/spacenote/internal/telemetry"
)

// Version and Build are stamped by the release pipeline via -ldflags.
var (
	Version = "dev"
	Build   = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "spacenote",
	Short: "spacenote - schema-driven multi-tenant note engine",
	Long:  `Spaces with typed custom fields, saved filters, comments, attachments and telegram mirroring.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("spacenote version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&usernameFlag, "username", "admin", "Account to run the command as")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(spaceCmd)
	rootCmd.AddCommand(noteCmd)
	rootCmd.AddCommand(versionCmd)
}

var (
	usernameFlag string
	debugFlag    bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("spacenote version %s (%s)\n", Version, Build)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Init(ctx, "spacenote", Version); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
	}
	defer telemetry.Shutdown(context.Background())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openApp loads configuration, builds the logger and starts the engine.
// Callers must Stop the returned app.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := slog.LevelInfo
	if debugFlag || cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	return a, nil
}
