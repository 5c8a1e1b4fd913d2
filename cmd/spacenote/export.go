package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacenote/spacenote/internal/export"
)

var (
	exportFormat string
	exportOutput string
	exportData   bool
)

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json or yaml")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
	exportCmd.Flags().BoolVar(&exportData, "data", true, "Include notes, comments and attachment metadata")
}

var exportCmd = &cobra.Command{
	Use:   "export <space-slug>",
	Short: "Export a space to JSON or YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Stop(context.Background()) }()

		token, err := login(ctx, a)
		if err != nil {
			return err
		}
		rec, err := a.ExportSpace(ctx, token, args[0], exportData)
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			out = f
		}
		return export.Encode(out, rec, format)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a space from an export file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read export file: %w", err)
		}
		rec, err := export.Decode(data)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Stop(context.Background()) }()

		token, err := login(ctx, a)
		if err != nil {
			return err
		}
		if err := a.ImportSpace(ctx, token, rec); err != nil {
			return err
		}
		fmt.Printf("Imported space %q (%d notes, %d comments)\n",
			rec.Space.Slug, len(rec.Notes), len(rec.Comments))
		return nil
	},
}
