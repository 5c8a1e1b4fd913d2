package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spacenote/spacenote/internal/types"
	"github.com/spacenote/spacenote/internal/ui"
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Inspect notes",
}

var (
	noteFilter string
	noteQuery  string
	noteLimit  int
	noteOffset int
)

func init() {
	noteListCmd.Flags().StringVar(&noteFilter, "filter", "", "Saved filter name")
	noteListCmd.Flags().StringVar(&noteQuery, "query", "", "Ad-hoc filter expression, e.g. status:eq:open")
	noteListCmd.Flags().IntVar(&noteLimit, "limit", 0, "Page size (0 uses the default)")
	noteListCmd.Flags().IntVar(&noteOffset, "offset", 0, "Page offset")

	noteCmd.AddCommand(noteListCmd)
	noteCmd.AddCommand(noteShowCmd)
}

var noteListCmd = &cobra.Command{
	Use:   "list <space-slug>",
	Short: "List notes in a space",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		page, err := a.ListNotes(ctx, token, args[0], noteFilter, noteQuery, noteLimit, noteOffset)
		if err != nil {
			return err
		}
		if page.Total == 0 {
			fmt.Println(ui.RenderMuted("no notes"))
			return nil
		}
		for _, n := range page.Items {
			title := n.Title
			if title == "" {
				title = ui.RenderMuted("(untitled)")
			}
			fmt.Printf("%s  %s  %s\n",
				ui.RenderAccent(fmt.Sprintf("#%d", n.Number)),
				ui.RenderTitle(title),
				ui.RenderMuted(fmt.Sprintf("%s, %s", n.Author, n.ActivityAt.Local().Format("2006-01-02 15:04"))))
		}
		shown := int64(page.Offset + len(page.Items))
		if shown < page.Total {
			fmt.Println(ui.RenderMuted(fmt.Sprintf("showing %d of %d", shown, page.Total)))
		}
		return nil
	},
}

var noteShowCmd = &cobra.Command{
	Use:   "show <space-slug> <number>",
	Short: "Show one note with its fields",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid note number %q", args[1])
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
		sp, err := a.GetSpace(ctx, token, args[0])
		if err != nil {
			return err
		}
		n, err := a.GetNote(ctx, token, args[0], number)
		if err != nil {
			return err
		}

		fmt.Printf("%s %s\n", ui.RenderAccent(fmt.Sprintf("#%d", n.Number)), ui.RenderTitle(n.Title))
		fmt.Println(ui.RenderMuted(fmt.Sprintf("by %s on %s", n.Author, n.CreatedAt.Local().Format("2006-01-02 15:04"))))
		if n.EditedAt != nil {
			fmt.Println(ui.RenderMuted("edited " + n.EditedAt.Local().Format("2006-01-02 15:04")))
		}
		fmt.Println()

		names := make([]string, 0, len(n.Fields))
		for name := range n.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v := n.Fields[name]
			fmt.Println(ui.RenderHeader(name))
			if isMarkdown(sp.Field(name)) {
				fmt.Print(ui.RenderMarkdown(v.Canonical()))
			} else {
				fmt.Println(v.Canonical())
			}
			fmt.Println()
		}
		return nil
	},
}

func isMarkdown(def *types.FieldDef) bool {
	return def != nil && def.Type == types.FieldString &&
		def.String != nil && def.String.Kind == types.StringMarkdown
}
