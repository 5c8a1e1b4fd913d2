package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spacenote/spacenote/internal/ui"
)

var spaceCmd = &cobra.Command{
	Use:   "space",
	Short: "Inspect spaces",
}

func init() {
	spaceCmd.AddCommand(spaceListCmd)
}

var spaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List spaces visible to the account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
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
		spaces, err := a.ListSpaces(ctx, token)
		if err != nil {
			return err
		}
		if len(spaces) == 0 {
			fmt.Println(ui.RenderMuted("no spaces"))
			return nil
		}
		for _, sp := range spaces {
			line := fmt.Sprintf("%s  %s", ui.RenderAccent(sp.Slug), ui.RenderTitle(sp.Title))
			if len(sp.Members) > 0 {
				line += "  " + ui.RenderMuted("members: "+strings.Join(sp.Members, ", "))
			}
			fmt.Println(line)
		}
		return nil
	},
}
