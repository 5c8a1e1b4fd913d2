package ui

import (
	"os"

	glamour "charm.land/glamour/v2"
	"golang.org/x/term"
)

// RenderMarkdown renders markdown text for terminal display. Returns the
// original text when stdout is not a terminal or rendering fails. Word wraps
// at terminal width, capped at 100 columns.
func RenderMarkdown(markdown string) string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return markdown
	}

	const maxReadableWidth = 100
	wrapWidth := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		wrapWidth = w
	}
	if wrapWidth > maxReadableWidth {
		wrapWidth = maxReadableWidth
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}
