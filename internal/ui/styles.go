// Package ui provides terminal styling for spacenote CLI output.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	// Adaptive colors keep output readable on light and dark terminals.
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
)

var (
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	TitleStyle  = lipgloss.NewStyle().Bold(true)
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// RenderAccent renders text with accent (blue) styling.
func RenderAccent(s string) string {
	return AccentStyle.Render(s)
}

// RenderMuted renders text with muted (gray) styling.
func RenderMuted(s string) string {
	return MutedStyle.Render(s)
}

// RenderTitle renders text in bold.
func RenderTitle(s string) string {
	return TitleStyle.Render(s)
}

// RenderHeader renders a section header in bold accent color.
func RenderHeader(s string) string {
	return HeaderStyle.Render(s)
}
