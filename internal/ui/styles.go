// Package ui holds the lipgloss styles shared by CLI output.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Theme defines the color palette for CLI output.
type Theme struct {
	Primary lipgloss.Color // main accent color
	Success lipgloss.Color
	Error   lipgloss.Color
	Warning lipgloss.Color
	Muted   lipgloss.Color // dimmed/secondary text
	Text    lipgloss.Color // primary text
}

// DefaultTheme returns the default color theme (gruvbox).
func DefaultTheme() *Theme {
	return &Theme{
		Primary: lipgloss.Color("#b8bb26"),
		Success: lipgloss.Color("#b8bb26"),
		Error:   lipgloss.Color("#fb4934"),
		Warning: lipgloss.Color("#fabd2f"),
		Muted:   lipgloss.Color("#928374"),
		Text:    lipgloss.Color("#ebdbb2"),
	}
}

// Styles holds rendered lipgloss styles for an output.
type Styles struct {
	Title       lipgloss.Style
	Success     lipgloss.Style
	Error       lipgloss.Style
	Warning     lipgloss.Style
	Muted       lipgloss.Style
	Bold        lipgloss.Style
	Highlighted lipgloss.Style
}

// NewStyles creates styles for output. Color is disabled when output
// is not a terminal.
func NewStyles(output *os.File) *Styles {
	theme := DefaultTheme()
	r := lipgloss.NewRenderer(output)
	if !term.IsTerminal(int(output.Fd())) {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Styles{
		Title:       r.NewStyle().Bold(true).Foreground(theme.Text),
		Success:     r.NewStyle().Foreground(theme.Success),
		Error:       r.NewStyle().Foreground(theme.Error),
		Warning:     r.NewStyle().Foreground(theme.Warning),
		Muted:       r.NewStyle().Foreground(theme.Muted),
		Bold:        r.NewStyle().Bold(true),
		Highlighted: r.NewStyle().Bold(true).Foreground(theme.Primary),
	}
}
