package ui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles for command output.
type Styles struct {
	Title    lipgloss.Style
	Root     lipgloss.Style
	Folder   lipgloss.Style
	Bookmark lipgloss.Style
	Favorite lipgloss.Style // marker next to favorites
	URL      lipgloss.Style
	UUID     lipgloss.Style
	Path     lipgloss.Style // folder path above a search hit
	Match    lipgloss.Style // fuzzy-matched runes
	Empty    lipgloss.Style
	Success  lipgloss.Style
	Error    lipgloss.Style
}

// DefaultStyles returns the default style configuration.
// Industrial design: grayscale with single desaturated teal accent.
func DefaultStyles() Styles {
	primary := lipgloss.AdaptiveColor{Light: "#505050", Dark: "#A0A0A0"} // main text
	subtle := lipgloss.AdaptiveColor{Light: "#888888", Dark: "#606060"}  // secondary text
	accent := lipgloss.AdaptiveColor{Light: "#4A7070", Dark: "#5F8787"}  // desaturated teal
	alert := lipgloss.AdaptiveColor{Light: "#8A4A4A", Dark: "#A06060"}

	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),

		Root: lipgloss.NewStyle().
			Bold(true).
			Foreground(primary),

		Folder: lipgloss.NewStyle().
			Foreground(primary),

		Bookmark: lipgloss.NewStyle().
			Foreground(primary),

		Favorite: lipgloss.NewStyle().
			Foreground(accent),

		URL: lipgloss.NewStyle().
			Foreground(subtle),

		UUID: lipgloss.NewStyle().
			Foreground(subtle),

		Path: lipgloss.NewStyle().
			Foreground(subtle),

		Match: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),

		Empty: lipgloss.NewStyle().
			Foreground(subtle),

		Success: lipgloss.NewStyle().
			Foreground(accent),

		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(alert),
	}
}
