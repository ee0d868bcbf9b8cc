package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/stash/internal/models"
)

var (
	darkPalette  = NewPalette("#7D56F4", "#04B575", "#FF5F87", "#FFA500", "#626262", "#1DB954")
	lightPalette = NewPalette("#5A3FC0", "#027A4C", "#C4002F", "#B86E00", "#8A8A8A", "#128C3E")
)

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title  lipgloss.Style
	ok     lipgloss.Style
	err    lipgloss.Style
	warn   lipgloss.Style
	help   lipgloss.Style
	accent lipgloss.Style
	bar    lipgloss.Style
}

func NewPalette(t, s, e, w, h, a string) *Palette {
	return &Palette{
		title:  NewBold(t).MarginBottom(1),
		ok:     NewBold(s),
		err:    NewBold(e),
		warn:   NewStyle(w),
		help:   NewEm(h),
		accent: NewBold(a),
		bar:    NewStyle(a),
	}
}

// PaletteFor returns the stylesheet for theme.
func PaletteFor(theme models.Theme) *Palette {
	if theme == models.ThemeLight {
		return lightPalette
	}
	return darkPalette
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
