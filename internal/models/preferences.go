package models

import (
	"fmt"
	"time"
)

// Theme is the UI color scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Reserved playlist ids understood by the save flow.
const (
	LikedSongsID   = "1"
	LikedSongsName = "Liked Songs"
	SmartSortID    = "smart_sort"
	SmartSortName  = "Smart Sort"
)

// Preferences are per-user app settings.
type Preferences struct {
	UserID            string    `json:"user_id"`
	AutoAddTopMatch   bool      `json:"auto_add_top_match"`
	DefaultPlaylistID string    `json:"default_playlist_id"`
	Theme             Theme     `json:"theme"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DefaultPreferences returns the settings a new user starts with.
func DefaultPreferences(userID string) *Preferences {
	return &Preferences{
		UserID:            userID,
		DefaultPlaylistID: LikedSongsID,
		Theme:             ThemeDark,
	}
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

// Validate checks the theme and playlist id.
func (p *Preferences) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("preferences require a user id")
	}
	if p.Theme != ThemeLight && p.Theme != ThemeDark {
		return fmt.Errorf("invalid theme: %q", p.Theme)
	}
	if p.DefaultPlaylistID == "" {
		return fmt.Errorf("default playlist id cannot be empty")
	}
	return nil
}
