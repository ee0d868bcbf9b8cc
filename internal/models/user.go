package models

import (
	"fmt"
	"strings"
)

// User is a stash account, usually backed by a Spotify profile.
type User struct {
	entity
	SpotifyID   string
	DisplayName string
	Email       string
}

// NewUser creates a User with fresh timestamps.
func NewUser(sequence int, spotifyID, displayName, email string) *User {
	return &User{
		entity:      newEntity(sequence),
		SpotifyID:   spotifyID,
		DisplayName: displayName,
		Email:       email,
	}
}

// Validate requires at least one way to identify the user.
func (u *User) Validate() error {
	if strings.TrimSpace(u.SpotifyID) == "" && strings.TrimSpace(u.Email) == "" && strings.TrimSpace(u.DisplayName) == "" {
		return fmt.Errorf("user requires a spotify id, email or display name")
	}
	if u.Email != "" && !strings.Contains(u.Email, "@") {
		return fmt.Errorf("invalid email: %s", u.Email)
	}
	return nil
}
