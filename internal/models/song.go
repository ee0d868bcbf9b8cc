package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Song is a stashed track in a user's history.
type Song struct {
	entity
	UserID       string
	Track        string
	Artist       string
	Source       string
	URL          string
	AlbumArtURL  string
	PreviewURL   string
	SpotifyURI   string
	SpotifyURL   string
	Genre        string
	PlaylistID   string
	PlaylistName string
}

// NewSong creates a history entry for a match stashed from link.
func NewSong(userID string, m Match, link, source string) *Song {
	return &Song{
		entity:      newEntity(0),
		UserID:      userID,
		Track:       m.Track,
		Artist:      m.Artist,
		Source:      source,
		URL:         link,
		AlbumArtURL: m.AlbumArtURL,
		PreviewURL:  m.PreviewURL,
		SpotifyURI:  m.SpotifyURI,
		SpotifyURL:  m.SpotifyURL,
	}
}

// TrackID returns the Spotify track id from the stored URI.
func (s *Song) TrackID() string {
	return strings.TrimPrefix(s.SpotifyURI, "spotify:track:")
}

// GenreOrUnknown returns the genre, or "Unknown" when none was detected.
func (s *Song) GenreOrUnknown() string {
	if strings.TrimSpace(s.Genre) == "" {
		return "Unknown"
	}
	return s.Genre
}

func (s *Song) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return fmt.Errorf("song requires a user id")
	}
	if strings.TrimSpace(s.Track) == "" {
		return fmt.Errorf("song requires a track name")
	}
	if strings.TrimSpace(s.Artist) == "" {
		return fmt.Errorf("song requires an artist")
	}
	return nil
}

type songJSON struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Track        string    `json:"song"`
	Artist       string    `json:"artist"`
	Source       string    `json:"source"`
	URL          string    `json:"url,omitempty"`
	AlbumArtURL  string    `json:"album_art_url,omitempty"`
	PreviewURL   string    `json:"preview_url,omitempty"`
	SpotifyURI   string    `json:"spotify_uri,omitempty"`
	SpotifyURL   string    `json:"spotify_url,omitempty"`
	Genre        string    `json:"genre,omitempty"`
	PlaylistID   string    `json:"playlist_id,omitempty"`
	PlaylistName string    `json:"playlist_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MarshalJSON encodes the song with the field names the app uses.
func (s *Song) MarshalJSON() ([]byte, error) {
	return json.Marshal(songJSON{
		ID:           s.id,
		UserID:       s.UserID,
		Track:        s.Track,
		Artist:       s.Artist,
		Source:       s.Source,
		URL:          s.URL,
		AlbumArtURL:  s.AlbumArtURL,
		PreviewURL:   s.PreviewURL,
		SpotifyURI:   s.SpotifyURI,
		SpotifyURL:   s.SpotifyURL,
		Genre:        s.Genre,
		PlaylistID:   s.PlaylistID,
		PlaylistName: s.PlaylistName,
		CreatedAt:    s.createdAt,
	})
}

// UnmarshalJSON decodes the representation produced by MarshalJSON.
func (s *Song) UnmarshalJSON(data []byte) error {
	var v songJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Song{
		UserID:       v.UserID,
		Track:        v.Track,
		Artist:       v.Artist,
		Source:       v.Source,
		URL:          v.URL,
		AlbumArtURL:  v.AlbumArtURL,
		PreviewURL:   v.PreviewURL,
		SpotifyURI:   v.SpotifyURI,
		SpotifyURL:   v.SpotifyURL,
		Genre:        v.Genre,
		PlaylistID:   v.PlaylistID,
		PlaylistName: v.PlaylistName,
	}
	s.id = v.ID
	s.createdAt = v.CreatedAt
	s.updatedAt = v.CreatedAt
	return nil
}
