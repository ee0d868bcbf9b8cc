// package services defines the interfaces stash uses to talk to external systems
//
// Spotify, yt-dlp, Gemini, and remote stash backends
package services

import (
	"context"

	"github.com/desertthunder/stash/internal/models"
)

// Catalog searches the Spotify catalog. It only needs app credentials.
type Catalog interface {
	// SearchTrack verifies a track/artist pair and returns the best match.
	// Returns [shared.ErrNotOnSpotify] when nothing matches.
	SearchTrack(ctx context.Context, track, artist string) ([]models.Match, error)

	// SearchMatches returns up to limit unscored candidates for a free-text query.
	SearchMatches(ctx context.Context, query string, limit int) ([]models.Match, error)
}

// Library performs operations on behalf of a signed-in Spotify user.
type Library interface {
	CurrentUser(ctx context.Context) (*SpotifyUser, error)
	Track(ctx context.Context, trackID string) (*SpotifyTrack, error)
	UserPlaylists(ctx context.Context, limit, offset int) (*SpotifyPaginatedPlaylists, error)
	Playlist(ctx context.Context, playlistID string) (*SpotifyPlaylist, error)
	CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (*SpotifyPlaylist, error)
	AddTracks(ctx context.Context, playlistID string, uris []string) error
	SaveTracks(ctx context.Context, trackIDs []string) error
}

// MediaExtractor pulls metadata and audio out of a shared link.
type MediaExtractor interface {
	Metadata(ctx context.Context, link string) (*MediaInfo, error)
	DownloadAudio(ctx context.Context, link, dir string) (string, error)
}

// Recognizer identifies songs and describes listening habits.
type Recognizer interface {
	// IdentifyAudio returns the track and artist heard in the audio.
	IdentifyAudio(ctx context.Context, audio []byte, mimeType string) (*Identification, error)

	// DetectGenre returns a one-word genre, or "Unknown".
	DetectGenre(ctx context.Context, track, artist string) string

	// AnalyzeVibe describes a list of "track by artist" strings in one sentence.
	AnalyzeVibe(ctx context.Context, songs []string) string
}

// Identification is what a [Recognizer] heard.
type Identification struct {
	Track  string `json:"track"`
	Artist string `json:"artist"`
}

// Playlist represents a Spotify playlist offered as a stash destination
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
}
