package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
)

// RecognitionCache remembers verified matches per link so a reel shared twice
// is not downloaded and identified again.
//
// Implements tasks.MatchCache.
type RecognitionCache struct {
	db  *shared.DB
	ttl time.Duration
}

// NewRecognitionCache creates a cache whose entries expire after ttl. A zero ttl never expires.
func NewRecognitionCache(db *shared.DB, ttl time.Duration) *RecognitionCache {
	return &RecognitionCache{db: db, ttl: ttl}
}

func cacheKey(link string) string {
	return strings.TrimRight(strings.TrimSpace(link), "/")
}

// Lookup returns the cached match for link, if present and not expired.
func (c *RecognitionCache) Lookup(link string) (*models.Match, bool, error) {
	query := `
		SELECT track_id, track, artist, album, album_art_url, preview_url, spotify_uri, spotify_url,
			popularity, confidence, created_at
		FROM recognition_cache
		WHERE url = ?
	`

	var (
		m         models.Match
		createdAt time.Time
	)
	err := c.db.QueryRow(query, cacheKey(link)).Scan(
		&m.ID, &m.Track, &m.Artist, &m.Album, &m.AlbumArtURL, &m.PreviewURL, &m.SpotifyURI, &m.SpotifyURL,
		&m.Popularity, &m.Confidence, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query recognition cache: %w", err)
	}

	if c.ttl > 0 && time.Since(createdAt) > c.ttl {
		return nil, false, nil
	}

	return &m, true, nil
}

// Store caches m for link, replacing any previous entry.
func (c *RecognitionCache) Store(link string, m models.Match) error {
	if m.SpotifyURI == "" {
		return fmt.Errorf("%w: match has no spotify uri", shared.ErrInvalidInput)
	}

	query := `
		INSERT INTO recognition_cache (url, track_id, track, artist, album, album_art_url, preview_url,
			spotify_uri, spotify_url, popularity, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			track_id = excluded.track_id,
			track = excluded.track,
			artist = excluded.artist,
			album = excluded.album,
			album_art_url = excluded.album_art_url,
			preview_url = excluded.preview_url,
			spotify_uri = excluded.spotify_uri,
			spotify_url = excluded.spotify_url,
			popularity = excluded.popularity,
			confidence = excluded.confidence,
			created_at = excluded.created_at
	`

	_, err := c.db.Exec(query,
		cacheKey(link), m.ID, m.Track, m.Artist, m.Album, m.AlbumArtURL, m.PreviewURL,
		m.SpotifyURI, m.SpotifyURL, m.Popularity, m.Confidence, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache match: %w", err)
	}
	return nil
}

// Purge removes entries older than age and returns how many were deleted.
func (c *RecognitionCache) Purge(age time.Duration) (int64, error) {
	result, err := c.db.Exec(`DELETE FROM recognition_cache WHERE created_at < ?`, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to purge recognition cache: %w", err)
	}
	return result.RowsAffected()
}
