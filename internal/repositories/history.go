package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
)

const historyColumns = `id, sequence, user_id, track, artist, source, url, album_art_url, preview_url,
	spotify_uri, spotify_url, genre, playlist_id, playlist_name, created_at, updated_at, deleted_at`

// HistoryRepository implements [models.Repository] for stashed [models.Song] entries.
type HistoryRepository struct {
	db *shared.DB
}

// NewHistoryRepository creates a new [HistoryRepository].
func NewHistoryRepository(db *shared.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create inserts a song with a generated ID and sequence.
//
// The sequence is a global insertion counter; ListByUser uses it to order
// songs stashed at the same instant.
func (r *HistoryRepository) Create(song *models.Song) error {
	if err := song.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "history")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if song.ID() == "" {
		song.SetID(shared.GenerateID())
	}
	song.SetSequence(sequence)

	query := `
		INSERT INTO history (id, sequence, user_id, track, artist, source, url, album_art_url, preview_url,
			spotify_uri, spotify_url, genre, playlist_id, playlist_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		song.ID(), sequence, song.UserID, song.Track, song.Artist, song.Source, song.URL,
		song.AlbumArtURL, song.PreviewURL, song.SpotifyURI, song.SpotifyURL,
		song.Genre, song.PlaylistID, song.PlaylistName, song.CreatedAt(), song.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert song: %w", err)
	}

	return nil
}

// Get retrieves a song by ID, excluding soft-deleted entries.
func (r *HistoryRepository) Get(id string) (*models.Song, error) {
	query := `SELECT ` + historyColumns + ` FROM history WHERE id = ? AND deleted_at IS NULL`
	song, err := scanSong(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSongNotFound, id)
	}
	return song, err
}

// Update rewrites the mutable fields of a song (genre and playlist after a re-sort).
func (r *HistoryRepository) Update(song *models.Song) error {
	if err := song.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	song.SetUpdatedAt(now)

	query := `
		UPDATE history
		SET track = ?, artist = ?, genre = ?, playlist_id = ?, playlist_name = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, song.Track, song.Artist, song.Genre, song.PlaylistID, song.PlaylistName, now, song.ID())
	if err != nil {
		return fmt.Errorf("failed to update song: %w", err)
	}

	return checkAffected(result, fmt.Errorf("%w: %s", shared.ErrSongNotFound, song.ID()))
}

// Delete soft-deletes a song by ID.
func (r *HistoryRepository) Delete(id string) error {
	query := `UPDATE history SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := r.db.Exec(query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete song: %w", err)
	}

	return checkAffected(result, fmt.Errorf("%w: %s", shared.ErrSongNotFound, id))
}

// DeleteForUser soft-deletes a song only if it belongs to userID.
func (r *HistoryRepository) DeleteForUser(userID, id string) error {
	query := `UPDATE history SET deleted_at = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL`

	result, err := r.db.Exec(query, time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete song: %w", err)
	}

	return checkAffected(result, fmt.Errorf("%w: %s", shared.ErrSongNotFound, id))
}

// List retrieves songs matching criteria, newest first.
//
// Supported criteria: user_id, genre, source (string), since (time.Time), limit (int).
func (r *HistoryRepository) List(criteria map[string]any) ([]*models.Song, error) {
	query := `SELECT ` + historyColumns + ` FROM history WHERE deleted_at IS NULL`
	args := []any{}

	for _, key := range []string{"user_id", "genre", "source"} {
		if v, ok := criteria[key].(string); ok && v != "" {
			query += " AND " + key + " = ?"
			args = append(args, v)
		}
	}

	if since, ok := criteria["since"].(time.Time); ok && !since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, since.UTC())
	}

	query += " ORDER BY created_at DESC, sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	songs := []*models.Song{}
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return songs, nil
}

// ListByUser returns up to limit of the user's songs, newest first. A limit of 0 returns all.
func (r *HistoryRepository) ListByUser(userID string, limit int) ([]*models.Song, error) {
	return r.List(map[string]any{"user_id": userID, "limit": limit})
}

// CountByUser returns the number of songs the user has stashed.
func (r *HistoryRepository) CountByUser(userID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM history WHERE user_id = ? AND deleted_at IS NULL`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

func scanSong(row scanner) (*models.Song, error) {
	var (
		song      models.Song
		id        string
		sequence  int
		createdAt time.Time
		updatedAt time.Time
		deletedAt sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &song.UserID, &song.Track, &song.Artist, &song.Source, &song.URL,
		&song.AlbumArtURL, &song.PreviewURL, &song.SpotifyURI, &song.SpotifyURL,
		&song.Genre, &song.PlaylistID, &song.PlaylistName, &createdAt, &updatedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan song: %w", err)
	}

	song.SetID(id)
	song.SetSequence(sequence)
	song.SetCreatedAt(createdAt)
	song.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		song.SetDeletedAt(&deletedAt.Time)
	}

	return &song, nil
}
