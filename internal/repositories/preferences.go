package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
)

// PreferencesRepository stores one [models.Preferences] row per user.
type PreferencesRepository struct {
	db *shared.DB
}

// NewPreferencesRepository creates a new [PreferencesRepository].
func NewPreferencesRepository(db *shared.DB) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

// Get returns the user's preferences, or the defaults when none have been saved.
func (r *PreferencesRepository) Get(userID string) (*models.Preferences, error) {
	query := `
		SELECT user_id, auto_add_top_match, default_playlist_id, theme, updated_at
		FROM preferences
		WHERE user_id = ?
	`

	var (
		prefs models.Preferences
		theme string
	)
	err := r.db.QueryRow(query, userID).Scan(&prefs.UserID, &prefs.AutoAddTopMatch, &prefs.DefaultPlaylistID, &theme, &prefs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultPreferences(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	prefs.Theme = models.Theme(theme)

	return &prefs, nil
}

// Upsert validates and saves prefs, replacing any existing row.
func (r *PreferencesRepository) Upsert(prefs *models.Preferences) error {
	if err := prefs.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	prefs.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO preferences (user_id, auto_add_top_match, default_playlist_id, theme, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			auto_add_top_match = excluded.auto_add_top_match,
			default_playlist_id = excluded.default_playlist_id,
			theme = excluded.theme,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query, prefs.UserID, prefs.AutoAddTopMatch, prefs.DefaultPlaylistID, string(prefs.Theme), prefs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
