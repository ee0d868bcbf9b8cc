// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/services"
	"github.com/desertthunder/stash/internal/shared"
)

// MockCatalog is a test double for [services.Catalog].
// Results are keyed by [shared.NormalizeTrackKey].
type MockCatalog struct {
	mu         sync.Mutex
	Results    map[string][]models.Match
	Alternates []models.Match
	Err        error
	Calls      []string
	Queries    []string
}

// NewMockCatalog creates a catalog that knows the given matches.
func NewMockCatalog(matches ...models.Match) *MockCatalog {
	c := &MockCatalog{Results: make(map[string][]models.Match)}
	for _, m := range matches {
		key := shared.NormalizeTrackKey(m.Track, m.Artist)
		c.Results[key] = append(c.Results[key], m)
	}
	return c
}

func (m *MockCatalog) SearchTrack(ctx context.Context, track, artist string) ([]models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, track+" by "+artist)
	if m.Err != nil {
		return nil, m.Err
	}
	if res, ok := m.Results[shared.NormalizeTrackKey(track, artist)]; ok {
		return append([]models.Match(nil), res...), nil
	}
	return nil, fmt.Errorf("%w: %s by %s", shared.ErrNotOnSpotify, track, artist)
}

// SearchMatches returns Alternates, up to limit.
func (m *MockCatalog) SearchMatches(ctx context.Context, query string, limit int) ([]models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, query)
	if m.Err != nil {
		return nil, m.Err
	}
	out := append([]models.Match(nil), m.Alternates...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CallCount returns the number of SearchTrack calls made.
func (m *MockCatalog) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockExtractor is a test double for [services.MediaExtractor].
// DownloadAudio writes a small file into the requested directory.
type MockExtractor struct {
	mu          sync.Mutex
	Info        *services.MediaInfo
	MetadataErr error
	DownloadErr error
	Block       chan struct{}
	Downloads   []string
}

func (m *MockExtractor) Metadata(ctx context.Context, link string) (*services.MediaInfo, error) {
	if m.MetadataErr != nil {
		return nil, m.MetadataErr
	}
	if m.Info == nil {
		return &services.MediaInfo{Title: "Original Audio", Uploader: "someone"}, nil
	}
	info := *m.Info
	return &info, nil
}

func (m *MockExtractor) DownloadAudio(ctx context.Context, link, dir string) (string, error) {
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.DownloadErr != nil {
		return "", m.DownloadErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	path := filepath.Join(dir, fmt.Sprintf("temp_%d.mp3", len(m.Downloads)))
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	m.Downloads = append(m.Downloads, path)
	return path, nil
}

// DownloadCount returns the number of downloads performed.
func (m *MockExtractor) DownloadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Downloads)
}

// MockRecognizer is a test double for [services.Recognizer].
type MockRecognizer struct {
	mu        sync.Mutex
	ID        *services.Identification
	Err       error
	Genre     string
	Vibe      string
	VibeInput []string
	MIMETypes []string
}

func (m *MockRecognizer) IdentifyAudio(ctx context.Context, audio []byte, mimeType string) (*services.Identification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MIMETypes = append(m.MIMETypes, mimeType)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.ID == nil {
		return nil, shared.ErrRecognitionFailed
	}
	id := *m.ID
	return &id, nil
}

func (m *MockRecognizer) DetectGenre(ctx context.Context, track, artist string) string {
	if m.Genre == "" {
		return services.UnknownGenre
	}
	return m.Genre
}

func (m *MockRecognizer) AnalyzeVibe(ctx context.Context, songs []string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VibeInput = append([]string(nil), songs...)
	if len(songs) == 0 {
		return services.EmptyVibe
	}
	return m.Vibe
}

// MockLibrary is a test double for [services.Library].
type MockLibrary struct {
	mu        sync.Mutex
	User      services.SpotifyUser
	Tracks    map[string]services.SpotifyTrack
	Playlists []services.SpotifyPlaylist
	Saved     []string
	Added     map[string][]string
	Created   []string
	Err       error
}

// NewMockLibrary creates a library for user "u1" that knows the given tracks.
func NewMockLibrary(tracks ...services.SpotifyTrack) *MockLibrary {
	l := &MockLibrary{
		User:   services.SpotifyUser{ID: "u1", DisplayName: "Test User"},
		Tracks: make(map[string]services.SpotifyTrack),
		Added:  make(map[string][]string),
	}
	for _, t := range tracks {
		l.Tracks[t.ID] = t
	}
	return l
}

func (m *MockLibrary) CurrentUser(ctx context.Context) (*services.SpotifyUser, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	u := m.User
	return &u, nil
}

func (m *MockLibrary) Track(ctx context.Context, trackID string) (*services.SpotifyTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tracks[trackID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, trackID)
	}
	return &t, nil
}

func (m *MockLibrary) UserPlaylists(ctx context.Context, limit, offset int) (*services.SpotifyPaginatedPlaylists, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]services.SpotifyPlaylist(nil), m.Playlists...)
	if offset >= len(items) {
		items = nil
	} else {
		items = items[offset:]
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return &services.SpotifyPaginatedPlaylists{Items: items, Total: len(m.Playlists), Limit: limit, Offset: offset}, nil
}

func (m *MockLibrary) Playlist(ctx context.Context, playlistID string) (*services.SpotifyPlaylist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pl := range m.Playlists {
		if pl.ID == playlistID {
			return &pl, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
}

func (m *MockLibrary) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (*services.SpotifyPlaylist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pl := services.SpotifyPlaylist{ID: fmt.Sprintf("created-%d", len(m.Created)+1), Name: name, Description: description, Public: public}
	m.Playlists = append(m.Playlists, pl)
	m.Created = append(m.Created, name)
	return &pl, nil
}

func (m *MockLibrary) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Added[playlistID] = append(m.Added[playlistID], uris...)
	return nil
}

func (m *MockLibrary) SaveTracks(ctx context.Context, trackIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Saved = append(m.Saved, trackIDs...)
	return nil
}

// Factory returns a library factory that always yields m.
func (m *MockLibrary) Factory() func(string) services.Library {
	return func(string) services.Library { return m }
}

// MemoryHistory is an in-memory history store.
type MemoryHistory struct {
	mu    sync.Mutex
	Songs []*models.Song
	Err   error
}

func (h *MemoryHistory) Create(song *models.Song) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return h.Err
	}
	if song.ID() == "" {
		song.SetID(shared.GenerateID())
	}
	h.Songs = append(h.Songs, song)
	return nil
}

func (h *MemoryHistory) ListByUser(userID string, limit int) ([]*models.Song, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*models.Song
	for _, s := range h.Songs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt().After(out[j].CreatedAt()) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteForUser removes the user's song with id.
func (h *MemoryHistory) DeleteForUser(userID, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.Songs {
		if s.ID() == id && s.UserID == userID {
			h.Songs = append(h.Songs[:i], h.Songs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", shared.ErrSongNotFound, id)
}

// Len returns the number of stored songs.
func (h *MemoryHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Songs)
}

// MemoryPreferences is an in-memory preference store.
type MemoryPreferences map[string]*models.Preferences

func (p MemoryPreferences) Get(userID string) (*models.Preferences, error) {
	if prefs, ok := p[userID]; ok {
		c := *prefs
		return &c, nil
	}
	return models.DefaultPreferences(userID), nil
}

func (p MemoryPreferences) Upsert(prefs *models.Preferences) error {
	if err := prefs.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	c := *prefs
	p[prefs.UserID] = &c
	return nil
}

// MemoryCache is an in-memory recognition cache.
type MemoryCache struct {
	mu      sync.Mutex
	Matches map[string]models.Match
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{Matches: make(map[string]models.Match)}
}

func (c *MemoryCache) Lookup(link string) (*models.Match, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.Matches[strings.TrimRight(link, "/")]
	if !ok {
		return nil, false, nil
	}
	return &m, true, nil
}

func (c *MemoryCache) Store(link string, m models.Match) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Matches[strings.TrimRight(link, "/")] = m
	return nil
}

// MustOpenDB opens a migrated in-memory SQLite database closed at test cleanup.
func MustOpenDB(t *testing.T) *shared.DB {
	t.Helper()
	db, err := shared.NewDatabase(shared.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if err == nil && !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}
