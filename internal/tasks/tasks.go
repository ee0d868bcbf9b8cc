// package tasks implements the stash pipeline: recognizing the song behind a link,
// verifying it on Spotify, and saving it to the user's library.
//
// The core abstraction is StashEngine. Operations emit progress updates via
// channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/services"
	"github.com/desertthunder/stash/internal/shared"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultConfidenceThreshold is the top-match confidence at or above which a
	// match is stashed without confirmation.
	DefaultConfidenceThreshold = 0.90
	// NotOnSpotifyMessage is reported when the audio was identified but no catalog entry matched.
	NotOnSpotifyMessage = "Song found by AI but not in Spotify"
	// DefaultPlaylistName is used when a chosen playlist's name cannot be looked up.
	DefaultPlaylistName = "Selected Playlist"
	smartSortPrefix     = "Stash: "
	smartSortDesc       = "Songs stashed by genre"
	vibeHistoryLimit    = 20
	maxCandidates       = 5
	defaultJobTTL       = 30 * time.Minute
	defaultTimeout      = 2 * time.Minute
)

// Recognition methods.
const (
	MethodCache    = "cache"
	MethodMetadata = "metadata"
	MethodAudio    = "audio"
)

// HistoryStore persists stashed songs (repositories.HistoryRepository).
type HistoryStore interface {
	Create(song *models.Song) error
	ListByUser(userID string, limit int) ([]*models.Song, error)
}

// PreferenceStore reads per-user settings (repositories.PreferencesRepository).
type PreferenceStore interface {
	Get(userID string) (*models.Preferences, error)
}

// MatchCache remembers verified matches per link (repositories.RecognitionCache).
type MatchCache interface {
	Lookup(link string) (*models.Match, bool, error)
	Store(link string, m models.Match) error
}

// LibraryFactory returns a [services.Library] acting for the owner of token.
// An empty token selects the engine's default user.
type LibraryFactory func(token string) services.Library

// Recognition is the outcome of the recognition pipeline.
type Recognition struct {
	URL     string         `json:"url"`
	Source  string         `json:"source"`
	Method  string         `json:"method"`
	Heard   string         `json:"heard,omitempty"`
	Matches []models.Match `json:"matches"`

	query string
}

// Top returns the best candidate.
func (r *Recognition) Top() models.Match {
	if len(r.Matches) == 0 {
		return models.Match{}
	}
	return r.Matches[0]
}

// SaveResult describes where a track was saved.
type SaveResult struct {
	PlaylistID   string `json:"playlist_id"`
	PlaylistName string `json:"playlist_name"`
	Genre        string `json:"genre"`
}

// StashRequest saves a chosen match and records it in history.
type StashRequest struct {
	UserID     string
	Token      string
	Link       string
	Match      models.Match
	PlaylistID string
}

// EngineOption configures a [StashEngine].
type EngineOption func(*StashEngine)

// WithHistory sets the history store used by Stash and Vibe.
func WithHistory(h HistoryStore) EngineOption {
	return func(e *StashEngine) { e.history = h }
}

// WithPreferences sets the store consulted for auto-add and default playlist.
func WithPreferences(p PreferenceStore) EngineOption {
	return func(e *StashEngine) { e.prefs = p }
}

// WithCache sets the recognition cache.
func WithCache(c MatchCache) EngineOption {
	return func(e *StashEngine) { e.cache = c }
}

// WithLibrary sets how user-scoped Spotify clients are obtained.
func WithLibrary(f LibraryFactory) EngineOption {
	return func(e *StashEngine) { e.library = f }
}

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) EngineOption {
	return func(e *StashEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTempDir sets where downloaded audio is written.
func WithTempDir(dir string) EngineOption {
	return func(e *StashEngine) { e.tempDir = dir }
}

// WithConfidenceThreshold overrides the auto-add threshold.
func WithConfidenceThreshold(threshold float64) EngineOption {
	return func(e *StashEngine) {
		if threshold > 0 {
			e.threshold = threshold
		}
	}
}

// WithJobTTL sets how long finished jobs remain visible to Status.
func WithJobTTL(ttl time.Duration) EngineOption {
	return func(e *StashEngine) {
		if ttl > 0 {
			e.jobTTL = ttl
		}
	}
}

// WithTimeout bounds each background job.
func WithTimeout(timeout time.Duration) EngineOption {
	return func(e *StashEngine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

func withClock(now func() time.Time) EngineOption {
	return func(e *StashEngine) { e.now = now }
}

// StashEngine recognizes songs in links and saves them to Spotify.
// Contains dependencies on the catalog, extractor, recognizer and stores.
type StashEngine struct {
	catalog    services.Catalog
	extractor  services.MediaExtractor
	recognizer services.Recognizer
	library    LibraryFactory
	history    HistoryStore
	prefs      PreferenceStore
	cache      MatchCache
	logger     *log.Logger
	tempDir    string
	threshold  float64
	jobTTL     time.Duration
	timeout    time.Duration
	now        func() time.Time
	flight     singleflight.Group

	mu         sync.Mutex
	jobs       map[string]*job
	pending    map[string]string
	confirming map[string]string
	waiting    map[string][]string
	wg         sync.WaitGroup
}

// NewStashEngine creates a new StashEngine with the provided services.
func NewStashEngine(catalog services.Catalog, extractor services.MediaExtractor, recognizer services.Recognizer, opts ...EngineOption) *StashEngine {
	e := &StashEngine{
		catalog:    catalog,
		extractor:  extractor,
		recognizer: recognizer,
		logger:     log.New(io.Discard),
		tempDir:    os.TempDir(),
		threshold:  DefaultConfidenceThreshold,
		jobTTL:     defaultJobTTL,
		timeout:    defaultTimeout,
		now:        time.Now,
		jobs:       make(map[string]*job),
		pending:    make(map[string]string),
		confirming: make(map[string]string),
		waiting:    make(map[string][]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// sendProgress sends a progress update through the channel without blocking.
func (e *StashEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// fail reports err on the progress channel and returns it.
func (e *StashEngine) fail(progress chan<- ProgressUpdate, err error) error {
	e.sendProgress(progress, failedUpdate(err))
	return err
}

// Recognize identifies and verifies the song behind link.
//
// Concurrent calls for the same link share one pipeline run; only the first
// caller's progress channel receives updates. The shared run ignores ctx's
// cancellation: a caller whose ctx ends gets [shared.ErrTimeout] while the run
// continues for the others.
func (e *StashEngine) Recognize(ctx context.Context, link string, progress chan<- ProgressUpdate) (*Recognition, error) {
	link = strings.TrimSpace(link)
	if err := shared.ValidateURL(link); err != nil {
		return nil, e.fail(progress, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, e.fail(progress, fmt.Errorf("%w: %v", shared.ErrTimeout, err))
	}

	// The run only writes to relay, so it never touches progress after this
	// call has returned.
	relay := make(chan ProgressUpdate, 32)
	results := e.flight.DoChan(link, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()
		return e.recognize(runCtx, link, relay)
	})

	for {
		select {
		case u := <-relay:
			e.sendProgress(progress, u)
		case res := <-results:
			e.forward(relay, progress)
			if res.Err != nil {
				return nil, res.Err
			}
			rec := *res.Val.(*Recognition)
			rec.Matches = append([]models.Match(nil), rec.Matches...)
			return &rec, nil
		case <-ctx.Done():
			return nil, e.fail(progress, fmt.Errorf("%w: %v", shared.ErrTimeout, ctx.Err()))
		}
	}
}

// forward passes along updates still buffered in relay.
func (e *StashEngine) forward(relay <-chan ProgressUpdate, progress chan<- ProgressUpdate) {
	for {
		select {
		case u := <-relay:
			e.sendProgress(progress, u)
		default:
			return
		}
	}
}

// Candidates returns rec's matches followed by other catalog results for the
// same song, without duplicates and at most five in total. These are the
// choices offered when a match needs confirmation.
func (e *StashEngine) Candidates(ctx context.Context, rec *Recognition) []models.Match {
	out := append([]models.Match(nil), rec.Matches...)
	if e.catalog == nil || len(out) >= maxCandidates {
		return out
	}

	query := rec.query
	if query == "" {
		top := rec.Top()
		query = strings.TrimSpace(top.Track + " " + top.Artist)
	}
	if query == "" {
		return out
	}

	more, err := e.catalog.SearchMatches(ctx, query, maxCandidates)
	if err != nil {
		e.logger.Debug("no alternate candidates", "query", query, "error", err)
		return out
	}

	seen := make(map[string]bool, len(out))
	for _, m := range out {
		seen[m.ID] = true
	}
	for _, m := range more {
		if len(out) >= maxCandidates {
			break
		}
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

func (e *StashEngine) recognize(ctx context.Context, link string, progress chan<- ProgressUpdate) (*Recognition, error) {
	if e.catalog == nil {
		return nil, e.fail(progress, fmt.Errorf("%w: Spotify catalog not initialized", shared.ErrServiceUnavailable))
	}

	rec := &Recognition{URL: link, Source: shared.ExtractSource(link)}
	logger := shared.WithLogger(e.logger, "url", link)

	e.sendProgress(progress, cacheUpdate())
	if e.cache != nil {
		m, ok, err := e.cache.Lookup(link)
		if err != nil {
			logger.Warn("recognition cache lookup failed", "error", err)
		}
		if ok {
			rec.Method = MethodCache
			rec.Matches = []models.Match{*m}
			e.sendProgress(progress, recognizedUpdate(rec))
			return rec, nil
		}
	}

	if e.extractor == nil {
		return nil, e.fail(progress, fmt.Errorf("%w: extractor not initialized", shared.ErrServiceUnavailable))
	}

	e.sendProgress(progress, metadataUpdate())
	if matches, heard, query, ok := e.fromMetadata(ctx, link, logger); ok {
		rec.Method = MethodMetadata
		rec.Heard = heard
		rec.query = query
		rec.Matches = matches
		e.remember(link, rec, logger)
		e.sendProgress(progress, recognizedUpdate(rec))
		return rec, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, e.fail(progress, fmt.Errorf("%w: %v", shared.ErrTimeout, err))
	}

	if e.recognizer == nil {
		return nil, e.fail(progress, fmt.Errorf("%w: recognizer not initialized", shared.ErrServiceUnavailable))
	}

	e.sendProgress(progress, downloadUpdate())
	path, err := e.extractor.DownloadAudio(ctx, link, e.tempDir)
	if err != nil {
		if !errors.Is(err, shared.ErrDownloadFailed) {
			err = fmt.Errorf("%w: %v", shared.ErrDownloadFailed, err)
		}
		return nil, e.fail(progress, err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove temp audio", "path", path, "error", err)
		}
	}()

	e.sendProgress(progress, identifyUpdate())
	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, e.fail(progress, fmt.Errorf("%w: %v", shared.ErrDownloadFailed, err))
	}

	id, err := e.recognizer.IdentifyAudio(ctx, audio, services.AudioMIMEType(path))
	if err != nil {
		return nil, e.fail(progress, err)
	}
	rec.Heard = id.Track + " by " + id.Artist
	rec.query = id.Track + " " + id.Artist

	e.sendProgress(progress, verifyUpdate(id.Track, id.Artist))
	matches, err := e.catalog.SearchTrack(ctx, id.Track, id.Artist)
	if errors.Is(err, shared.ErrNotOnSpotify) {
		return nil, e.fail(progress, fmt.Errorf("%w: %s", shared.ErrNotOnSpotify, NotOnSpotifyMessage))
	}
	if err != nil {
		return nil, e.fail(progress, err)
	}

	rec.Method = MethodAudio
	rec.Matches = matches
	e.remember(link, rec, logger)
	e.sendProgress(progress, recognizedUpdate(rec))
	return rec, nil
}

// fromMetadata tries the fast path: trust the link's own metadata when the
// catalog finds the track it names.
func (e *StashEngine) fromMetadata(ctx context.Context, link string, logger *log.Logger) (matches []models.Match, heard, query string, ok bool) {
	info, err := e.extractor.Metadata(ctx, link)
	if err != nil {
		logger.Debug("metadata unavailable", "error", err)
		return nil, "", "", false
	}

	track, artist, ok := info.Guess()
	if !ok {
		return nil, "", "", false
	}

	matches, err = e.catalog.SearchTrack(ctx, track, artist)
	if err != nil || len(matches) == 0 {
		logger.Debug("metadata not found on Spotify", "track", track, "artist", artist, "error", err)
		return nil, "", "", false
	}
	return matches, track + " by " + artist, track + " " + artist, true
}

func (e *StashEngine) remember(link string, rec *Recognition, logger *log.Logger) {
	if e.cache == nil || len(rec.Matches) == 0 {
		return
	}
	if err := e.cache.Store(link, rec.Top()); err != nil {
		logger.Warn("failed to cache recognition", "error", err)
	}
}

// ShouldAutoAdd reports whether top can be stashed without asking the user.
func ShouldAutoAdd(prefs *models.Preferences, top models.Match, threshold float64) bool {
	if prefs != nil && prefs.AutoAddTopMatch {
		return true
	}
	return top.Confidence >= threshold
}

// Threshold returns the engine's auto-add confidence threshold.
func (e *StashEngine) Threshold() float64 {
	return e.threshold
}

func (e *StashEngine) preferences(userID string) *models.Preferences {
	if e.prefs == nil || userID == "" {
		return models.DefaultPreferences(userID)
	}
	prefs, err := e.prefs.Get(userID)
	if err != nil {
		e.logger.Warn("failed to load preferences, using defaults", "user", userID, "error", err)
		return models.DefaultPreferences(userID)
	}
	return prefs
}

func (e *StashEngine) userLibrary(token string) (services.Library, error) {
	if e.library == nil {
		return nil, fmt.Errorf("%w: Spotify library not initialized", shared.ErrServiceUnavailable)
	}
	lib := e.library(token)
	if lib == nil {
		return nil, fmt.Errorf("%w: no Spotify session", shared.ErrNotAuthenticated)
	}
	return lib, nil
}

// SaveTrack saves trackID for the owner of token.
//
// playlistID selects the target: [models.SmartSortID] routes the track into a
// per-genre "Stash: <Genre>" playlist, "" or [models.LikedSongsID] saves it to
// Liked Songs, and anything else adds it to that playlist.
func (e *StashEngine) SaveTrack(ctx context.Context, token, trackID, playlistID string) (*SaveResult, error) {
	if strings.TrimSpace(trackID) == "" {
		return nil, fmt.Errorf("%w: track id is required", shared.ErrInvalidInput)
	}

	lib, err := e.userLibrary(token)
	if err != nil {
		return nil, err
	}

	user, err := lib.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	track, err := lib.Track(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTrackNotFound, err)
	}
	uri := track.URI
	if uri == "" {
		uri = "spotify:track:" + track.ID
	}

	genre := services.UnknownGenre
	if e.recognizer != nil {
		genre = e.recognizer.DetectGenre(ctx, track.Name, track.FirstArtist())
	}

	result := &SaveResult{Genre: genre}

	switch {
	case playlistID == models.SmartSortID:
		name := smartSortPrefix + genre
		id, err := e.findOrCreatePlaylist(ctx, lib, user.ID, name)
		if err != nil {
			return nil, err
		}
		if err := lib.AddTracks(ctx, id, []string{uri}); err != nil {
			return nil, fmt.Errorf("failed to add track to %s: %w", name, err)
		}
		result.PlaylistID = id
		result.PlaylistName = name

	case playlistID != "" && playlistID != models.LikedSongsID:
		if err := lib.AddTracks(ctx, playlistID, []string{uri}); err != nil {
			return nil, fmt.Errorf("failed to add track to playlist: %w", err)
		}
		result.PlaylistID = playlistID
		result.PlaylistName = DefaultPlaylistName
		if pl, err := lib.Playlist(ctx, playlistID); err == nil && pl.Name != "" {
			result.PlaylistName = pl.Name
		}

	default:
		if err := lib.SaveTracks(ctx, []string{track.ID}); err != nil {
			return nil, fmt.Errorf("failed to save to Liked Songs: %w", err)
		}
		result.PlaylistID = models.LikedSongsID
		result.PlaylistName = models.LikedSongsName
	}

	return result, nil
}

// findOrCreatePlaylist looks for name (case-insensitively) among the user's
// first 50 playlists and creates it privately when missing.
func (e *StashEngine) findOrCreatePlaylist(ctx context.Context, lib services.Library, userID, name string) (string, error) {
	page, err := lib.UserPlaylists(ctx, 50, 0)
	if err != nil {
		return "", fmt.Errorf("failed to list playlists: %w", err)
	}
	for _, pl := range page.Items {
		if strings.EqualFold(pl.Name, name) {
			return pl.ID, nil
		}
	}

	pl, err := lib.CreatePlaylist(ctx, userID, name, smartSortDesc, false)
	if err != nil {
		return "", fmt.Errorf("failed to create playlist %s: %w", name, err)
	}
	e.logger.Info("created smart sort playlist", "name", name, "id", pl.ID)
	return pl.ID, nil
}

// Stash saves req.Match to Spotify and records it in history.
//
// An empty PlaylistID falls back to the user's default playlist.
func (e *StashEngine) Stash(ctx context.Context, req StashRequest) (*models.Song, error) {
	if req.PlaylistID == "" {
		req.PlaylistID = e.preferences(req.UserID).DefaultPlaylistID
	}

	trackID := req.Match.ID
	if trackID == "" {
		trackID = strings.TrimPrefix(req.Match.SpotifyURI, "spotify:track:")
	}

	saved, err := e.SaveTrack(ctx, req.Token, trackID, req.PlaylistID)
	if err != nil {
		return nil, err
	}

	song := models.NewSong(req.UserID, req.Match, req.Link, shared.ExtractSource(req.Link))
	song.Genre = saved.Genre
	song.PlaylistID = saved.PlaylistID
	song.PlaylistName = saved.PlaylistName
	if song.SpotifyURI == "" {
		song.SpotifyURI = "spotify:track:" + trackID
	}

	if e.history != nil {
		if err := e.history.Create(song); err != nil {
			return song, fmt.Errorf("saved to Spotify but failed to record history: %w", err)
		}
	}

	e.logger.Info("stashed song", "user", req.UserID, "track", song.Track, "artist", song.Artist, "playlist", song.PlaylistName)
	return song, nil
}

// Vibe describes the user's latest stashes in one sentence.
func (e *StashEngine) Vibe(ctx context.Context, userID string) (string, error) {
	if e.history == nil {
		return "", fmt.Errorf("%w: history store not initialized", shared.ErrServiceUnavailable)
	}
	if e.recognizer == nil {
		return "", fmt.Errorf("%w: recognizer not initialized", shared.ErrServiceUnavailable)
	}

	songs, err := e.history.ListByUser(userID, vibeHistoryLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}

	return e.recognizer.AnalyzeVibe(ctx, VibeLines(songs)), nil
}

// AnalyzeVibe describes an explicit list of "track by artist" lines.
func (e *StashEngine) AnalyzeVibe(ctx context.Context, lines []string) (string, error) {
	if e.recognizer == nil {
		return "", fmt.Errorf("%w: recognizer not initialized", shared.ErrServiceUnavailable)
	}
	return e.recognizer.AnalyzeVibe(ctx, lines), nil
}

// VibeLines formats songs as "track by artist" strings.
func VibeLines(songs []*models.Song) []string {
	lines := make([]string, 0, len(songs))
	for _, s := range songs {
		lines = append(lines, s.Track+" by "+s.Artist)
	}
	return lines
}
