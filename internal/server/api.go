package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/services"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/stats"
	"github.com/desertthunder/stash/internal/tasks"
)

const (
	serviceName  = "stash"
	maxBodyBytes = 1 << 20
)

// HistoryStore is the history access the API needs (repositories.HistoryRepository).
type HistoryStore interface {
	ListByUser(userID string, limit int) ([]*models.Song, error)
	DeleteForUser(userID, id string) error
}

// PreferenceStore reads and writes per-user settings (repositories.PreferencesRepository).
type PreferenceStore interface {
	Get(userID string) (*models.Preferences, error)
	Upsert(prefs *models.Preferences) error
}

// APIOpts contains the dependencies of [API].
type APIOpts struct {
	Engine      *tasks.StashEngine
	History     HistoryStore
	Preferences PreferenceStore
	Library     tasks.LibraryFactory
	Logger      *log.Logger
	Now         func() time.Time
}

// API serves the stash HTTP endpoints.
type API struct {
	engine  *tasks.StashEngine
	history HistoryStore
	prefs   PreferenceStore
	library tasks.LibraryFactory
	logger  *log.Logger
	now     func() time.Time
}

// NewAPI creates the API handlers.
func NewAPI(opts APIOpts) *API {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &API{
		engine:  opts.Engine,
		history: opts.History,
		prefs:   opts.Preferences,
		library: opts.Library,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// Router builds a [BasicRouter] with recovery, CORS and logging middleware and
// every API route registered.
func (a *API) Router(origins []string) *BasicRouter {
	r := NewBasicRouter()
	r.Use(Recovery(a.logger), CORS(origins), Logging(a.logger))
	a.Register(r)
	return r
}

// Register adds the API routes to r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodGet, "/{$}", http.HandlerFunc(a.health))
	r.Handle(http.MethodPost, "/recognize", http.HandlerFunc(a.recognize))
	r.Handle(http.MethodPost, "/save_track", http.HandlerFunc(a.saveTrack))
	r.Handle(http.MethodPost, "/analyze_vibe", http.HandlerFunc(a.analyzeVibe))

	r.Handle(http.MethodPost, "/stash", http.HandlerFunc(a.submit))
	r.Handle(http.MethodGet, "/stash", http.HandlerFunc(a.jobs))
	r.Handle(http.MethodGet, "/stash/{id}", http.HandlerFunc(a.status))
	r.Handle(http.MethodPost, "/stash/{id}/confirm", http.HandlerFunc(a.confirm))
	r.Handle(http.MethodPost, "/stash/{id}/cancel", http.HandlerFunc(a.cancel))
	r.Handle(http.MethodGet, "/share", http.HandlerFunc(a.share))

	r.Handle(http.MethodGet, "/history", http.HandlerFunc(a.listHistory))
	r.Handle(http.MethodDelete, "/history/{id}", http.HandlerFunc(a.deleteHistory))
	r.Handle(http.MethodGet, "/preferences", http.HandlerFunc(a.getPreferences))
	r.Handle(http.MethodPut, "/preferences", http.HandlerFunc(a.putPreferences))
	r.Handle(http.MethodGet, "/stats", http.HandlerFunc(a.stats))
	r.Handle(http.MethodGet, "/playlists", http.HandlerFunc(a.playlists))
}

// StashRequest is the body of POST /stash.
type StashRequest struct {
	UserID     string `json:"user_id"`
	URL        string `json:"url"`
	Token      string `json:"token,omitempty"`
	PlaylistID string `json:"playlist_id,omitempty"`
}

// ConfirmRequest is the body of POST /stash/{id}/confirm.
type ConfirmRequest struct {
	Index int `json:"index"`
}

// PreferencesUpdate is the body of PUT /preferences. Omitted fields are unchanged.
type PreferencesUpdate struct {
	AutoAddTopMatch   *bool   `json:"auto_add_top_match,omitempty"`
	DefaultPlaylistID *string `json:"default_playlist_id,omitempty"`
	Theme             *string `json:"theme,omitempty"`
}

// Apply copies the set fields onto prefs.
func (u PreferencesUpdate) Apply(prefs *models.Preferences) {
	if u.AutoAddTopMatch != nil {
		prefs.AutoAddTopMatch = *u.AutoAddTopMatch
	}
	if u.DefaultPlaylistID != nil {
		prefs.DefaultPlaylistID = *u.DefaultPlaylistID
	}
	if u.Theme != nil {
		prefs.Theme = models.Theme(*u.Theme)
	}
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, services.HealthResponse{Status: "online", Service: serviceName})
}

func (a *API) recognize(w http.ResponseWriter, r *http.Request) {
	var req services.RecognizeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if a.engine == nil {
		a.fail(w, fmt.Errorf("%w: recognition engine not initialized", shared.ErrServiceUnavailable))
		return
	}

	rec, err := a.engine.Recognize(r.Context(), req.URL, nil)
	if errors.Is(err, shared.ErrNotOnSpotify) {
		writeJSON(w, http.StatusOK, services.RecognizeResponse{Success: false, Error: tasks.NotOnSpotifyMessage})
		return
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, services.NewRecognizeResponse(rec.Top()))
}

func (a *API) saveTrack(w http.ResponseWriter, r *http.Request) {
	var req services.SaveTrackRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" {
		req.Token = bearerToken(r)
	}
	if a.engine == nil {
		a.fail(w, fmt.Errorf("%w: recognition engine not initialized", shared.ErrServiceUnavailable))
		return
	}

	res, err := a.engine.SaveTrack(r.Context(), req.Token, req.TrackID, req.PlaylistID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, services.SaveTrackResponse{
		Success:      true,
		PlaylistID:   res.PlaylistID,
		PlaylistName: res.PlaylistName,
		Genre:        res.Genre,
	})
}

func (a *API) analyzeVibe(w http.ResponseWriter, r *http.Request) {
	var req services.VibeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if a.engine == nil {
		a.fail(w, fmt.Errorf("%w: recognition engine not initialized", shared.ErrServiceUnavailable))
		return
	}

	vibe, err := a.engine.AnalyzeVibe(r.Context(), req.Songs)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, services.VibeResponse{Vibe: vibe})
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	var req StashRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" {
		req.Token = bearerToken(r)
	}
	a.startJob(w, r.Context(), req)
}

// share accepts a share-target GET and starts a job for the first link found.
func (a *API) share(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	link := shared.ExtractSharedURL(q.Get("text"), q.Get("url"), q.Get("title"))
	if link == "" {
		writeError(w, http.StatusBadRequest, "no link found in shared content")
		return
	}
	a.startJob(w, r.Context(), StashRequest{
		UserID:     q.Get("user_id"),
		URL:        link,
		Token:      bearerToken(r),
		PlaylistID: q.Get("playlist_id"),
	})
}

func (a *API) startJob(w http.ResponseWriter, ctx context.Context, req StashRequest) {
	if a.engine == nil {
		a.fail(w, fmt.Errorf("%w: recognition engine not initialized", shared.ErrServiceUnavailable))
		return
	}

	var opts []tasks.SubmitOption
	if req.Token != "" {
		opts = append(opts, tasks.WithSpotifyToken(req.Token))
	}
	if req.PlaylistID != "" {
		opts = append(opts, tasks.WithPlaylist(req.PlaylistID))
	}

	job, err := a.engine.Submit(ctx, req.UserID, req.URL, opts...)
	if errors.Is(err, shared.ErrAlreadyPending) && job != nil {
		writeJSON(w, http.StatusConflict, job)
		return
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (a *API) jobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if a.engine == nil {
		a.fail(w, fmt.Errorf("%w: recognition engine not initialized", shared.ErrServiceUnavailable))
		return
	}
	jobs := a.engine.Jobs(userID)
	if jobs == nil {
		jobs = []*tasks.JobStatus{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	if a.engine == nil {
		a.fail(w, fmt.Errorf("%w: recognition engine not initialized", shared.ErrServiceUnavailable))
		return
	}
	job, err := a.engine.Status(r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *API) confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := decode(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if a.engine == nil {
		a.fail(w, fmt.Errorf("%w: recognition engine not initialized", shared.ErrServiceUnavailable))
		return
	}

	job, err := a.engine.Confirm(r.Context(), r.PathValue("id"), req.Index)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *API) cancel(w http.ResponseWriter, r *http.Request) {
	if a.engine == nil {
		a.fail(w, fmt.Errorf("%w: recognition engine not initialized", shared.ErrServiceUnavailable))
		return
	}
	job, err := a.engine.Cancel(r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *API) listHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if a.history == nil {
		a.fail(w, fmt.Errorf("%w: history store not initialized", shared.ErrServiceUnavailable))
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	songs, err := a.history.ListByUser(userID, limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	if songs == nil {
		songs = []*models.Song{}
	}
	writeJSON(w, http.StatusOK, songs)
}

func (a *API) deleteHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if a.history == nil {
		a.fail(w, fmt.Errorf("%w: history store not initialized", shared.ErrServiceUnavailable))
		return
	}
	if err := a.history.DeleteForUser(userID, r.PathValue("id")); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if a.prefs == nil {
		writeJSON(w, http.StatusOK, models.DefaultPreferences(userID))
		return
	}
	prefs, err := a.prefs.Get(userID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (a *API) putPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var update PreferencesUpdate
	if err := decode(w, r, &update); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if a.prefs == nil {
		a.fail(w, fmt.Errorf("%w: preference store not initialized", shared.ErrServiceUnavailable))
		return
	}

	prefs, err := a.prefs.Get(userID)
	if err != nil {
		a.fail(w, err)
		return
	}
	update.Apply(prefs)
	if err := prefs.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.prefs.Upsert(prefs); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if a.history == nil {
		a.fail(w, fmt.Errorf("%w: history store not initialized", shared.ErrServiceUnavailable))
		return
	}
	songs, err := a.history.ListByUser(userID, 0)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats.Summarize(songs, a.now()))
}

func (a *API) playlists(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if a.library == nil {
		a.fail(w, fmt.Errorf("%w: Spotify library not initialized", shared.ErrServiceUnavailable))
		return
	}
	lib := a.library(token)
	if lib == nil {
		a.fail(w, fmt.Errorf("%w: no Spotify session", shared.ErrNotAuthenticated))
		return
	}

	playlists, err := ListPlaylists(r.Context(), lib)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

// ListPlaylists returns every destination a track can be stashed to: Liked
// Songs, Smart Sort, then the user's playlists.
func ListPlaylists(ctx context.Context, lib services.Library) ([]services.Playlist, error) {
	out := []services.Playlist{
		{ID: models.LikedSongsID, Name: models.LikedSongsName},
		{ID: models.SmartSortID, Name: models.SmartSortName, Description: "Sort into Stash: <Genre> playlists"},
	}

	playlists, err := services.GetPlaylists(ctx, lib)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	out = append(out, playlists...)
	return out, nil
}

// fail logs err and writes it with the matching status code.
func (a *API) fail(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "status", status, "error", err)
	} else {
		a.logger.Debug("request rejected", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

// StatusFor maps an error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrJobNotFound),
		errors.Is(err, shared.ErrSongNotFound),
		errors.Is(err, shared.ErrTrackNotFound),
		errors.Is(err, shared.ErrPlaylistNotFound),
		errors.Is(err, shared.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrAlreadyPending), errors.Is(err, shared.ErrNotConfirming):
		return http.StatusConflict
	case errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return "", false
	}
	return userID, true
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty: %w", err)
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, services.ErrorResponse{Detail: detail})
}
