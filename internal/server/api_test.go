package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/services"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/stats"
	"github.com/desertthunder/stash/internal/tasks"
	tu "github.com/desertthunder/stash/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reel = "https://www.instagram.com/reel/abc123/"

type apiFixture struct {
	catalog    *tu.MockCatalog
	extractor  *tu.MockExtractor
	recognizer *tu.MockRecognizer
	library    *tu.MockLibrary
	history    *tu.MemoryHistory
	prefs      tu.MemoryPreferences
	engine     *tasks.StashEngine
	router     http.Handler
}

func newAPIFixture(t *testing.T, confidence float64) *apiFixture {
	t.Helper()
	f := &apiFixture{
		catalog: tu.NewMockCatalog(models.Match{
			ID: "t1", Track: "Song", Artist: "Band", SpotifyURI: "spotify:track:t1",
			SpotifyURL: "https://open.spotify.com/track/t1", AlbumArtURL: "https://i.scdn.co/image/1", Confidence: confidence,
		}),
		extractor:  &tu.MockExtractor{},
		recognizer: &tu.MockRecognizer{ID: &services.Identification{Track: "Song", Artist: "Band"}, Genre: "House", Vibe: "Late night house."},
		library: tu.NewMockLibrary(services.SpotifyTrack{
			ID: "t1", Name: "Song", URI: "spotify:track:t1", Artists: []services.SpotifyArtist{{Name: "Band"}},
		}),
		history: &tu.MemoryHistory{},
		prefs:   tu.MemoryPreferences{},
	}
	f.engine = tasks.NewStashEngine(f.catalog, f.extractor, f.recognizer,
		tasks.WithHistory(f.history),
		tasks.WithPreferences(f.prefs),
		tasks.WithLibrary(f.library.Factory()),
		tasks.WithTempDir(t.TempDir()),
	)
	t.Cleanup(f.engine.Wait)

	api := NewAPI(APIOpts{
		Engine:      f.engine,
		History:     f.history,
		Preferences: f.prefs,
		Library:     f.library.Factory(),
		Now:         func() time.Time { return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC) },
	})
	f.router = api.Router([]string{"https://stash.example"})
	return f
}

func (f *apiFixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func waitForJob(t *testing.T, f *apiFixture, id string, done func(tasks.JobStatus) bool) tasks.JobStatus {
	t.Helper()
	var job tasks.JobStatus
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/stash/"+id, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
			return false
		}
		return done(job)
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, 0.99)

	rec := f.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[services.HealthResponse](t, rec)
	assert.Equal(t, "online", body.Status)
	assert.Equal(t, "stash", body.Service)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/nope", nil).Code)
}

func TestRecognizeEndpoint(t *testing.T) {
	t.Run("Match", func(t *testing.T) {
		f := newAPIFixture(t, 0.99)

		rec := f.do(t, http.MethodPost, "/recognize", services.RecognizeRequest{URL: reel})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody[services.RecognizeResponse](t, rec)
		assert.True(t, body.Success)
		assert.Equal(t, "Song", body.Track)
		assert.Equal(t, "Band", body.Artist)
		assert.Equal(t, "https://i.scdn.co/image/1", body.AlbumArt)
		assert.Equal(t, "spotify:track:t1", body.SpotifyURI)
		assert.InDelta(t, 0.99, body.Confidence, 0.001)
	})

	t.Run("Not On Spotify", func(t *testing.T) {
		f := newAPIFixture(t, 0.99)
		f.recognizer.ID = &services.Identification{Track: "Demo", Artist: "Nobody"}

		rec := f.do(t, http.MethodPost, "/recognize", services.RecognizeRequest{URL: reel})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody[services.RecognizeResponse](t, rec)
		assert.False(t, body.Success)
		assert.Equal(t, tasks.NotOnSpotifyMessage, body.Error)
	})

	t.Run("Bad Body", func(t *testing.T) {
		f := newAPIFixture(t, 0.99)

		rec := f.do(t, http.MethodPost, "/recognize", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, decodeBody[services.ErrorResponse](t, rec).Detail)
	})

	t.Run("Pipeline Failure", func(t *testing.T) {
		f := newAPIFixture(t, 0.99)
		f.recognizer.Err = shared.ErrRecognitionFailed

		rec := f.do(t, http.MethodPost, "/recognize", services.RecognizeRequest{URL: reel})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, decodeBody[services.ErrorResponse](t, rec).Detail, "could not identify song")
	})

	t.Run("Wrong Method", func(t *testing.T) {
		f := newAPIFixture(t, 0.99)

		rec := f.do(t, http.MethodGet, "/recognize", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, "POST", rec.Header().Get("Allow"))
	})
}

func TestSaveTrackEndpoint(t *testing.T) {
	f := newAPIFixture(t, 0.99)

	rec := f.do(t, http.MethodPost, "/save_track", services.SaveTrackRequest{Token: "tok", TrackID: "t1", PlaylistID: models.SmartSortID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody[services.SaveTrackResponse](t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, "Stash: House", body.PlaylistName)
	assert.Equal(t, "House", body.Genre)
	assert.Equal(t, []string{"Stash: House"}, f.library.Created)

	rec = f.do(t, http.MethodPost, "/save_track", services.SaveTrackRequest{Token: "tok", TrackID: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyzeVibeEndpoint(t *testing.T) {
	f := newAPIFixture(t, 0.99)

	rec := f.do(t, http.MethodPost, "/analyze_vibe", services.VibeRequest{Songs: []string{"Song by Band"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Late night house.", decodeBody[services.VibeResponse](t, rec).Vibe)

	rec = f.do(t, http.MethodPost, "/analyze_vibe", services.VibeRequest{})
	assert.Equal(t, services.EmptyVibe, decodeBody[services.VibeResponse](t, rec).Vibe)
}

func TestStashEndpoints(t *testing.T) {
	t.Run("Confident Match", func(t *testing.T) {
		f := newAPIFixture(t, 0.99)

		rec := f.do(t, http.MethodPost, "/stash", StashRequest{UserID: "user", URL: reel})
		require.Equal(t, http.StatusAccepted, rec.Code)
		job := decodeBody[tasks.JobStatus](t, rec)
		require.NotEmpty(t, job.ID)

		done := waitForJob(t, f, job.ID, func(j tasks.JobStatus) bool { return j.Phase == "success" })
		assert.Equal(t, 100, done.Progress)
		require.NotNil(t, done.Song)
		assert.Equal(t, "Song", done.Song.Track)
	})

	t.Run("Duplicate Pending", func(t *testing.T) {
		f := newAPIFixture(t, 0.99)
		f.extractor.Block = make(chan struct{})

		first := decodeBody[tasks.JobStatus](t, f.do(t, http.MethodPost, "/stash", StashRequest{UserID: "user", URL: reel}))

		rec := f.do(t, http.MethodPost, "/stash", StashRequest{UserID: "user", URL: reel})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, first.ID, decodeBody[tasks.JobStatus](t, rec).ID)

		close(f.extractor.Block)
		waitForJob(t, f, first.ID, func(j tasks.JobStatus) bool { return j.Phase == "success" })
	})

	t.Run("Confirm Flow", func(t *testing.T) {
		f := newAPIFixture(t, 0.7)

		job := decodeBody[tasks.JobStatus](t, f.do(t, http.MethodPost, "/stash", StashRequest{UserID: "user", URL: reel}))
		waitForJob(t, f, job.ID, func(j tasks.JobStatus) bool { return j.Phase == "confirming" })

		rec := f.do(t, http.MethodPost, "/stash/"+job.ID+"/confirm", ConfirmRequest{Index: 0})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "success", decodeBody[tasks.JobStatus](t, rec).Phase)

		rec = f.do(t, http.MethodPost, "/stash/"+job.ID+"/confirm", ConfirmRequest{Index: 0})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Cancel", func(t *testing.T) {
		f := newAPIFixture(t, 0.7)

		job := decodeBody[tasks.JobStatus](t, f.do(t, http.MethodPost, "/stash", StashRequest{UserID: "user", URL: reel}))
		waitForJob(t, f, job.ID, func(j tasks.JobStatus) bool { return j.Phase == "confirming" })

		rec := f.do(t, http.MethodPost, "/stash/"+job.ID+"/cancel", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "idle", decodeBody[tasks.JobStatus](t, rec).Phase)
		assert.Zero(t, f.history.Len())
	})

	t.Run("Unknown Job", func(t *testing.T) {
		f := newAPIFixture(t, 0.99)
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/stash/missing", nil).Code)
	})

	t.Run("Missing User", func(t *testing.T) {
		f := newAPIFixture(t, 0.99)
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/stash", StashRequest{URL: reel}).Code)
	})

	t.Run("Jobs For User", func(t *testing.T) {
		f := newAPIFixture(t, 0.99)

		job := decodeBody[tasks.JobStatus](t, f.do(t, http.MethodPost, "/stash", StashRequest{UserID: "user", URL: reel}))
		waitForJob(t, f, job.ID, func(j tasks.JobStatus) bool { return j.Phase == "success" })

		jobs := decodeBody[[]tasks.JobStatus](t, f.do(t, http.MethodGet, "/stash?user_id=user", nil))
		require.Len(t, jobs, 1)
		assert.Equal(t, job.ID, jobs[0].ID)
	})
}

func TestShareEndpoint(t *testing.T) {
	f := newAPIFixture(t, 0.99)

	rec := f.do(t, http.MethodGet, "/share?user_id=user&text="+strings.ReplaceAll("listen "+reel, " ", "%20"), nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	job := decodeBody[tasks.JobStatus](t, rec)
	assert.Equal(t, reel, job.URL)
	waitForJob(t, f, job.ID, func(j tasks.JobStatus) bool { return j.Phase == "success" })

	rec = f.do(t, http.MethodGet, "/share?user_id=user&text=nothing", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShareEndpointPrefersText(t *testing.T) {
	f := newAPIFixture(t, 0.99)

	q := url.Values{}
	q.Set("user_id", "user")
	q.Set("text", "listen "+reel)
	q.Set("url", "https://example.com/page")
	q.Set("title", "https://example.com/title")

	rec := f.do(t, http.MethodGet, "/share?"+q.Encode(), nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	job := decodeBody[tasks.JobStatus](t, rec)
	assert.Equal(t, reel, job.URL)
	waitForJob(t, f, job.ID, func(j tasks.JobStatus) bool { return j.Phase == "success" })

	q.Set("text", "no link here")
	rec = f.do(t, http.MethodGet, "/share?"+q.Encode(), nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "https://example.com/page", decodeBody[tasks.JobStatus](t, rec).URL)
}

func TestHistoryEndpoints(t *testing.T) {
	f := newAPIFixture(t, 0.99)
	for _, track := range []string{"One", "Two"} {
		song := models.NewSong("user", models.Match{Track: track, Artist: "Band"}, reel, shared.SourceInstagram)
		require.NoError(t, f.history.Create(song))
	}
	require.NoError(t, f.history.Create(models.NewSong("other", models.Match{Track: "Three", Artist: "Band"}, reel, "")))

	rec := f.do(t, http.MethodGet, "/history?user_id=user", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var songs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &songs))
	assert.Len(t, songs, 2)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/history", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/history?user_id=user&limit=x", nil).Code)

	id := f.history.Songs[0].ID()
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/history/"+id+"?user_id=other", nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/history/"+id+"?user_id=user", nil).Code)
	assert.Equal(t, 2, f.history.Len())
}

func TestPreferencesEndpoints(t *testing.T) {
	f := newAPIFixture(t, 0.99)

	rec := f.do(t, http.MethodGet, "/preferences?user_id=user", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prefs := decodeBody[models.Preferences](t, rec)
	assert.Equal(t, models.LikedSongsID, prefs.DefaultPlaylistID)
	assert.False(t, prefs.AutoAddTopMatch)

	rec = f.do(t, http.MethodPut, "/preferences?user_id=user", `{"auto_add_top_match": true, "theme": "light"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	prefs = decodeBody[models.Preferences](t, rec)
	assert.True(t, prefs.AutoAddTopMatch)
	assert.Equal(t, models.ThemeLight, prefs.Theme)
	assert.Equal(t, models.LikedSongsID, prefs.DefaultPlaylistID, "omitted fields are unchanged")

	stored, err := f.prefs.Get("user")
	require.NoError(t, err)
	assert.True(t, stored.AutoAddTopMatch)

	rec = f.do(t, http.MethodPut, "/preferences?user_id=user", `{"theme": "neon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	f := newAPIFixture(t, 0.99)
	song := models.NewSong("user", models.Match{Track: "One", Artist: "Band"}, reel, "")
	song.Genre = "House"
	song.SetCreatedAt(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	require.NoError(t, f.history.Create(song))

	rec := f.do(t, http.MethodGet, "/stats?user_id=user", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	summary := decodeBody[stats.Summary](t, rec)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Streak)
	assert.Equal(t, "House", summary.TopGenre())
	assert.True(t, summary.Achievements[0].Unlocked)
}

func TestPlaylistsEndpoint(t *testing.T) {
	f := newAPIFixture(t, 0.99)
	f.library.Playlists = []services.SpotifyPlaylist{{ID: "p1", Name: "Road Trip"}}

	rec := f.do(t, http.MethodGet, "/playlists?token=tok", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	playlists := decodeBody[[]services.Playlist](t, rec)
	require.Len(t, playlists, 3)
	assert.Equal(t, models.LikedSongsID, playlists[0].ID)
	assert.Equal(t, models.SmartSortID, playlists[1].ID)
	assert.Equal(t, "Road Trip", playlists[2].Name)
}

func TestMiddleware(t *testing.T) {
	t.Run("CORS Preflight", func(t *testing.T) {
		f := newAPIFixture(t, 0.99)

		req := httptest.NewRequest(http.MethodOptions, "/recognize", nil)
		req.Header.Set("Origin", "https://stash.example")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://stash.example", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("CORS Unknown Origin", func(t *testing.T) {
		f := newAPIFixture(t, 0.99)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Recovery", func(t *testing.T) {
		r := NewBasicRouter()
		r.Use(Recovery(shared.NewLogger(&bytes.Buffer{})))
		r.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("Logging", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewBasicRouter()
		r.Use(Logging(shared.NewLogger(&buf)))
		r.Handle(http.MethodGet, "/teapot", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))
		assert.Contains(t, buf.String(), "/teapot")
		assert.Contains(t, buf.String(), "418")
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.ErrInvalidInput, http.StatusBadRequest},
		{shared.ErrNotAuthenticated, http.StatusUnauthorized},
		{shared.ErrJobNotFound, http.StatusNotFound},
		{shared.ErrSongNotFound, http.StatusNotFound},
		{shared.ErrNotConfirming, http.StatusConflict},
		{shared.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{shared.ErrDownloadFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}
