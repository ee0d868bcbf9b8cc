package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/services"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/tasks"
	tu "github.com/desertthunder/stash/internal/testing"
	"github.com/urfave/cli/v3"
)

const testLink = "https://www.instagram.com/reel/abc123/"

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type cliFixture struct {
	runner  *Runner
	output  *bytes.Buffer
	history *tu.MemoryHistory
	prefs   tu.MemoryPreferences
	library *tu.MockLibrary
}

// newCLIFixture wires a runner whose engine hears "Song by Band" and finds it
// on Spotify with the given confidence.
func newCLIFixture(t *testing.T, confidence float64, input string) *cliFixture {
	t.Helper()
	f := &cliFixture{
		output:  &bytes.Buffer{},
		history: &tu.MemoryHistory{},
		prefs:   tu.MemoryPreferences{},
		library: tu.NewMockLibrary(services.SpotifyTrack{
			ID:      "t1",
			Name:    "Song",
			Artists: []services.SpotifyArtist{{Name: "Band"}},
			URI:     "spotify:track:t1",
		}),
	}

	logger := log.New(io.Discard)
	engine := tasks.NewStashEngine(
		tu.NewMockCatalog(models.Match{ID: "t1", Track: "Song", Artist: "Band", SpotifyURI: "spotify:track:t1", Confidence: confidence}),
		&tu.MockExtractor{},
		&tu.MockRecognizer{ID: &services.Identification{Track: "Song", Artist: "Band"}, Genre: "Pop", Vibe: "Sunny pop energy."},
		tasks.WithHistory(f.history),
		tasks.WithPreferences(f.prefs),
		tasks.WithLibrary(f.library.Factory()),
		tasks.WithTempDir(t.TempDir()),
		tasks.WithLogger(logger),
	)
	t.Cleanup(engine.Wait)

	f.runner = NewRunner(RunnerOpts{
		Engine:      engine,
		History:     f.history,
		Preferences: f.prefs,
		Logger:      logger,
		Output:      f.output,
		Input:       strings.NewReader(input),
		UserID:      "u1",
		Now:         func() time.Time { return testNow },
	})
	return f
}

// run executes args against the real command tree without the bootstrap hooks.
func (f *cliFixture) run(t *testing.T, args ...string) error {
	t.Helper()
	app := newApp(f.runner)
	app.Before = nil
	app.After = nil
	return app.Run(context.Background(), append([]string{"stash"}, args...))
}

func (f *cliFixture) seed(t *testing.T, track, genre string, age time.Duration) *models.Song {
	t.Helper()
	song := models.NewSong("u1", models.Match{Track: track, Artist: "Band", SpotifyURI: "spotify:track:" + track}, testLink, "Instagram")
	song.Genre = genre
	song.PlaylistName = models.LikedSongsName
	song.SetCreatedAt(testNow.Add(-age))
	if err := f.history.Create(song); err != nil {
		t.Fatalf("failed to seed history: %v", err)
	}
	return song
}

func TestRecognizeCommand(t *testing.T) {
	t.Run("prints matches", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		if err := f.run(t, "recognize", testLink); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "1. Band - Song") {
			t.Errorf("expected match listing, got %q", f.output.String())
		}
	})

	t.Run("json output", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		if err := f.run(t, "recognize", "--json", testLink); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var rec tasks.Recognition
		if err := json.Unmarshal(f.output.Bytes(), &rec); err != nil {
			t.Fatalf("expected JSON output, got %q: %v", f.output.String(), err)
		}
		if rec.Top().Track != "Song" {
			t.Errorf("expected top match Song, got %s", rec.Top().Track)
		}
		if rec.Source != "Instagram" {
			t.Errorf("expected Instagram source, got %s", rec.Source)
		}
	})

	t.Run("missing url", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		err := f.run(t, "recognize")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing argument error, got %v", err)
		}
	})

	t.Run("remote backend", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/recognize" {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode(services.NewRecognizeResponse(models.Match{Track: "Remote", Artist: "Act", SpotifyURL: "https://open.spotify.com/track/r1"}))
		}))
		defer srv.Close()

		f := newCLIFixture(t, 0.95, "")
		if err := f.run(t, "recognize", "--remote", srv.URL, testLink); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "Remote by Act") {
			t.Errorf("expected remote match, got %q", f.output.String())
		}
	})
}

func TestStashCommand(t *testing.T) {
	t.Run("confident match saves without asking", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		if err := f.run(t, "stash", testLink); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.history.Len() != 1 {
			t.Fatalf("expected 1 song in history, got %d", f.history.Len())
		}
		if len(f.library.Saved) != 1 || f.library.Saved[0] != "t1" {
			t.Errorf("expected t1 saved to Liked Songs, got %v", f.library.Saved)
		}
		if !strings.Contains(f.output.String(), "Stashed Song by Band to Liked Songs [Pop]") {
			t.Errorf("expected stash confirmation, got %q", f.output.String())
		}
	})

	t.Run("low confidence skipped", func(t *testing.T) {
		f := newCLIFixture(t, 0.5, "n\n")
		if err := f.run(t, "stash", testLink); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.history.Len() != 0 {
			t.Errorf("expected nothing saved, got %d", f.history.Len())
		}
		if !strings.Contains(f.output.String(), "Skipped.") {
			t.Errorf("expected skip message, got %q", f.output.String())
		}
	})

	t.Run("low confidence confirmed", func(t *testing.T) {
		f := newCLIFixture(t, 0.5, "1\n")
		if err := f.run(t, "stash", testLink); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.history.Len() != 1 {
			t.Errorf("expected 1 song in history, got %d", f.history.Len())
		}
	})

	t.Run("yes flag skips prompt", func(t *testing.T) {
		f := newCLIFixture(t, 0.5, "")
		if err := f.run(t, "stash", "--yes", testLink); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.history.Len() != 1 {
			t.Errorf("expected 1 song in history, got %d", f.history.Len())
		}
	})

	t.Run("auto-add preference skips prompt", func(t *testing.T) {
		f := newCLIFixture(t, 0.5, "")
		prefs := models.DefaultPreferences("u1")
		prefs.AutoAddTopMatch = true
		f.prefs.Upsert(prefs)

		if err := f.run(t, "stash", testLink); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.history.Len() != 1 {
			t.Errorf("expected 1 song in history, got %d", f.history.Len())
		}
	})
}

func TestSaveAndVibeCommands(t *testing.T) {
	t.Run("save to playlist", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		if err := f.run(t, "save", "--playlist", "p1", "spotify:track:t1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := f.library.Added["p1"]; len(got) != 1 || got[0] != "spotify:track:t1" {
			t.Errorf("expected t1 added to p1, got %v", got)
		}
	})

	t.Run("vibe", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		f.seed(t, "Song", "Pop", time.Hour)
		if err := f.run(t, "vibe"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if strings.TrimSpace(f.output.String()) != "Sunny pop energy." {
			t.Errorf("expected vibe, got %q", f.output.String())
		}
	})
}

func TestImportCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.txt")
	links := "# reels\n" + testLink + "\nhttps://youtu.be/xyz\n"
	if err := os.WriteFile(path, []byte(links), 0644); err != nil {
		t.Fatalf("failed to write links: %v", err)
	}

	t.Run("stashes every link", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		if err := f.run(t, "import", "--rate", "100", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.history.Len() != 2 {
			t.Errorf("expected 2 songs in history, got %d", f.history.Len())
		}
		if !strings.Contains(f.output.String(), "Stashed:     2") {
			t.Errorf("expected summary, got %q", f.output.String())
		}
	})

	t.Run("dry run reads stdin", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, links)
		if err := f.run(t, "import", "--dry-run", "--json", "--rate", "100", "-"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.history.Len() != 0 {
			t.Errorf("expected nothing saved on dry run, got %d", f.history.Len())
		}

		var summary tasks.ImportSummary
		if err := json.Unmarshal(f.output.Bytes(), &summary); err != nil {
			t.Fatalf("expected JSON summary, got %q: %v", f.output.String(), err)
		}
		if summary.Total != 2 || summary.Unconfirmed != 2 {
			t.Errorf("expected 2 unconfirmed, got %+v", summary)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		empty := filepath.Join(t.TempDir(), "empty.txt")
		os.WriteFile(empty, []byte("# nothing\n"), 0644)

		f := newCLIFixture(t, 0.95, "")
		err := f.run(t, "import", empty)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected invalid input error, got %v", err)
		}
	})
}

func TestHistoryCommands(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		f.seed(t, "Older", "Pop", 2*time.Hour)
		f.seed(t, "Newer", "House", time.Hour)

		if err := f.run(t, "history", "list"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := f.output.String()
		if strings.Index(out, "Newer") > strings.Index(out, "Older") {
			t.Errorf("expected newest first, got:\n%s", out)
		}
		if !strings.Contains(out, "1 hour ago") {
			t.Errorf("expected relative time, got:\n%s", out)
		}
	})

	t.Run("list empty", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		if err := f.run(t, "history", "list"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "No songs stashed yet") {
			t.Errorf("expected empty message, got %q", f.output.String())
		}
	})

	t.Run("list json", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		f.seed(t, "Song", "Pop", time.Hour)
		if err := f.run(t, "history", "list", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var songs []*models.Song
		if err := json.Unmarshal(f.output.Bytes(), &songs); err != nil {
			t.Fatalf("expected JSON output: %v", err)
		}
		if len(songs) != 1 || songs[0].Track != "Song" {
			t.Errorf("expected one song, got %v", songs)
		}
	})

	t.Run("delete", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		song := f.seed(t, "Song", "Pop", time.Hour)

		if err := f.run(t, "history", "delete", song.ID()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.history.Len() != 0 {
			t.Errorf("expected song removed, got %d", f.history.Len())
		}
	})

	t.Run("delete unknown", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		err := f.run(t, "history", "delete", "missing")
		if !errors.Is(err, shared.ErrSongNotFound) {
			t.Errorf("expected song not found, got %v", err)
		}
	})

	t.Run("delete another user's song", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		song := f.seed(t, "Song", "Pop", time.Hour)

		err := f.run(t, "--user", "someone-else", "history", "delete", song.ID())
		if !errors.Is(err, shared.ErrSongNotFound) {
			t.Errorf("expected song not found, got %v", err)
		}
		if f.history.Len() != 1 {
			t.Errorf("expected song kept, got %d", f.history.Len())
		}
	})

	t.Run("export to stdout", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		f.seed(t, "Song", "Pop", time.Hour)
		if err := f.run(t, "history", "export", "--format", "text", "-o", "-"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.HasPrefix(f.output.String(), "Stash history: 1 songs") {
			t.Errorf("expected text export, got %q", f.output.String())
		}
	})

	t.Run("export to file", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		f.seed(t, "Song", "Pop", time.Hour)
		path := filepath.Join(t.TempDir(), "history.csv")

		if err := f.run(t, "history", "export", "-o", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(tu.MustReadFile(t, path), "Song,Band,Pop") {
			t.Errorf("expected CSV row, got %q", tu.MustReadFile(t, path))
		}
	})

	t.Run("export unknown format", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		err := f.run(t, "history", "export", "--format", "xml")
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected invalid input error, got %v", err)
		}
	})

	t.Run("without a database", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Logger: log.New(io.Discard)})
		app := newApp(runner)
		app.Before, app.After = nil, nil

		err := app.Run(context.Background(), []string{"stash", "history", "list"})
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected service unavailable, got %v", err)
		}
	})
}

func TestStatsCommand(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		f.seed(t, "One", "House", time.Hour)
		f.seed(t, "Two", "House", 2*time.Hour)

		if err := f.run(t, "stats"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := f.output.String()
		for _, want := range []string{"Songs stashed: 2", "Streak:        1 day(s)", "House", "100%", "✓ First Stash"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in:\n%s", want, out)
			}
		}
	})

	t.Run("card", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		f.seed(t, "One", "House", time.Hour)

		if err := f.run(t, "stats", "--card", "--name", "ada"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := f.output.String()
		for _, want := range []string{"ADA'S STASH", `"Sunny pop energy."`, "March 14, 2025"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in:\n%s", want, out)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		f.seed(t, "One", "House", time.Hour)

		if err := f.run(t, "stats", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var summary struct {
			Total int `json:"total"`
		}
		if err := json.Unmarshal(f.output.Bytes(), &summary); err != nil {
			t.Fatalf("expected JSON: %v", err)
		}
		if summary.Total != 1 {
			t.Errorf("expected total 1, got %d", summary.Total)
		}
	})
}

func TestPrefsCommands(t *testing.T) {
	t.Run("show defaults", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		if err := f.run(t, "prefs", "show"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := f.output.String()
		if !strings.Contains(out, "Default playlist: Liked Songs") || !strings.Contains(out, "Theme:            dark") {
			t.Errorf("expected default preferences, got:\n%s", out)
		}
	})

	t.Run("set", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		if err := f.run(t, "prefs", "set", "--theme", "Light", "--playlist", "smart_sort", "--auto-add"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		saved, _ := f.prefs.Get("u1")
		if saved.Theme != models.ThemeLight {
			t.Errorf("expected light theme, got %s", saved.Theme)
		}
		if saved.DefaultPlaylistID != models.SmartSortID {
			t.Errorf("expected smart sort playlist, got %s", saved.DefaultPlaylistID)
		}
		if !saved.AutoAddTopMatch {
			t.Error("expected auto-add enabled")
		}
	})

	t.Run("set keeps unspecified fields", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		prefs := models.DefaultPreferences("u1")
		prefs.AutoAddTopMatch = true
		f.prefs.Upsert(prefs)

		if err := f.run(t, "prefs", "set", "--theme", "light"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		saved, _ := f.prefs.Get("u1")
		if !saved.AutoAddTopMatch {
			t.Error("expected auto-add to stay enabled")
		}
	})

	t.Run("invalid theme", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		err := f.run(t, "prefs", "set", "--theme", "neon")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected invalid flag error, got %v", err)
		}
	})

	t.Run("no flags", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		err := f.run(t, "prefs", "set")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing argument error, got %v", err)
		}
	})
}

type fakePurger struct {
	age time.Duration
	n   int64
}

func (p *fakePurger) Purge(age time.Duration) (int64, error) {
	p.age = age
	return p.n, nil
}

func TestCacheAndAuthCommands(t *testing.T) {
	t.Run("cache purge", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		purger := &fakePurger{n: 3}
		f.runner.cache = purger

		if err := f.run(t, "cache", "purge", "--older-than", "48h"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if purger.age != 48*time.Hour {
			t.Errorf("expected 48h, got %v", purger.age)
		}
		if !strings.Contains(f.output.String(), "Removed 3 cached recognitions") {
			t.Errorf("expected purge count, got %q", f.output.String())
		}
	})

	t.Run("cache purge without database", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		err := f.run(t, "cache", "purge")
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected service unavailable, got %v", err)
		}
	})

	t.Run("remote status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(services.HealthResponse{Status: "online", Service: "stash"})
		}))
		defer srv.Close()

		f := newCLIFixture(t, 0.95, "")
		if err := f.run(t, "auth", "status", "--remote", srv.URL); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "Status: online") {
			t.Errorf("expected status, got %q", f.output.String())
		}
	})

	t.Run("status without credentials", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		err := f.run(t, "auth", "status")
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected missing credentials error, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		path := filepath.Join(t.TempDir(), "config.toml")

		f.runner.configPath = path
		if err := f.run(t, "setup", "config"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)

		err := f.run(t, "setup", "config")
		if err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Errorf("expected already exists error, got %v", err)
		}
	})

	t.Run("database", func(t *testing.T) {
		f := newCLIFixture(t, 0.95, "")
		f.runner.db = tu.MustOpenDB(t)

		if err := f.run(t, "setup", "database"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "Database ready") {
			t.Errorf("expected ready message, got %q", f.output.String())
		}
	})
}

func TestCurrentUser(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{UserID: "u1"})
		var got string
		cmd := &cli.Command{
			Name:  "whoami",
			Flags: []cli.Flag{&cli.StringFlag{Name: "user"}},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				got = runner.currentUser(ctx, cmd)
				return nil
			},
		}
		if err := cmd.Run(context.Background(), []string{"whoami", "--user", "flagged"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got != "flagged" {
			t.Errorf("expected flagged, got %s", got)
		}
	})

	t.Run("runner user", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{UserID: "u1"})
		if got := runner.currentUser(context.Background(), nil); got != "u1" {
			t.Errorf("expected u1, got %s", got)
		}
	})

	t.Run("falls back to local", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		if got := runner.currentUser(context.Background(), nil); got != localUserID {
			t.Errorf("expected %s, got %s", localUserID, got)
		}
	})
}
