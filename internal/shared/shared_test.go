package shared

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeTrackKey(t *testing.T) {
	tc := []struct {
		name   string
		title  string
		artist string
		want   string
	}{
		{
			name:   "basic normalization",
			title:  "Song Title",
			artist: "Artist Name",
			want:   "song title|artist name",
		},
		{
			name:   "extra whitespace",
			title:  "  Song   Title  ",
			artist: "  Artist   Name  ",
			want:   "song title|artist name",
		},
		{
			name:   "mixed case",
			title:  "SoNg TiTlE",
			artist: "ArTiSt NaMe",
			want:   "song title|artist name",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTrackKey(tt.title, tt.artist)
			if got != tt.want {
				t.Errorf("NormalizeTrackKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"track":"a"}`, want: `{"track":"a"}`},
		{name: "json fence", in: "```json\n{\"track\":\"a\"}\n```", want: `{"track":"a"}`},
		{name: "bare fence", in: "```\n{\"track\":\"a\"}\n```", want: `{"track":"a"}`},
		{name: "surrounding whitespace", in: "  \n```json {\"x\":1} ```  ", want: `{"x":1}`},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFence(tt.in); got != tt.want {
				t.Errorf("StripCodeFence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := GenerateState()

	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
	if a == b {
		t.Error("expected distinct state values")
	}
}

func TestValidateJSON(t *testing.T) {
	if err := ValidateJSON([]byte(`{"ok":true}`)); err != nil {
		t.Errorf("expected valid JSON, got %v", err)
	}
	if err := ValidateJSON([]byte(`{"ok":`)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	sqlite := &DB{Driver: DriverSQLite}
	pg := &DB{Driver: DriverPostgres}
	query := "SELECT * FROM history WHERE user_id = ? AND genre = '?' AND track = ?"

	if got := sqlite.Rebind(query); got != query {
		t.Errorf("sqlite query should be unchanged, got %q", got)
	}

	want := "SELECT * FROM history WHERE user_id = $1 AND genre = '?' AND track = $2"
	if got := pg.Rebind(query); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNewDatabase(t *testing.T) {
	t.Run("rejects unknown driver", func(t *testing.T) {
		if _, err := NewDatabase("mysql", "dsn"); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("defaults to sqlite", func(t *testing.T) {
		db, err := NewDatabase("", ":memory:")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer db.Close()

		if db.Driver != DriverSQLite {
			t.Errorf("expected sqlite driver, got %s", db.Driver)
		}
	})
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil) {
		t.Error("nil should not be a violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: users.spotify_id")) {
		t.Error("expected sqlite message to match")
	}
	if !IsUniqueViolation(errors.New(`pq: duplicate key value violates unique constraint "users_spotify_id_key"`)) {
		t.Error("expected postgres message to match")
	}
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stash-tui.log")

	logger, f, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hello from the tui")
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello from the tui") {
		t.Errorf("expected log line, got %q", data)
	}
}
