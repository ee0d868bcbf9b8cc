package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./stash.db" {
			t.Errorf("expected database path ./stash.db, got %s", config.Database.Path)
		}

		if config.Database.Driver != DriverSQLite {
			t.Errorf("expected driver %s, got %s", DriverSQLite, config.Database.Driver)
		}

		if config.Server.Port != 8080 {
			t.Errorf("expected server port 8080, got %d", config.Server.Port)
		}

		if config.Recognizer.ConfidenceThreshold != 0.90 {
			t.Errorf("expected confidence threshold 0.90, got %v", config.Recognizer.ConfidenceThreshold)
		}

		if config.Credentials.Gemini.Model != "gemini-2.0-flash" {
			t.Errorf("expected gemini model gemini-2.0-flash, got %s", config.Credentials.Gemini.Model)
		}

		if config.Credentials.Spotify.ClientID != "your_spotify_client_id" {
			t.Errorf("expected spotify client_id your_spotify_client_id, got %s", config.Credentials.Spotify.ClientID)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"
max_open_conns = 20
max_idle_conns = 10

[server]
host = "0.0.0.0"
port = 9090

[credentials.spotify]
client_id = "test_client_id"
client_secret = "test_secret"
redirect_uri = "http://localhost:9090/callback"

[recognizer]
confidence_threshold = 0.75
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 9090 {
			t.Errorf("expected server port 9090, got %d", config.Server.Port)
		}

		if config.Credentials.Spotify.ClientID != "test_client_id" {
			t.Errorf("expected spotify client_id test_client_id, got %s", config.Credentials.Spotify.ClientID)
		}

		if config.Recognizer.ConfidenceThreshold != 0.75 {
			t.Errorf("expected threshold 0.75, got %v", config.Recognizer.ConfidenceThreshold)
		}

		if config.Credentials.Gemini.Model != "gemini-2.0-flash" {
			t.Errorf("unset keys should keep defaults, got model %q", config.Credentials.Gemini.Model)
		}
	})

	t.Run("SaveConfig round trips tokens", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		config := DefaultConfig()
		expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

		if err := config.Credentials.Spotify.Update(&oauth2.Token{
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenType:    "Bearer",
			Expiry:       expiry,
		}); err != nil {
			t.Fatalf("unexpected update error: %v", err)
		}

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load saved config: %v", err)
		}

		token := loaded.Credentials.Spotify.Token()
		if token == nil {
			t.Fatal("expected token to be restored")
		}
		if token.AccessToken != "access" || token.RefreshToken != "refresh" {
			t.Errorf("unexpected token: %+v", token)
		}
		if !token.Expiry.Equal(expiry) {
			t.Errorf("expected expiry %v, got %v", expiry, token.Expiry)
		}
	})

	t.Run("Update rejects empty token", func(t *testing.T) {
		var sc SpotifyConfig
		if err := sc.Update(&oauth2.Token{}); err == nil {
			t.Error("expected error for empty token")
		}
		if sc.Token() != nil {
			t.Error("expected nil token when nothing stored")
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		t.Setenv("SPOTIFY_CLIENT_ID", "env-client")
		t.Setenv("GEMINI_API_KEY", "env-gemini")
		t.Setenv("PORT", "4321")
		t.Setenv("DATABASE_URL", "postgres://stash@localhost/stash?sslmode=disable")

		config := DefaultConfig()
		ApplyEnv(config)

		if config.Credentials.Spotify.ClientID != "env-client" {
			t.Errorf("expected env client id, got %s", config.Credentials.Spotify.ClientID)
		}
		if config.Credentials.Gemini.APIKey != "env-gemini" {
			t.Errorf("expected env gemini key, got %s", config.Credentials.Gemini.APIKey)
		}
		if config.Server.Port != 4321 {
			t.Errorf("expected port 4321, got %d", config.Server.Port)
		}
		if config.Database.Driver != DriverPostgres {
			t.Errorf("expected postgres driver, got %s", config.Database.Driver)
		}
		if config.Database.DSN() != "postgres://stash@localhost/stash?sslmode=disable" {
			t.Errorf("unexpected dsn %s", config.Database.DSN())
		}
	})

	t.Run("LoadEnv", func(t *testing.T) {
		envPath := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(envPath, []byte("STASH_TEST_ENV_VALUE=from-file\n"), 0600); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Cleanup(func() { os.Unsetenv("STASH_TEST_ENV_VALUE") })

		if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env"), envPath); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := os.Getenv("STASH_TEST_ENV_VALUE"); got != "from-file" {
			t.Errorf("expected from-file, got %q", got)
		}
	})
}
