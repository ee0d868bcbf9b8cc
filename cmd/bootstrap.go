package main

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stash/internal/repositories"
	"github.com/desertthunder/stash/internal/services"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/tasks"
	"github.com/urfave/cli/v3"
)

const cacheTTL = 30 * 24 * time.Hour

// bootstrap loads configuration and wires the services, stores and engine
// before any command runs.
func (r *Runner) bootstrap(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("debug") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	if err := shared.LoadEnv(".env"); err != nil {
		r.logger.Warn("failed to load .env", "error", err)
	}

	r.configPath = cmd.String("config")
	config := shared.DefaultConfig()
	if _, err := os.Stat(r.configPath); err == nil {
		if loaded, err := shared.LoadConfig(r.configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "path", r.configPath, "error", err)
		} else {
			config = loaded
		}
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}
	shared.ApplyEnv(config)
	r.config = config

	r.openStores()
	r.openServices(ctx)
	return ctx, nil
}

// openStores connects to the configured database. Failures leave the stores
// unset so commands that need them report a clear error.
func (r *Runner) openStores() {
	dbc := r.config.Database
	db, err := shared.NewDatabase(dbc.Driver, dbc.DSN())
	if err != nil {
		r.logger.Warn("database unavailable", "driver", dbc.Driver, "error", err)
		return
	}
	shared.ConfigureDatabase(db, dbc.MaxOpenConns, dbc.MaxIdleConns)

	r.db = db
	r.history = repositories.NewHistoryRepository(db)
	r.prefs = repositories.NewPreferencesRepository(db)
	r.users = repositories.NewUserRepository(db)
	r.cache = repositories.NewRecognitionCache(db, cacheTTL)
}

func (r *Runner) openServices(ctx context.Context) {
	cfg := r.config
	logger := r.logger

	r.extractor = services.NewYtDlpExtractor(
		services.WithYtDlpBinary(cfg.Recognizer.YtDlpPath),
		services.WithFFmpegBinary(cfg.Recognizer.FFmpegPath),
	)

	opts := []tasks.EngineOption{
		tasks.WithLogger(logger),
		tasks.WithConfidenceThreshold(cfg.Recognizer.ConfidenceThreshold),
		tasks.WithTimeout(cfg.Recognizer.TimeoutDuration()),
	}
	if cfg.Recognizer.TempDir != "" {
		opts = append(opts, tasks.WithTempDir(cfg.Recognizer.TempDir))
	}
	if r.history != nil {
		opts = append(opts, tasks.WithHistory(r.history), tasks.WithPreferences(r.prefs))
	}
	if cache, ok := r.cache.(tasks.MatchCache); ok {
		opts = append(opts, tasks.WithCache(cache))
	}

	var catalog services.Catalog
	if spotify, err := services.NewSpotifyService(map[string]string{
		"client_id":     cfg.Credentials.Spotify.ClientID,
		"client_secret": cfg.Credentials.Spotify.ClientSecret,
		"redirect_uri":  cfg.Credentials.Spotify.RedirectURI,
	}); err == nil {
		spotify.UseToken(cfg.Credentials.Spotify.Token())
		r.spotify = spotify
		catalog = spotify
		opts = append(opts, tasks.WithLibrary(spotifyLibrary(spotify)))
	} else {
		logger.Debug("spotify unavailable", "error", err)
	}

	var recognizer services.Recognizer
	if gemini, err := services.NewGeminiRecognizer(ctx, cfg.Credentials.Gemini.APIKey,
		services.WithGeminiModel(cfg.Credentials.Gemini.Model),
	); err == nil {
		recognizer = gemini
	} else {
		logger.Debug("recognizer unavailable", "error", err)
	}

	r.engine = tasks.NewStashEngine(catalog, r.extractor, recognizer, opts...)
}

// spotifyLibrary acts for the owner of a request token, or for the CLI's
// logged in account when token is empty.
func spotifyLibrary(spotify *services.SpotifyService) tasks.LibraryFactory {
	return func(token string) services.Library {
		if token != "" {
			return spotify.WithAccessToken(token)
		}
		if spotify.IsAuthenticated() {
			return spotify
		}
		return nil
	}
}

// close releases the database and saves any refreshed Spotify token.
func (r *Runner) close(ctx context.Context, cmd *cli.Command) error {
	r.persistToken()
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// library is the factory the API uses to act for request tokens.
func (r *Runner) library() tasks.LibraryFactory {
	if r.spotify == nil {
		return nil
	}
	return spotifyLibrary(r.spotify)
}
