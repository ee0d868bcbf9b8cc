package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/stash/internal/services"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes a config file from the embedded template.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Config written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify.client_id/client_secret and credentials.gemini.api_key\n")
	r.writePlain("2. Run 'stash setup database'\n")
	r.writePlain("3. Run 'stash auth spotify'\n")
	return nil
}

// database returns the connection opened at startup, retrying once so setup
// can report the underlying error.
func (r *Runner) database() (*shared.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	dbc := r.config.Database
	db, err := shared.NewDatabase(dbc.Driver, dbc.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, dbc.MaxOpenConns, dbc.MaxIdleConns)
	r.db = db
	return db, nil
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}

	r.logger.Info("running database migrations", "driver", r.config.Database.Driver)
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Driver)
	return r.writePlain("✓ Database ready (%s)\n", r.config.Database.Driver)
}

// SetupRollback rolls back the most recent migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}
	if err := shared.RollbackMigration(db); err != nil {
		return err
	}
	return r.writePlain("✓ Rolled back latest migration\n")
}

// SetupCheck reports which external binaries and credentials are available.
func (r *Runner) SetupCheck(ctx context.Context, cmd *cli.Command) error {
	missing := 0

	extractor := r.extractor
	if extractor == nil {
		extractor = services.NewYtDlpExtractor()
	}

	r.writePlainHeader("Binaries")
	for _, b := range extractor.CheckBinaries() {
		switch {
		case b.Available:
			r.writePlain("✓ %-8s %s\n", b.Name, b.Command)
		case b.Optional:
			r.writePlain("○ %-8s %s (optional)\n", b.Name, b.Detail)
		default:
			r.writePlain("✗ %-8s %s\n", b.Name, b.Detail)
			missing++
		}
	}

	creds := r.config.Credentials
	r.writePlain("\n")
	r.writePlainHeader("Credentials")
	for _, c := range []struct {
		name string
		ok   bool
	}{
		{"Spotify app", creds.Spotify.ClientID != "" && creds.Spotify.ClientSecret != ""},
		{"Spotify login", creds.Spotify.AccessToken != "" || creds.Spotify.RefreshToken != ""},
		{"Gemini", creds.Gemini.APIKey != ""},
	} {
		if c.ok {
			r.writePlain("✓ %s\n", c.name)
		} else {
			r.writePlain("✗ %s\n", c.name)
			missing++
		}
	}

	r.writePlain("\n")
	r.writePlainHeader("Database")
	if r.db == nil {
		r.writePlain("✗ %s unavailable\n", r.config.Database.Driver)
		missing++
	} else if err := r.db.PingContext(ctx); err != nil {
		r.writePlain("✗ %s: %v\n", r.config.Database.Driver, err)
		missing++
	} else {
		r.writePlain("✓ %s\n", r.config.Database.Driver)
	}

	if missing > 0 {
		return fmt.Errorf("%w: %d check(s) failed", shared.ErrMissingCredentials, missing)
	}
	return nil
}
