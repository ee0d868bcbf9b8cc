package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/stash/internal/shared"
	"github.com/urfave/cli/v3"
)

func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
			Sources: cli.EnvVars("STASH_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "user",
			Usage:   "User id to act for (defaults to the logged in Spotify account)",
			Sources: cli.EnvVars("STASH_USER"),
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
	}
}

func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:     "stash",
		Usage:    "Identify songs from shared video links and save them to Spotify",
		Version:  "0.1.0",
		Flags:    rootFlags(),
		Before:   r.bootstrap,
		After:    r.close,
		Commands: r.register(),
	}
}

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	if err := newApp(runner).Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
