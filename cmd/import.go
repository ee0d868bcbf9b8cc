package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Import stashes every link in a file.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: file is required (use - for stdin)", shared.ErrMissingArgument)
	}
	if err := r.requireEngine(); err != nil {
		return err
	}

	var src io.Reader = r.input
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		src = f
	}

	links, err := tasks.ReadLinks(src)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return fmt.Errorf("%w: no links found in %s", shared.ErrInvalidInput, path)
	}

	opts := tasks.ImportOpts{
		PlaylistID: cmd.String("playlist"),
		Workers:    r.config.Import.Workers,
		RateLimit:  r.config.Import.RateLimit,
		AcceptTop:  cmd.Bool("accept-top"),
		DryRun:     cmd.Bool("dry-run"),
	}
	if w := cmd.Int("workers"); w > 0 {
		opts.Workers = w
	}
	if rl := cmd.Float("rate"); rl > 0 {
		opts.RateLimit = rl
	}

	userID := r.currentUser(ctx, cmd)
	useJSON := cmd.Bool("json")
	r.logger.Info("starting import", "links", len(links), "user", userID, "dry_run", opts.DryRun)

	var progressCh chan tasks.ProgressUpdate
	done := make(chan struct{})
	if !useJSON {
		r.writePlain("Importing %d links...\n\n", len(links))
		progressCh = make(chan tasks.ProgressUpdate, len(links))
		go func() {
			defer close(done)
			for update := range progressCh {
				r.writePlain("[%d/%d] %s\n", update.Step, update.Total, update.Message)
			}
		}()
	} else {
		close(done)
	}

	summary, err := r.engine.Import(ctx, userID, links, opts, progressCh)
	if progressCh != nil {
		close(progressCh)
	}
	<-done

	if err != nil && summary == nil {
		return err
	}
	if err != nil {
		r.logger.Warn("import interrupted", "error", err)
	}

	if useJSON {
		return r.writeJSON(summary, true)
	}

	r.writePlain("\n")
	r.writePlainHeader("Import Complete!")
	r.writePlain("Stashed:     %d\n", summary.Stashed)
	r.writePlain("Unconfirmed: %d\n", summary.Unconfirmed)
	r.writePlain("Failed:      %d\n", summary.Failed)

	if summary.Unconfirmed > 0 {
		r.writePlainln("Needs confirmation (run 'stash stash <url>'):")
		for _, res := range summary.Results {
			if res.Err == nil && res.Song == nil {
				label := "no match"
				if res.Match != nil {
					label = res.Match.Label()
				}
				r.writePlain("  - %s (%s)\n", res.URL, label)
			}
		}
	}

	if summary.Failed > 0 {
		r.writePlainln("Failed:")
		for _, res := range summary.Results {
			if res.Err != nil {
				r.writePlain("  - %s: %v\n", res.URL, res.Err)
			}
		}
	}

	return nil
}
