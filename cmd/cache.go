package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/stash/internal/shared"
	"github.com/urfave/cli/v3"
)

// CachePurge deletes cached recognitions older than --older-than.
func (r *Runner) CachePurge(ctx context.Context, cmd *cli.Command) error {
	if r.cache == nil {
		return fmt.Errorf("%w: recognition cache not initialized (run 'stash setup database')", shared.ErrServiceUnavailable)
	}

	age := cmd.Duration("older-than")
	if age < 0 {
		return fmt.Errorf("%w: --older-than cannot be negative", shared.ErrInvalidFlag)
	}

	n, err := r.cache.Purge(age)
	if err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}

	r.logger.Info("purged recognition cache", "entries", n, "older_than", age)
	return r.writePlain("✓ Removed %d cached recognitions\n", n)
}
