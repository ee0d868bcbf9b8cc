package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/stash/internal/services"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthStatus reports the Spotify login state, or checks a remote backend's /
// endpoint when --remote is given.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if remote := cmd.String("remote"); remote != "" {
		r.logger.Info("checking backend status", "backend", remote)

		health, err := services.NewRemoteClient(remote, r.httpClient).Health(ctx)
		if err != nil {
			return err
		}
		r.writePlain("✓ Service is healthy\n")
		r.writePlain("Service: %s\n", health.Service)
		return r.writePlain("Status: %s\n", health.Status)
	}

	if r.spotify == nil {
		r.writePlain("Spotify: ✗ Not configured (set client_id and client_secret)\n")
		return fmt.Errorf("%w: Spotify credentials", shared.ErrMissingCredentials)
	}

	if !r.spotify.IsAuthenticated() {
		return r.writePlain("Spotify: ✗ Not authenticated (run 'stash auth spotify')\n")
	}

	user, err := r.spotify.CurrentUser(ctx)
	if err != nil {
		r.writePlain("Spotify: ✗ Token rejected\n")
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	r.writePlain("Spotify: ✓ Authenticated\n")
	r.writePlain("User:    %s (%s)\n", user.DisplayName, user.ID)
	if user.Product != "" {
		r.writePlain("Plan:    %s\n", user.Product)
	}
	return nil
}
