package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/stash/internal/server"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// SpotifyAuth performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}

	token, err := r.doOAuth(ctx)
	if err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}
	r.spotify.UseToken(token)

	user, err := r.spotify.CurrentUser(ctx)
	if err != nil {
		r.logger.Warn("authorized but could not load Spotify profile", "error", err)
	} else if r.users != nil {
		if _, err := r.users.FindOrCreate(user.ID, user.DisplayName, user.Email); err != nil {
			r.logger.Warn("failed to record user", "error", err)
		}
	}

	r.writePlainln("✓ Authorization successful")
	if user != nil {
		r.writePlain("✓ Logged in as %s\n", user.DisplayName)
	}
	if r.configPath != "" {
		r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	}
	r.writePlain("You can now use: stash stash <url>\n")
	return nil
}

// callbackAddr is the host:port the redirect URI points at.
func (r *Runner) callbackAddr() string {
	if u, err := url.Parse(r.config.Credentials.Spotify.RedirectURI); err == nil && u.Host != "" {
		return u.Host
	}
	return r.config.Server.Addr()
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := r.spotify.GetAuthURL(state)
	oauthHandler := server.NewOAuthHandler(r.spotify, state).WithRedirectURI(r.config.Credentials.Spotify.RedirectURI)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	serverAddr := r.callbackAddr()
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server at %v", serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("no token received")
	}
	return result.Token, nil
}

// SpotifyPlaylists lists the playlists a song can be stashed into.
func (r *Runner) SpotifyPlaylists(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil || !r.spotify.IsAuthenticated() {
		return fmt.Errorf("%w: run 'stash auth spotify' first", shared.ErrNotAuthenticated)
	}

	playlists, err := server.ListPlaylists(ctx, r.spotify)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for _, p := range playlists {
		r.writePlain("%-24s %s", p.ID, p.Name)
		if p.TrackCount > 0 {
			r.writePlain(" (%d tracks)", p.TrackCount)
		}
		r.writePlain("\n")
	}
	return nil
}
