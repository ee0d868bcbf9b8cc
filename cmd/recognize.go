package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/services"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/tasks"
	"github.com/urfave/cli/v3"
)

// trackProgress prints engine updates until the returned stop func is called.
func (r *Runner) trackProgress() (chan tasks.ProgressUpdate, func()) {
	progressCh := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.Error:
				r.writePlain("✗ %s\n", update.Message)
			case tasks.Success, tasks.Confirming:
			default:
				r.writePlain("→ %s\n", update.Message)
			}
		}
	}()
	return progressCh, func() {
		close(progressCh)
		<-done
	}
}

func (r *Runner) writeMatches(matches []models.Match) {
	for i, m := range matches {
		r.writePlain("%d. %s - %s", i+1, m.Artist, m.Track)
		if m.Album != "" {
			r.writePlain(" (%s)", m.Album)
		}
		if m.Confidence > 0 {
			r.writePlain("  %.0f%%", m.Confidence*100)
		}
		r.writePlain("\n")
		if m.SpotifyURL != "" {
			r.writePlain("   %s\n", m.SpotifyURL)
		}
	}
}

// Recognize identifies the song in a link, locally or through a remote backend.
func (r *Runner) Recognize(ctx context.Context, cmd *cli.Command) error {
	link := cmd.StringArg("url")
	if link == "" {
		return fmt.Errorf("%w: url is required", shared.ErrMissingArgument)
	}

	if remote := cmd.String("remote"); remote != "" {
		r.logger.Debug("recognizing remotely", "backend", remote, "url", link)
		match, err := services.NewRemoteClient(remote, r.httpClient).Recognize(ctx, link)
		if err != nil {
			return err
		}
		if cmd.Bool("json") {
			return r.writeJSON(match, cmd.Bool("pretty"))
		}
		r.writePlain("✓ %s\n", match.Label())
		if match.SpotifyURL != "" {
			r.writePlain("  %s\n", match.SpotifyURL)
		}
		return nil
	}

	if err := r.requireEngine(); err != nil {
		return err
	}

	var rec *tasks.Recognition
	var err error
	if cmd.Bool("json") {
		rec, err = r.engine.Recognize(ctx, link, nil)
	} else {
		progressCh, stop := r.trackProgress()
		rec, err = r.engine.Recognize(ctx, link, progressCh)
		stop()
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(rec, cmd.Bool("pretty"))
	}

	r.writePlainln("Found on Spotify (%s, %s):", rec.Source, rec.Method)
	r.writeMatches(rec.Matches)
	return nil
}

// Stash identifies the song in a link and saves it. Matches below the
// confidence threshold are confirmed interactively unless --yes is set.
func (r *Runner) Stash(ctx context.Context, cmd *cli.Command) error {
	link := cmd.StringArg("url")
	if link == "" {
		return fmt.Errorf("%w: url is required", shared.ErrMissingArgument)
	}
	if err := r.requireEngine(); err != nil {
		return err
	}

	userID := r.currentUser(ctx, cmd)

	progressCh, stop := r.trackProgress()
	rec, err := r.engine.Recognize(ctx, link, progressCh)
	stop()
	if err != nil {
		return err
	}

	prefs := r.loadPreferences(userID)
	match := rec.Top()
	if !cmd.Bool("yes") && !tasks.ShouldAutoAdd(prefs, match, r.engine.Threshold()) {
		var ok bool
		if match, ok = r.chooseMatch(r.engine.Candidates(ctx, rec)); !ok {
			r.writePlain("Skipped.\n")
			return nil
		}
	}

	song, err := r.engine.Stash(ctx, tasks.StashRequest{
		UserID:     userID,
		Link:       rec.URL,
		Match:      match,
		PlaylistID: cmd.String("playlist"),
	})
	if err != nil {
		if song == nil {
			return err
		}
		r.logger.Warn("song saved but not recorded", "error", err)
	}

	r.writePlain("✓ Stashed %s to %s [%s]\n", match.Label(), song.PlaylistName, song.GenreOrUnknown())
	return nil
}

func (r *Runner) loadPreferences(userID string) *models.Preferences {
	if r.prefs == nil {
		return models.DefaultPreferences(userID)
	}
	prefs, err := r.prefs.Get(userID)
	if err != nil {
		r.logger.Warn("failed to load preferences, using defaults", "error", err)
		return models.DefaultPreferences(userID)
	}
	return prefs
}

// chooseMatch asks which candidate to save. Empty input picks the first.
func (r *Runner) chooseMatch(matches []models.Match) (models.Match, bool) {
	r.writePlainln("Confirm the song:")
	r.writeMatches(matches)
	r.writePlain("\nSave which? [1-%d, enter for 1, n to skip]: ", len(matches))

	scanner := bufio.NewScanner(r.input)
	if !scanner.Scan() {
		return models.Match{}, false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	switch answer {
	case "":
		return matches[0], true
	case "n", "no", "q":
		return models.Match{}, false
	}

	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(matches) {
		r.writePlain("Invalid choice %q.\n", answer)
		return models.Match{}, false
	}
	return matches[n-1], true
}

// Save adds a Spotify track to a playlist, locally or through a remote backend.
func (r *Runner) Save(ctx context.Context, cmd *cli.Command) error {
	trackID := strings.TrimPrefix(cmd.StringArg("track-id"), "spotify:track:")
	if trackID == "" {
		return fmt.Errorf("%w: track id is required", shared.ErrMissingArgument)
	}
	playlistID := cmd.String("playlist")

	if remote := cmd.String("remote"); remote != "" {
		token, err := r.accessToken()
		if err != nil {
			return err
		}
		resp, err := services.NewRemoteClient(remote, r.httpClient).SaveTrack(ctx, services.SaveTrackRequest{
			Token:      token,
			TrackID:    trackID,
			PlaylistID: playlistID,
		})
		if err != nil {
			return err
		}
		r.writePlain("✓ Saved to %s [%s]\n", resp.PlaylistName, resp.Genre)
		return nil
	}

	if err := r.requireEngine(); err != nil {
		return err
	}
	if playlistID == "" {
		playlistID = r.loadPreferences(r.currentUser(ctx, cmd)).DefaultPlaylistID
	}

	result, err := r.engine.SaveTrack(ctx, "", trackID, playlistID)
	if err != nil {
		return err
	}
	r.writePlain("✓ Saved to %s [%s]\n", result.PlaylistName, result.Genre)
	return nil
}

// accessToken returns the logged in user's current Spotify access token.
func (r *Runner) accessToken() (string, error) {
	if r.spotify == nil || !r.spotify.IsAuthenticated() {
		return "", fmt.Errorf("%w: run 'stash auth spotify' first", shared.ErrNotAuthenticated)
	}
	token, err := r.spotify.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}
	return token.AccessToken, nil
}

// Vibe describes the user's recent stashes.
func (r *Runner) Vibe(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireEngine(); err != nil {
		return err
	}
	userID := r.currentUser(ctx, cmd)

	vibe, err := r.engine.Vibe(ctx, userID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(services.VibeResponse{Vibe: vibe}, false)
	}
	r.writePlain("%s\n", vibe)
	return nil
}
