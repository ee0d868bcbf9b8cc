package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/stash/internal/formatter"
	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/stats"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/urfave/cli/v3"
)

// statsHistoryLimit bounds how much history feeds the stats summary.
const statsHistoryLimit = 1000

func (r *Runner) renderHistory(songs []*models.Song) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "ID", "Track", "Artist", "Genre", "Playlist", "Stashed"})

	now := r.now()
	for i, s := range songs {
		tw.AppendRow(table.Row{
			i + 1,
			s.ID(),
			s.Track,
			s.Artist,
			s.GenreOrUnknown(),
			s.PlaylistName,
			humanize.RelTime(s.CreatedAt(), now, "ago", "from now"),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 7, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

// HistoryList prints the user's stashed songs, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireHistory(); err != nil {
		return err
	}
	userID := r.currentUser(ctx, cmd)

	songs, err := r.history.ListByUser(userID, cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if cmd.Bool("json") {
		if songs == nil {
			songs = []*models.Song{}
		}
		return r.writeJSON(songs, true)
	}

	if len(songs) == 0 {
		return r.writePlain("No songs stashed yet.\n")
	}
	return r.writePlain("%s\n", r.renderHistory(songs))
}

// HistoryDelete removes one song from the user's history.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: song id is required", shared.ErrMissingArgument)
	}
	if err := r.requireHistory(); err != nil {
		return err
	}

	if err := r.history.DeleteForUser(r.currentUser(ctx, cmd), id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted %s\n", id)
}

// HistoryExport writes the user's full history to a file, or stdout with -o -.
func (r *Runner) HistoryExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.requireHistory(); err != nil {
		return err
	}

	songs, err := r.history.ListByUser(r.currentUser(ctx, cmd), 0)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	output := cmd.String("output")
	if output == "-" {
		return formatter.Write(r.output, format, songs)
	}

	result, err := formatter.WriteExport(format, songs, output)
	if err != nil {
		return err
	}

	r.logger.Info("history exported", "format", format, "songs", len(songs), "path", result.Path)
	r.writePlain("✓ Exported %d songs to %s\n", len(songs), result.Path)
	for _, f := range result.Files {
		r.writePlain("  %s\n", f)
	}
	return nil
}

// Stats prints the user's listening statistics.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireHistory(); err != nil {
		return err
	}
	userID := r.currentUser(ctx, cmd)

	songs, err := r.history.ListByUser(userID, statsHistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	summary := stats.Summarize(songs, r.now())

	if cmd.Bool("json") {
		return r.writeJSON(summary, true)
	}

	if cmd.Bool("card") {
		name := cmd.String("name")
		if name == "" {
			name = r.displayName(ctx, userID)
		}
		vibe := ""
		if r.engine != nil && len(songs) > 0 {
			if v, err := r.engine.Vibe(ctx, userID); err == nil {
				vibe = v
			} else {
				r.logger.Debug("vibe unavailable for card", "error", err)
			}
		}
		_, err := r.output.Write(formatter.StatsCard(summary, name, vibe))
		return err
	}

	r.writePlainHeader("Stash Stats")
	r.writePlain("Songs stashed: %s\n", humanize.Comma(int64(summary.Total)))
	r.writePlain("This week:     %s\n", humanize.Comma(int64(summary.ThisWeek)))
	r.writePlain("Streak:        %d day(s)\n", summary.Streak)

	if len(summary.Genres) > 0 {
		r.writePlainln("Genres:")
		for _, g := range summary.Genres {
			r.writePlain("  %-14s %s %3d%%\n", g.Name, formatter.Bar(g.Value, 20), g.Value)
		}
	}

	if len(summary.TopArtists) > 0 {
		r.writePlainln("Top artists:")
		for i, a := range summary.TopArtists {
			r.writePlain("  %d. %s (%d)\n", i+1, a.Name, a.Count)
		}
	}

	r.writePlainln("Achievements:")
	for _, a := range summary.Achievements {
		mark := "○"
		if a.Unlocked {
			mark = "✓"
		}
		r.writePlain("  %s %-16s %d/%d\n", mark, a.Title, a.Current, a.Target)
	}
	return nil
}

// displayName is the Spotify display name when logged in, else the user id.
func (r *Runner) displayName(ctx context.Context, userID string) string {
	if r.spotify != nil && r.spotify.IsAuthenticated() {
		if user, err := r.spotify.CurrentUser(ctx); err == nil && user.DisplayName != "" {
			return user.DisplayName
		}
	}
	return userID
}

// PrefsShow prints the user's preferences.
func (r *Runner) PrefsShow(ctx context.Context, cmd *cli.Command) error {
	if err := r.requirePreferences(); err != nil {
		return err
	}
	prefs, err := r.prefs.Get(r.currentUser(ctx, cmd))
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}
	r.writePreferences(prefs)
	return nil
}

func (r *Runner) writePreferences(prefs *models.Preferences) {
	playlist := prefs.DefaultPlaylistID
	switch playlist {
	case models.LikedSongsID:
		playlist = models.LikedSongsName
	case models.SmartSortID:
		playlist = models.SmartSortName
	}

	r.writePlain("User:             %s\n", prefs.UserID)
	r.writePlain("Auto-add top:     %s\n", strconv.FormatBool(prefs.AutoAddTopMatch))
	r.writePlain("Default playlist: %s\n", playlist)
	r.writePlain("Theme:            %s\n", prefs.Theme)
}

// PrefsSet updates only the preferences whose flags were given.
func (r *Runner) PrefsSet(ctx context.Context, cmd *cli.Command) error {
	if err := r.requirePreferences(); err != nil {
		return err
	}
	prefs, err := r.prefs.Get(r.currentUser(ctx, cmd))
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	changed := false
	if cmd.IsSet("auto-add") {
		prefs.AutoAddTopMatch = cmd.Bool("auto-add")
		changed = true
	}
	if cmd.IsSet("playlist") {
		prefs.DefaultPlaylistID = strings.TrimSpace(cmd.String("playlist"))
		changed = true
	}
	if cmd.IsSet("theme") {
		prefs.Theme = models.Theme(strings.ToLower(cmd.String("theme")))
		changed = true
	}
	if !changed {
		return fmt.Errorf("%w: pass --auto-add, --playlist or --theme", shared.ErrMissingArgument)
	}

	if err := prefs.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
	}
	if err := r.prefs.Upsert(prefs); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}

	r.writePlain("✓ Preferences saved\n")
	r.writePreferences(prefs)
	return nil
}
