package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/stash-tui.log"

// TUI launches the interactive history browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireHistory(); err != nil {
		return err
	}
	if err := r.requirePreferences(); err != nil {
		return err
	}
	userID := r.currentUser(ctx, cmd)

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, logFile, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer logFile.Close()
	r.SetLogger(fileLogger)

	model := ui.NewModel(userID, r.history, r.prefs, fileLogger)
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
