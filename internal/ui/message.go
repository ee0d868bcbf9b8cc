package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/stash/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgHistoryFetched MsgKind = iota
	MsgSongDeleted
	MsgPreferencesLoaded
	MsgThemeSaved
)

type historyResult struct {
	songs []*models.Song
	err   error
}

type deleteResult struct {
	id  string
	err error
}

type preferencesResult struct {
	prefs *models.Preferences
	err   error
}

// historyFetchedMsg is the constructor for [MsgHistoryFetched]
func historyFetchedMsg(songs []*models.Song, err error) Msg {
	return Msg{kind: MsgHistoryFetched, data: historyResult{songs, err}}
}

// songDeletedMsg is the constructor for [MsgSongDeleted]
func songDeletedMsg(id string, err error) Msg {
	return Msg{kind: MsgSongDeleted, data: deleteResult{id, err}}
}

// preferencesLoadedMsg is the constructor for [MsgPreferencesLoaded]
func preferencesLoadedMsg(prefs *models.Preferences, err error) Msg {
	return Msg{kind: MsgPreferencesLoaded, data: preferencesResult{prefs, err}}
}

// themeSavedMsg is the constructor for [MsgThemeSaved]
func themeSavedMsg(err error) Msg {
	return Msg{kind: MsgThemeSaved, data: err}
}
