// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI browses a user's stash history:
//  1. [HistoryView] : Scroll stashed songs, newest first
//  2. [DetailView] : Playlist, source link and Spotify URL for one song
//  3. [StatsView] : Streak, genre bars, top artists and achievements
//  4. [DeleteView] : Confirm removing a song from history
//
// The [Model] loads history and preferences through the [HistoryStore] and
// [PreferenceStore] interfaces, receiving results via the Msg union type.
// Toggling the theme saves it to the user's preferences.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, d, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
