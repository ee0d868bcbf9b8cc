package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/stash/internal/formatter"
	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/stats"
	"github.com/dustin/go-humanize"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	HistoryView ViewState = iota
	DetailView
	StatsView
	DeleteView
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	statsBarWidth = 24
	statsGenres   = 5
)

// HistoryStore is the history access the TUI needs.
type HistoryStore interface {
	ListByUser(userID string, limit int) ([]*models.Song, error)
	DeleteForUser(userID, id string) error
}

// PreferenceStore reads and saves the theme preference.
type PreferenceStore interface {
	Get(userID string) (*models.Preferences, error)
	Upsert(prefs *models.Preferences) error
}

// Model represents the TUI application state.
type Model struct {
	view     ViewState
	previous ViewState
	userID   string
	history  HistoryStore
	prefs    PreferenceStore
	logger   *log.Logger
	now      func() time.Time
	width    int
	height   int
	songList list.Model
	songs    []*models.Song
	selected *models.Song
	summary  stats.Summary
	theme    models.Theme
	styles   *Palette
	status   string
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a new TUI model for userID's history.
func NewModel(userID string, history HistoryStore, prefs PreferenceStore, logger *log.Logger) *Model {
	songList := list.New(nil, list.NewDefaultDelegate(), defaultWidth-4, defaultHeight-8)
	songList.Title = "Stash History"

	return &Model{
		view:     HistoryView,
		userID:   userID,
		history:  history,
		prefs:    prefs,
		logger:   logger,
		now:      time.Now,
		width:    defaultWidth,
		height:   defaultHeight,
		songList: songList,
		theme:    models.ThemeDark,
		styles:   PaletteFor(models.ThemeDark),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// WithClock overrides the time source used for stats and relative dates.
func (m *Model) WithClock(now func() time.Time) *Model {
	m.now = now
	return m
}

// State returns the current view.
func (m *Model) State() ViewState { return m.view }

// Theme returns the active color scheme.
func (m *Model) Theme() models.Theme { return m.theme }

// Init loads history and the saved theme.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchHistory(), m.loadPreferences())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.songList.SetSize(max(msg.Width-4, 0), max(msg.Height-8, 0))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case HistoryView:
			return m.handleHistoryKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		case StatsView:
			return m.handleStatsKeys(msg)
		case DeleteView:
			return m.handleDeleteKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	if m.view == HistoryView {
		m.songList, cmd = m.songList.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgHistoryFetched:
		res := msg.data.(historyResult)
		if res.err != nil {
			m.logger.Error("failed to load history", "error", res.err)
			m.err = res.err
			return m, nil
		}
		m.err = nil
		m.setSongs(res.songs)
		m.logger.Debug("history loaded", "songs", len(res.songs))
		return m, nil

	case MsgSongDeleted:
		res := msg.data.(deleteResult)
		m.view = HistoryView
		if res.err != nil {
			m.logger.Error("failed to delete song", "id", res.id, "error", res.err)
			m.status = fmt.Sprintf("Delete failed: %v", res.err)
			return m, nil
		}
		remaining := make([]*models.Song, 0, len(m.songs))
		for _, s := range m.songs {
			if s.ID() != res.id {
				remaining = append(remaining, s)
			}
		}
		if m.selected != nil {
			m.status = fmt.Sprintf("Deleted %s by %s", m.selected.Track, m.selected.Artist)
		}
		m.logger.Info("deleted song", "id", res.id)
		m.selected = nil
		m.setSongs(remaining)
		return m, nil

	case MsgPreferencesLoaded:
		res := msg.data.(preferencesResult)
		if res.err != nil {
			m.logger.Warn("failed to load preferences", "error", res.err)
			return m, nil
		}
		m.setTheme(res.prefs.Theme)
		return m, nil

	case MsgThemeSaved:
		if err, _ := msg.data.(error); err != nil {
			m.logger.Warn("failed to save theme", "error", err)
			m.status = fmt.Sprintf("Theme not saved: %v", err)
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) setSongs(songs []*models.Song) {
	m.songs = songs
	m.songList.SetItems(songItems(songs, m.now()))
	m.summary = stats.Summarize(songs, m.now())
}

func (m *Model) setTheme(theme models.Theme) {
	if theme != models.ThemeLight && theme != models.ThemeDark {
		return
	}
	m.theme = theme
	m.styles = PaletteFor(theme)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return m.styles.err.Render(fmt.Sprintf("Error: %v\n\nPress r to retry, q to quit", m.err))
	}

	switch m.view {
	case HistoryView:
		return m.renderHistory()
	case DetailView:
		return m.renderDetail()
	case StatsView:
		return m.renderStats()
	case DeleteView:
		return m.renderDelete()
	default:
		return ""
	}
}

func (m *Model) handleHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.songList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.songList, cmd = m.songList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		m.err = nil
		m.status = ""
		return m, m.fetchHistory()
	case m.err != nil:
		return m, nil
	case key.Matches(msg, m.keys.enter):
		if song := m.selectedSong(); song != nil {
			m.selected = song
			m.view = DetailView
		}
		return m, nil
	case key.Matches(msg, m.keys.del):
		if song := m.selectedSong(); song != nil {
			m.selected = song
			m.previous = HistoryView
			m.view = DeleteView
		}
		return m, nil
	case key.Matches(msg, m.keys.stats):
		m.view = StatsView
		return m, nil
	case key.Matches(msg, m.keys.theme):
		return m, m.toggleTheme()
	}

	var cmd tea.Cmd
	m.songList, cmd = m.songList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = HistoryView
	case key.Matches(msg, m.keys.del):
		m.previous = DetailView
		m.view = DeleteView
	case key.Matches(msg, m.keys.theme):
		return m, m.toggleTheme()
	}
	return m, nil
}

func (m *Model) handleStatsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.stats):
		m.view = HistoryView
	case key.Matches(msg, m.keys.theme):
		return m, m.toggleTheme()
	}
	return m, nil
}

func (m *Model) handleDeleteKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		return m, m.deleteSong(m.selected.ID())
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = m.previous
	}
	return m, nil
}

func (m *Model) selectedSong() *models.Song {
	if item, ok := m.songList.SelectedItem().(songItem); ok {
		return item.song
	}
	return nil
}

func (m *Model) toggleTheme() tea.Cmd {
	m.setTheme(m.theme.Toggle())
	return m.saveTheme(m.theme)
}

func (m *Model) fetchHistory() tea.Cmd {
	return func() tea.Msg {
		songs, err := m.history.ListByUser(m.userID, 0)
		return historyFetchedMsg(songs, err)
	}
}

func (m *Model) deleteSong(id string) tea.Cmd {
	return func() tea.Msg {
		return songDeletedMsg(id, m.history.DeleteForUser(m.userID, id))
	}
}

func (m *Model) loadPreferences() tea.Cmd {
	return func() tea.Msg {
		prefs, err := m.prefs.Get(m.userID)
		return preferencesLoadedMsg(prefs, err)
	}
}

func (m *Model) saveTheme(theme models.Theme) tea.Cmd {
	return func() tea.Msg {
		prefs, err := m.prefs.Get(m.userID)
		if err != nil {
			return themeSavedMsg(err)
		}
		prefs.Theme = theme
		prefs.UpdatedAt = m.now().UTC()
		return themeSavedMsg(m.prefs.Upsert(prefs))
	}
}

func (m *Model) renderHistory() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.del, m.keys.stats, m.keys.theme, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if len(m.songs) == 0 {
		empty := m.styles.help.Render("No songs stashed yet. Share a reel to get started.")
		return fmt.Sprintf("%s\n%s\n\n%s", m.styles.title.Render("Stash History"), empty, helpView)
	}

	var status string
	if m.status != "" {
		status = "\n" + m.styles.warn.Render(m.status)
	}
	return fmt.Sprintf("%s%s\n\n%s", m.songList.View(), status, helpView)
}

func (m *Model) renderDetail() string {
	s := m.selected
	title := m.styles.title.Render(s.Track)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", m.styles.accent.Render(s.Artist))
	fmt.Fprintf(&b, "\nGenre:    %s", s.GenreOrUnknown())
	if s.PlaylistName != "" {
		fmt.Fprintf(&b, "\nPlaylist: %s", s.PlaylistName)
	}
	if s.Source != "" {
		fmt.Fprintf(&b, "\nSource:   %s", s.Source)
	}
	if s.URL != "" {
		fmt.Fprintf(&b, "\nLink:     %s", s.URL)
	}
	if s.SpotifyURL != "" {
		fmt.Fprintf(&b, "\nSpotify:  %s", s.SpotifyURL)
	}
	fmt.Fprintf(&b, "\nStashed:  %s", humanize.RelTime(s.CreatedAt(), m.now(), "ago", "from now"))

	helpKeys := []key.Binding{m.keys.back, m.keys.del, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s", title, b.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderStats() string {
	sum := m.summary
	title := m.styles.title.Render("Your Stats")

	var b strings.Builder
	fmt.Fprintf(&b, "Songs stashed: %s\n", m.styles.accent.Render(humanize.Comma(int64(sum.Total))))
	fmt.Fprintf(&b, "This week:     %d\n", sum.ThisWeek)
	fmt.Fprintf(&b, "Streak:        %s\n", m.styles.ok.Render(fmt.Sprintf("%d day streak", sum.Streak)))

	if len(sum.Genres) > 0 {
		b.WriteString("\n" + m.styles.accent.Render("Genres") + "\n")
		for i, g := range sum.Genres {
			if i == statsGenres {
				break
			}
			fmt.Fprintf(&b, "  %-16s %s %3d%%\n", g.Name, m.styles.bar.Render(formatter.Bar(g.Value, statsBarWidth)), g.Value)
		}
	}

	if len(sum.TopArtists) > 0 {
		b.WriteString("\n" + m.styles.accent.Render("Top artists") + "\n")
		for _, a := range sum.TopArtists {
			fmt.Fprintf(&b, "  %s (%d)\n", a.Name, a.Count)
		}
	}

	b.WriteString("\n" + m.styles.accent.Render("Achievements") + "\n")
	for _, a := range sum.Achievements {
		if a.Unlocked {
			fmt.Fprintf(&b, "  %s %s\n", m.styles.ok.Render("✓"), a.Title)
		} else {
			fmt.Fprintf(&b, "  %s %s %d/%d\n", m.styles.help.Render("○"), a.Title, a.Current, a.Target)
		}
	}

	helpKeys := []key.Binding{m.keys.back, m.keys.theme, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n%s", title, b.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderDelete() string {
	title := m.styles.warn.Render(fmt.Sprintf("Remove '%s' by %s from your history?", m.selected.Track, m.selected.Artist))
	note := m.styles.help.Render("The track stays in your Spotify library.")
	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n%s\n\n%s", title, note, m.help.ShortHelpView(helpKeys))
}
