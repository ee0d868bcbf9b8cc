package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/services"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const localUserID = "local"

// HistoryStore is the history access the CLI needs (repositories.HistoryRepository).
type HistoryStore interface {
	Create(song *models.Song) error
	ListByUser(userID string, limit int) ([]*models.Song, error)
	DeleteForUser(userID, id string) error
}

// PreferenceStore reads and writes per-user settings (repositories.PreferencesRepository).
type PreferenceStore interface {
	Get(userID string) (*models.Preferences, error)
	Upsert(prefs *models.Preferences) error
}

// UserStore records the accounts that have logged in (repositories.UserRepository).
type UserStore interface {
	FindOrCreate(spotifyID, displayName, email string) (*models.User, error)
}

// CachePurger removes stale recognition results (repositories.RecognitionCache).
type CachePurger interface {
	Purge(age time.Duration) (int64, error)
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	spotify    *services.SpotifyService
	engine     *tasks.StashEngine
	extractor  *services.YtDlpExtractor
	history    HistoryStore
	prefs      PreferenceStore
	users      UserStore
	cache      CachePurger
	db         *shared.DB
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	userID     string
	now        func() time.Time
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Spotify     *services.SpotifyService
	Engine      *tasks.StashEngine
	Extractor   *services.YtDlpExtractor
	History     HistoryStore
	Preferences PreferenceStore
	Users       UserStore
	Cache       CachePurger
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Input       io.Reader
	UserID      string
	Now         func() time.Time
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		spotify:    opts.Spotify,
		engine:     opts.Engine,
		extractor:  opts.Extractor,
		history:    opts.History,
		prefs:      opts.Preferences,
		users:      opts.Users,
		cache:      opts.Cache,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		userID:     opts.UserID,
		now:        opts.Now,
	}
}

// SetLogger replaces the logger, used when the TUI redirects logs to a file.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, tuiCommand,
		recognizeCommand, stashCommand, saveCommand, vibeCommand, importCommand,
		historyCommand, statsCommand,
		prefsCommand, authCommand, cacheCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// currentUser resolves the user the CLI acts for: the --user flag, then the
// logged in Spotify account, then a shared local user.
func (r *Runner) currentUser(ctx context.Context, cmd *cli.Command) string {
	if cmd != nil {
		if id := cmd.String("user"); id != "" {
			return id
		}
	}
	if r.userID != "" {
		return r.userID
	}
	if r.spotify != nil && r.spotify.IsAuthenticated() {
		if user, err := r.spotify.CurrentUser(ctx); err == nil && user.ID != "" {
			r.userID = user.ID
			return r.userID
		} else if err != nil {
			r.logger.Debug("could not resolve Spotify user", "error", err)
		}
	}
	return localUserID
}

func (r *Runner) requireEngine() error {
	if r.engine == nil {
		return fmt.Errorf("%w: stash engine not initialized", shared.ErrServiceUnavailable)
	}
	return nil
}

func (r *Runner) requireHistory() error {
	if r.history == nil {
		return fmt.Errorf("%w: history store not initialized (run 'stash setup database')", shared.ErrServiceUnavailable)
	}
	return nil
}

func (r *Runner) requirePreferences() error {
	if r.prefs == nil {
		return fmt.Errorf("%w: preference store not initialized (run 'stash setup database')", shared.ErrServiceUnavailable)
	}
	return nil
}

// saveTokens saves OAuth tokens to config file
func (r *Runner) saveTokens(token *oauth2.Token) error {
	if r.config == nil {
		return fmt.Errorf("config is nil")
	}

	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if r.configPath == "" {
		return nil
	}

	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// persistToken writes back a refreshed Spotify token so the next run can reuse it.
func (r *Runner) persistToken() {
	if r.spotify == nil || !r.spotify.IsAuthenticated() {
		return
	}
	token, err := r.spotify.Token()
	if err != nil || token.AccessToken == r.config.Credentials.Spotify.AccessToken {
		return
	}
	if err := r.saveTokens(token); err != nil {
		r.logger.Warn("failed to persist refreshed token", "error", err)
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
