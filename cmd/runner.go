package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotbak/internal/services"
	"github.com/desertthunder/spotbak/internal/shared"
	"github.com/desertthunder/spotbak/internal/tasks"
	"github.com/desertthunder/spotbak/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultAuthTimeout = 2 * time.Minute

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	palette    *ui.Palette
	dryRun     bool

	source  services.PlaylistSource
	storage services.Storage

	spotifyOAuth *oauth2.Config
	dropboxOAuth *oauth2.Config
	openBrowser  shared.BrowserOpener
	prompt       ui.Prompter
	authTimeout  time.Duration

	mu sync.Mutex
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Source, Storage and the OAuth configs replace the real Spotify and Dropbox clients when set.
type RunnerOpts struct {
	Config       *shared.Config
	ConfigPath   string
	Logger       *log.Logger
	Output       io.Writer
	DryRun       bool
	Source       services.PlaylistSource
	Storage      services.Storage
	SpotifyOAuth *oauth2.Config
	DropboxOAuth *oauth2.Config
	OpenBrowser  shared.BrowserOpener
	Prompt       ui.Prompter
	AuthTimeout  time.Duration
}

// NewRunner creates a new Runner with the provided configuration.
//
// A nil Config is loaded from ConfigPath by the root command's Before hook.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = "config.toml"
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}
	if opts.Prompt == nil {
		opts.Prompt = ui.PromptInput
	}
	if opts.AuthTimeout == 0 {
		opts.AuthTimeout = defaultAuthTimeout
	}

	return &Runner{
		config:       opts.Config,
		configPath:   opts.ConfigPath,
		logger:       opts.Logger,
		output:       opts.Output,
		palette:      ui.DefaultPalette,
		dryRun:       opts.DryRun,
		source:       opts.Source,
		storage:      opts.Storage,
		spotifyOAuth: opts.SpotifyOAuth,
		dropboxOAuth: opts.DropboxOAuth,
		openBrowser:  opts.OpenBrowser,
		prompt:       opts.Prompt,
		authTimeout:  opts.AuthTimeout,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		backupCommand, syncCommand, listCommand, statusCommand, authCommand, initCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before applies the global flags, then loads the config file, .env and environment overrides.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	shared.SetVerbose(r.logger, cmd.Bool("verbose"))
	if cmd.Bool("dry-run") {
		r.dryRun = true
	}
	if cmd.IsSet("config") {
		r.configPath = cmd.String("config")
	}

	if r.config == nil {
		config, err := r.loadConfig()
		if err != nil {
			return ctx, err
		}
		r.config = config
	}

	if err := shared.LoadDotEnv(); err != nil {
		return ctx, err
	}
	shared.ApplyEnv(r.config)
	return ctx, nil
}

func (r *Runner) loadConfig() (*shared.Config, error) {
	config, err := shared.LoadConfig(r.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		return shared.DefaultConfig(), nil
	}
	return config, err
}

func (r *Runner) retryPolicy() services.RetryPolicy {
	return services.RetryPolicy{
		MaxRetries: r.config.HTTP.MaxRetries,
		Base:       r.config.HTTP.Backoff(),
	}
}

// spotifySource builds the Spotify client from stored credentials.
func (r *Runner) spotifySource(ctx context.Context, logger *log.Logger) (services.PlaylistSource, error) {
	if r.source != nil {
		return r.source, nil
	}

	if err := r.config.ValidateSpotify(); err != nil {
		return nil, err
	}
	if !r.config.Credentials.Spotify.Authorized() {
		return nil, fmt.Errorf("%w: run 'spotbak auth spotify' first", shared.ErrNotAuthenticated)
	}

	httpClient := services.NewHTTPClient(
		ctx, r.spotifyConfig(), r.config.Credentials.Spotify.Token(), r.config.HTTP.Timeout(), r.saveSpotifyToken,
	)
	return services.NewSpotifySource(services.SpotifyOpts{
		Client:  services.NewSpotifyClient(httpClient, ""),
		Limiter: services.NewLimiter(r.config.HTTP.RequestsPerSecond),
		Retry:   r.retryPolicy(),
		Logger:  logger,
	}), nil
}

// dropboxStorage builds the Dropbox client. The stored refresh token is exchanged for an access
// token on the first request.
func (r *Runner) dropboxStorage(ctx context.Context, logger *log.Logger) (services.Storage, error) {
	if r.storage != nil {
		return r.storage, nil
	}

	if err := r.config.ValidateDropbox(); err != nil {
		return nil, err
	}
	if !r.config.Credentials.Dropbox.Authorized() {
		return nil, fmt.Errorf("%w: run 'spotbak auth dropbox' first", shared.ErrNotAuthenticated)
	}

	token := &oauth2.Token{RefreshToken: r.config.Credentials.Dropbox.RefreshToken}
	httpClient := services.NewHTTPClient(ctx, r.dropboxConfig(), token, r.config.HTTP.Timeout(), nil)
	return services.NewDropboxStorage(services.DropboxOpts{
		HTTPClient: httpClient,
		Limiter:    services.NewLimiter(r.config.HTTP.RequestsPerSecond),
		Retry:      r.retryPolicy(),
		Logger:     logger,
	}), nil
}

func (r *Runner) spotifyConfig() *oauth2.Config {
	if r.spotifyOAuth != nil {
		return r.spotifyOAuth
	}
	s := r.config.Credentials.Spotify
	return services.NewSpotifyOAuthConfig(s.ClientID, s.ClientSecret, s.RedirectURI)
}

func (r *Runner) dropboxConfig() *oauth2.Config {
	if r.dropboxOAuth != nil {
		return r.dropboxOAuth
	}
	d := r.config.Credentials.Dropbox
	return services.NewDropboxOAuthConfig(d.AppKey, d.AppSecret)
}

// saveSpotifyToken persists refreshed Spotify tokens so the next run starts with a valid one.
func (r *Runner) saveSpotifyToken(token *oauth2.Token) {
	err := r.persist(func(c *shared.Config) error {
		return c.Credentials.Spotify.Update(token)
	})
	if err != nil {
		r.logger.Warn("failed to save refreshed spotify token", "path", r.configPath, "err", err)
		return
	}
	r.logger.Debug("saved refreshed spotify token", "path", r.configPath)
}

// persist applies update to the running config and to a fresh copy read from the config file,
// then saves that copy. Values that came from the environment or .env stay out of the file.
func (r *Runner) persist(update func(*shared.Config) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := update(r.config); err != nil {
		return err
	}

	onDisk, err := r.loadConfig()
	if err != nil {
		return err
	}
	if err := update(onDisk); err != nil {
		return err
	}
	if err := shared.SaveConfig(r.configPath, onDisk); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// engine wires a [tasks.BackupEngine] for one run. Dry runs swap the writer and keep real reads.
func (r *Runner) engine(ctx context.Context) (*tasks.BackupEngine, error) {
	logger := shared.WithLogger(r.logger, "run", shared.GenerateID())

	source, err := r.spotifySource(ctx, logger)
	if err != nil {
		return nil, err
	}
	storage, err := r.dropboxStorage(ctx, logger)
	if err != nil {
		return nil, err
	}

	var writer services.RemoteWriter = storage
	if r.dryRun {
		writer = services.NewDryRunWriter(logger)
	}

	return tasks.NewBackupEngine(tasks.EngineOpts{
		Source: source,
		Reader: storage,
		Writer: writer,
		Folder: r.config.Backup.Folder,
		Logger: logger,
	}), nil
}

func (r *Runner) announceDryRun(useJSON bool) {
	if r.dryRun && !useJSON {
		r.writePlain("%s\n", r.palette.Warn("Dry run: no Dropbox changes will be made."))
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
