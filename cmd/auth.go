package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotbak/internal/server"
	"github.com/desertthunder/spotbak/internal/services"
	"github.com/desertthunder/spotbak/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthSpotify performs the OAuth2 authorization code flow for Spotify.
//
// Starts a loopback HTTP server, opens the browser on the consent page and stores the tokens in the
// config file.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.ValidateSpotify(); err != nil {
		return err
	}
	if r.dryRun {
		return r.writePlain("Dry run: skipping Spotify auth flow.\n")
	}

	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state token: %w", err)
	}

	oauthConfig := r.spotifyConfig()
	handler := server.NewCallbackHandler(oauthConfig, state)
	srv := server.New(r.config.ServerAddr(), r.logger, handler)

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to start callback server on %s: %w", srv.Addr, err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Debug("callback server listening", "addr", srv.Addr, "path", server.CallbackPath(oauthConfig.RedirectURL))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down callback server", "err", err)
		}
	}()

	authURL := oauthConfig.AuthCodeURL(state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := r.openBrowser(authURL); err != nil {
		r.logger.Warn("failed to open browser", "err", err)
		r.writePlain("%s Could not open browser automatically.\n", r.palette.Warn("⚠"))
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", r.authTimeout)

	waitCtx, cancel := context.WithTimeout(ctx, r.authTimeout)
	defer cancel()

	token, err := handler.Wait(waitCtx, serverErrors)
	if err != nil {
		return fmt.Errorf("spotify authorization failed: %w", err)
	}

	err = r.persist(func(c *shared.Config) error {
		return c.Credentials.Spotify.Update(token)
	})
	if err != nil {
		return fmt.Errorf("failed to store spotify token: %w", err)
	}

	r.writePlainln("%s Spotify authorization successful", r.palette.Mark(true))
	return r.writePlain("%s Tokens saved to %s\n", r.palette.Mark(true), r.configPath)
}

// AuthDropbox runs the Dropbox PKCE flow. Dropbox shows the code on its own page, so the user
// pastes it back into the terminal.
func (r *Runner) AuthDropbox(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.ValidateDropbox(); err != nil {
		return err
	}
	if r.dryRun {
		return r.writePlain("Dry run: skipping Dropbox auth flow.\n")
	}

	oauthConfig := r.dropboxConfig()
	authURL, verifier := services.DropboxAuthURL(oauthConfig)

	r.writePlain("→ Approve spotbak in Dropbox:\n%s\n\n", authURL)
	if err := r.openBrowser(authURL); err != nil {
		r.logger.Debug("failed to open browser", "err", err)
	}

	code, err := r.prompt("Dropbox authorization code", "Paste the code Dropbox shows after you click Allow")
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	if code == "" {
		return fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	token, err := services.ExchangeDropboxCode(ctx, oauthConfig, code, verifier)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	err = r.persist(func(c *shared.Config) error {
		c.Credentials.Dropbox.RefreshToken = token.RefreshToken
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store dropbox token: %w", err)
	}

	r.writePlainln("%s Dropbox authorization successful", r.palette.Mark(true))
	return r.writePlain("%s Refresh token saved to %s\n", r.palette.Mark(true), r.configPath)
}

// AuthStatus reports which services have stored credentials.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	spotify := "missing token"
	if r.config.Credentials.Spotify.Authorized() {
		spotify = "authenticated"
	}
	dropbox := "missing token"
	if r.config.Credentials.Dropbox.Authorized() {
		dropbox = "authenticated"
	}

	r.writePlain("%s Spotify: %s\n", r.palette.Mark(r.config.Credentials.Spotify.Authorized()), spotify)
	r.writePlain("%s Dropbox: %s\n", r.palette.Mark(r.config.Credentials.Dropbox.Authorized()), dropbox)

	if !cmd.Bool("check") {
		return nil
	}
	return r.checkAccounts(ctx)
}

type spotifyUser interface {
	CurrentUser(ctx context.Context) (string, error)
}

type dropboxAccount interface {
	CurrentAccount(ctx context.Context) (string, error)
}

// checkAccounts asks both APIs who the stored tokens belong to.
func (r *Runner) checkAccounts(ctx context.Context) error {
	logger := shared.WithLogger(r.logger, "run", shared.GenerateID())
	var errs []error

	r.writePlainln("Checking linked accounts...")

	name, err := r.spotifyUser(ctx, logger)
	if err != nil {
		errs = append(errs, fmt.Errorf("spotify: %w", err))
	}
	r.printAccount("Spotify", name, err)

	name, err = r.dropboxAccount(ctx, logger)
	if err != nil {
		errs = append(errs, fmt.Errorf("dropbox: %w", err))
	}
	r.printAccount("Dropbox", name, err)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", shared.ErrAuthFailed, errors.Join(errs...))
	}
	return nil
}

func (r *Runner) spotifyUser(ctx context.Context, logger *log.Logger) (string, error) {
	source, err := r.spotifySource(ctx, logger)
	if err != nil {
		return "", err
	}
	u, ok := source.(spotifyUser)
	if !ok {
		return "", fmt.Errorf("spotify source cannot report the current user")
	}
	return u.CurrentUser(ctx)
}

func (r *Runner) dropboxAccount(ctx context.Context, logger *log.Logger) (string, error) {
	storage, err := r.dropboxStorage(ctx, logger)
	if err != nil {
		return "", err
	}
	a, ok := storage.(dropboxAccount)
	if !ok {
		return "", fmt.Errorf("dropbox storage cannot report the current account")
	}
	return a.CurrentAccount(ctx)
}

func (r *Runner) printAccount(service, name string, err error) {
	if err != nil {
		r.writePlain("%s %s account: %v\n", r.palette.Mark(false), service, err)
		return
	}
	r.writePlain("%s %s account: %s\n", r.palette.Mark(true), service, name)
}

// Init writes a config file from the embedded template.
func (r *Runner) Init(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", r.configPath)
	r.writePlain("%s Created %s\n", r.palette.Mark(true), r.configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Fill in the Spotify client_id and client_secret, and the Dropbox app_key and app_secret\n")
	r.writePlain("2. Run 'spotbak auth spotify' and 'spotbak auth dropbox'\n")
	return r.writePlain("3. Run 'spotbak backup'\n")
}
