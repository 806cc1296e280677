package shared

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override values from the config file.
const (
	EnvSpotifyClientID     = "SPOTIFY_CLIENT_ID"
	EnvSpotifyClientSecret = "SPOTIFY_CLIENT_SECRET"
	EnvSpotifyRedirectURI  = "SPOTIFY_REDIRECT_URI"
	EnvDropboxAppKey       = "DROPBOX_APP_KEY"
	EnvDropboxAppSecret    = "DROPBOX_APP_SECRET"
	EnvDropboxRefreshToken = "DROPBOX_REFRESH_TOKEN"
	EnvBackupFolder        = "BACKUP_FOLDER"
)

// LoadDotEnv loads variables from the given .env files into the process environment.
//
// Missing files are ignored and variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("%w: failed to load %s: %v", ErrInvalidConfig, path, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values with any non-empty environment variables.
func ApplyEnv(config *Config) {
	apply := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	apply(EnvSpotifyClientID, &config.Credentials.Spotify.ClientID)
	apply(EnvSpotifyClientSecret, &config.Credentials.Spotify.ClientSecret)
	apply(EnvSpotifyRedirectURI, &config.Credentials.Spotify.RedirectURI)
	apply(EnvDropboxAppKey, &config.Credentials.Dropbox.AppKey)
	apply(EnvDropboxAppSecret, &config.Credentials.Dropbox.AppSecret)
	apply(EnvDropboxRefreshToken, &config.Credentials.Dropbox.RefreshToken)
	apply(EnvBackupFolder, &config.Backup.Folder)
}
