package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Remote and backup errors
	ErrPlaylistNotFound  = fmt.Errorf("playlist not found")
	ErrAmbiguousPlaylist = fmt.Errorf("playlist name is ambiguous")
	ErrBackupFailed      = fmt.Errorf("one or more playlists failed")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
