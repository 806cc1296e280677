// Package services implements the remote collaborators used by the backup engine.
//
// # Contracts
//
// The engine only sees three narrow interfaces:
//   - [PlaylistSource] : fully paginated playlists with tracks (Spotify)
//   - [RemoteReader] : snapshot download and folder listing (Dropbox)
//   - [RemoteWriter] : snapshot upload and folder creation (Dropbox, or [DryRunWriter])
//
// # Spotify
//
// [SpotifySource] wraps a [spotify.Client] built on an [oauth2.Config] client. Refreshed tokens are
// reported through a callback so the CLI can persist them.
//
// # Dropbox
//
// [DropboxStorage] talks to the Dropbox HTTP API v2 directly. The app authorizes with the PKCE
// no-redirect flow and keeps only a long-lived refresh token.
//
// # Error Handling
//
// Every remote failure is a [*RemoteError] with a closed [ErrorKind]:
//   - [KindNotFound] : translated to "absent" by Download and ListWithMetadata
//   - [KindConflict] : suppressed by EnsureFolder
//   - [KindRateLimited], [KindTransient] : retried by [Retry] with exponential backoff
//   - [KindPermanent] : returned to the caller
//
// All remote calls are paced by a [rate.Limiter] before each attempt.
package services
