// Package server runs the loopback HTTP server that receives OAuth redirects.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [CallbackHandler] implements the OAuth2 authorization code callback.
//
// The handler validates the state parameter, exchanges the authorization code for tokens,
// and sends the result through a channel. It only processes one callback.
//
// # Current Usage
//
// The auth command starts a temporary server on the configured host and port (127.0.0.1:8888 by default),
// opens the Spotify consent page and shuts the server down after the callback arrives.
package server
