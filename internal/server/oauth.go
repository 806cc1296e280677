package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/desertthunder/spotbak/internal/shared"
	"golang.org/x/oauth2"
)

// Result is the outcome of one authorization callback.
type Result struct {
	Token *oauth2.Token
	Err   error
}

// CallbackHandler handles the redirect of an OAuth2 authorization code flow.
type CallbackHandler struct {
	config  *oauth2.Config
	state   string
	path    string
	results chan Result

	once sync.Once
	mu   sync.Mutex
	hit  bool
}

// NewCallbackHandler creates a handler for config's redirect URI path, accepting only state.
func NewCallbackHandler(config *oauth2.Config, state string) *CallbackHandler {
	return &CallbackHandler{
		config:  config,
		state:   state,
		path:    CallbackPath(config.RedirectURL),
		results: make(chan Result, 1),
	}
}

// CallbackPath returns the path component of a redirect URI, "/callback" when it has none.
func CallbackPath(redirectURI string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "/callback"
	}
	return u.Path
}

func (h *CallbackHandler) Routes() []string {
	return []string{h.path}
}

// ServeHTTP validates the state, exchanges the code and publishes the [Result].
// Every request after the first is rejected.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	query := r.URL.Query()
	if query.Get("state") != h.state {
		h.send(Result{Err: fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed)})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s %s", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description"))
		h.send(Result{Err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	token, err := h.config.Exchange(context.WithoutCancel(r.Context()), code)
	if err != nil {
		h.send(Result{Err: fmt.Errorf("%w: token exchange failed: %w", shared.ErrAuthFailed, err)})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.send(Result{Token: token})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successPage)
}

func (h *CallbackHandler) send(result Result) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result receives exactly one [Result] and is then closed.
func (h *CallbackHandler) Result() <-chan Result {
	return h.results
}

// Wait blocks until the callback arrives, the server fails or ctx ends.
func (h *CallbackHandler) Wait(ctx context.Context, serverErrors <-chan error) (*oauth2.Token, error) {
	select {
	case result := <-h.results:
		if result.Err != nil {
			return nil, result.Err
		}
		if result.Token == nil {
			return nil, errors.New("no token received")
		}
		return result.Token, nil
	case err := <-serverErrors:
		return nil, fmt.Errorf("callback server failed: %w", err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: no authorization received", shared.ErrTimeout)
		}
		return nil, ctx.Err()
	}
}

const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Spotify linked</h1>
        <p>spotbak can now read your playlists. You can close this window.</p>
    </div>
</body>
</html>
`
