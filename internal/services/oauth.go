package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/spotbak/internal/shared"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const (
	dropboxAuthURL  = "https://www.dropbox.com/oauth2/authorize"
	dropboxTokenURL = "https://api.dropboxapi.com/oauth2/token"
)

// SpotifyScopes are the read-only scopes needed to back up playlists.
var SpotifyScopes = []string{
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopeUserLibraryRead,
}

// DropboxScopes allow reading and writing file content.
var DropboxScopes = []string{"files.content.write", "files.content.read"}

// TokenRefreshFunc receives tokens obtained by a refresh.
type TokenRefreshFunc func(token *oauth2.Token)

// NewSpotifyOAuthConfig returns the authorization-code config for the Spotify accounts service.
func NewSpotifyOAuthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       SpotifyScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: spotifyauth.TokenURL,
		},
	}
}

// NewDropboxOAuthConfig returns the config for Dropbox's no-redirect PKCE flow.
func NewDropboxOAuthConfig(appKey, appSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     appKey,
		ClientSecret: appSecret,
		Scopes:       DropboxScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  dropboxAuthURL,
			TokenURL: dropboxTokenURL,
		},
	}
}

// DropboxAuthURL returns the URL the user visits to approve the app and the PKCE verifier to
// present with the code. The offline access type yields a long-lived refresh token.
func DropboxAuthURL(cfg *oauth2.Config) (string, string) {
	verifier := oauth2.GenerateVerifier()
	url := cfg.AuthCodeURL("",
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("token_access_type", "offline"),
	)
	return url, verifier
}

// ExchangeDropboxCode trades the pasted authorization code for a token.
func ExchangeDropboxCode(ctx context.Context, cfg *oauth2.Config, code, verifier string) (*oauth2.Token, error) {
	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange dropbox code: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: dropbox token response", shared.ErrNoRefreshToken)
	}
	return token, nil
}

// NewHTTPClient returns an OAuth2 client for token that refreshes as needed.
//
// onRefresh, when set, is called with every new access token including the first one fetched.
func NewHTTPClient(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token, timeout time.Duration, onRefresh TokenRefreshFunc) *http.Client {
	base := &http.Client{Timeout: timeout}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	source := &refreshableTokenSource{
		source:   cfg.TokenSource(ctx, token),
		callback: onRefresh,
		last:     token.AccessToken,
	}

	client := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, source))
	client.Timeout = timeout
	return client
}

// refreshableTokenSource reports access token changes from the wrapped source.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback TokenRefreshFunc

	mu   sync.Mutex
	last string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(token)
	}
	return token, nil
}
