package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotbak/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

type mockTokenSource struct {
	token *oauth2.Token
	err   error
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.token, nil
}

func spotifyTrackJSON(id string) map[string]any {
	return map[string]any{
		"added_at": "2024-01-01T12:00:00Z",
		"added_by": map[string]any{"id": "user-1"},
		"is_local": false,
		"track": map[string]any{
			"type":        "track",
			"id":          id,
			"name":        "Song " + id,
			"duration_ms": 210000,
			"artists":     []map[string]any{{"id": "a1", "name": "Alpha"}, {"id": "a2", "name": "Beta"}},
			"album":       map[string]any{"id": "al1", "name": "Album", "release_date": "2024-01-01"},
		},
	}
}

// fakeSpotify serves /me/playlists and /playlists/{id}/tracks from in-memory data.
type fakeSpotify struct {
	mu        sync.Mutex
	playlists []map[string]any
	items     map[string][]map[string]any
	failNext  int
	requests  int
	// pageCap returns fewer items than requested while next still points past them.
	pageCap int
	// failOffset fails the first request for that offset once.
	failOffset int
}

func (f *fakeSpotify) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	w.Header().Set("Content-Type", "application/json")
	if f.failNext > 0 {
		f.failNext--
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"status":500,"message":"boom"}}`)
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if f.failOffset > 0 && offset == f.failOffset {
		f.failOffset = 0
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"error":{"status":502,"message":"bad gateway"}}`)
		return
	}
	if limit == 0 {
		limit = 20
	}
	size := limit
	if f.pageCap > 0 {
		size = min(size, f.pageCap)
	}
	page := func(all []map[string]any) map[string]any {
		items := []map[string]any{}
		if offset < len(all) {
			items = all[offset:min(offset+size, len(all))]
		}
		var next any
		if end := offset + len(items); end < len(all) {
			next = fmt.Sprintf("http://%s%s?limit=%d&offset=%d", r.Host, r.URL.Path, limit, end)
		}
		return map[string]any{
			"items":  items,
			"limit":  limit,
			"offset": offset,
			"total":  len(all),
			"next":   next,
		}
	}

	switch {
	case r.URL.Path == "/me":
		json.NewEncoder(w).Encode(map[string]any{"id": "user-1", "display_name": "Test User"})
	case r.URL.Path == "/me/playlists":
		json.NewEncoder(w).Encode(page(f.playlists))
	case strings.HasPrefix(r.URL.Path, "/playlists/"):
		id := strings.Split(strings.TrimPrefix(r.URL.Path, "/playlists/"), "/")[0]
		items, ok := f.items[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"status":404,"message":"not found"}}`)
			return
		}
		json.NewEncoder(w).Encode(page(items))
	default:
		http.NotFound(w, r)
	}
}

func newTestSpotify(t *testing.T, fake *fakeSpotify) (*SpotifySource, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	rec := &sleepRecorder{}
	source := NewSpotifySource(SpotifyOpts{
		Client:  NewSpotifyClient(srv.Client(), srv.URL+"/"),
		Limiter: NewLimiter(0),
		Retry:   RetryPolicy{MaxRetries: 3, Base: time.Second, Sleep: rec.sleep},
	})
	return source, rec
}

func playlistJSON(id, name string, total int) map[string]any {
	return map[string]any{
		"id":          id,
		"name":        name,
		"description": "desc " + id,
		"owner":       map[string]any{"id": "owner-1", "display_name": "Owner"},
		"snapshot_id": "snap-" + id,
		"tracks":      map[string]any{"total": total},
	}
}

func TestSpotifySource(t *testing.T) {
	ctx := context.Background()

	t.Run("ListAllPlaylists", func(t *testing.T) {
		local := spotifyTrackJSON("local")
		local["is_local"] = true

		episode := map[string]any{
			"added_at": "2024-01-01T12:00:00Z",
			"added_by": map[string]any{"id": "user-1"},
			"track":    map[string]any{"type": "episode", "id": "ep1", "name": "Episode"},
		}

		fake := &fakeSpotify{
			playlists: []map[string]any{playlistJSON("p1", "First", 3), playlistJSON("p2", "Second", 0)},
			items: map[string][]map[string]any{
				"p1": {spotifyTrackJSON("t1"), local, episode, spotifyTrackJSON("t2")},
				"p2": {},
			},
		}
		source, _ := newTestSpotify(t, fake)

		playlists, err := source.ListAllPlaylists(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(playlists) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(playlists))
		}

		first := playlists[0]
		if first.ID != "p1" || first.Name != "First" || first.Owner != "Owner" || first.SnapshotID != "snap-p1" {
			t.Errorf("unexpected playlist %+v", first)
		}
		if first.TotalTracks != 3 {
			t.Errorf("expected reported total 3, got %d", first.TotalTracks)
		}
		if len(first.Tracks) != 2 || first.Tracks[0].ID != "t1" || first.Tracks[1].ID != "t2" {
			t.Fatalf("expected local and episode items skipped, got %+v", first.Tracks)
		}

		track := first.Tracks[0]
		if track.ArtistNames() != "Alpha, Beta" {
			t.Errorf("unexpected artists %q", track.ArtistNames())
		}
		if track.Album.ReleaseDate != "2024-01-01" || track.DurationMS != 210000 || track.AddedBy != "user-1" {
			t.Errorf("unexpected track %+v", track)
		}
		if !track.AddedAt.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected added_at %v", track.AddedAt)
		}
		if len(playlists[1].Tracks) != 0 {
			t.Errorf("expected empty second playlist, got %+v", playlists[1].Tracks)
		}
	})

	t.Run("paginates", func(t *testing.T) {
		var playlists []map[string]any
		items := map[string][]map[string]any{}
		for i := 0; i < 60; i++ {
			id := fmt.Sprintf("p%d", i)
			playlists = append(playlists, playlistJSON(id, id, 0))
			items[id] = []map[string]any{}
		}
		for i := 0; i < 150; i++ {
			items["p0"] = append(items["p0"], spotifyTrackJSON(fmt.Sprintf("t%d", i)))
		}

		source, _ := newTestSpotify(t, &fakeSpotify{playlists: playlists, items: items})

		got, err := source.ListAllPlaylists(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 60 {
			t.Errorf("expected 60 playlists, got %d", len(got))
		}
		if len(got[0].Tracks) != 150 {
			t.Errorf("expected 150 tracks, got %d", len(got[0].Tracks))
		}
		if got[0].Tracks[149].ID != "t149" {
			t.Errorf("expected order preserved, last id %s", got[0].Tracks[149].ID)
		}
	})

	t.Run("follows next links past short pages", func(t *testing.T) {
		var items []map[string]any
		for i := 0; i < 20; i++ {
			items = append(items, spotifyTrackJSON(fmt.Sprintf("t%d", i)))
		}
		fake := &fakeSpotify{
			playlists: []map[string]any{playlistJSON("p1", "First", 20), playlistJSON("p2", "Second", 0)},
			items:     map[string][]map[string]any{"p1": items, "p2": {}},
			pageCap:   7,
		}
		source, _ := newTestSpotify(t, fake)

		got, err := source.ListAllPlaylists(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(got))
		}
		if len(got[0].Tracks) != 20 || got[0].Tracks[19].ID != "t19" {
			t.Errorf("expected all 20 tracks in order, got %d", len(got[0].Tracks))
		}
	})

	t.Run("retries failed next page", func(t *testing.T) {
		var items []map[string]any
		for i := 0; i < 150; i++ {
			items = append(items, spotifyTrackJSON(fmt.Sprintf("t%d", i)))
		}
		fake := &fakeSpotify{
			playlists:  []map[string]any{playlistJSON("p1", "First", 150)},
			items:      map[string][]map[string]any{"p1": items},
			failOffset: itemsPageSize,
		}
		source, rec := newTestSpotify(t, fake)

		got, err := source.ListAllPlaylists(ctx)
		if err != nil {
			t.Fatalf("expected retry to recover, got %v", err)
		}
		if len(got[0].Tracks) != 150 {
			t.Errorf("expected 150 tracks, got %d", len(got[0].Tracks))
		}
		if len(rec.delays) != 1 {
			t.Errorf("expected 1 retry, got %v", rec.delays)
		}
	})

	t.Run("retries server errors", func(t *testing.T) {
		fake := &fakeSpotify{
			playlists: []map[string]any{playlistJSON("p1", "First", 1)},
			items:     map[string][]map[string]any{"p1": {spotifyTrackJSON("t1")}},
			failNext:  2,
		}
		source, rec := newTestSpotify(t, fake)

		playlists, err := source.ListAllPlaylists(ctx)
		if err != nil {
			t.Fatalf("expected retries to recover, got %v", err)
		}
		if len(playlists) != 1 {
			t.Errorf("expected 1 playlist, got %d", len(playlists))
		}
		if len(rec.delays) != 2 {
			t.Errorf("expected 2 retries, got %v", rec.delays)
		}
	})

	t.Run("missing playlist is a failure", func(t *testing.T) {
		fake := &fakeSpotify{
			playlists: []map[string]any{playlistJSON("gone", "Gone", 1)},
			items:     map[string][]map[string]any{},
		}
		source, rec := newTestSpotify(t, fake)

		_, err := source.ListAllPlaylists(ctx)
		if !IsNotFound(err) {
			t.Errorf("expected not found error, got %v", err)
		}
		if len(rec.delays) != 0 {
			t.Errorf("not found should not be retried, got %v", rec.delays)
		}
	})

	t.Run("CurrentUser", func(t *testing.T) {
		source, _ := newTestSpotify(t, &fakeSpotify{})

		name, err := source.CurrentUser(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if name != "Test User" {
			t.Errorf("expected Test User, got %s", name)
		}
	})
}

func TestConvertItem(t *testing.T) {
	t.Run("skips items without a track", func(t *testing.T) {
		if _, ok := convertItem(spotify.PlaylistItem{}, log.New(io.Discard)); ok {
			t.Error("expected empty item to be skipped")
		}
	})

	t.Run("skips local tracks", func(t *testing.T) {
		item := spotify.PlaylistItem{IsLocal: true}
		item.Track.Track = &spotify.FullTrack{}
		item.Track.Track.ID = "local"
		if _, ok := convertItem(item, log.New(io.Discard)); ok {
			t.Error("expected local item to be skipped")
		}
	})

	t.Run("tolerates bad timestamps", func(t *testing.T) {
		item := spotify.PlaylistItem{AddedAt: "yesterday"}
		item.Track.Track = &spotify.FullTrack{}
		item.Track.Track.ID = "t1"

		var buf bytes.Buffer
		logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

		track, ok := convertItem(item, logger)
		if !ok {
			t.Fatal("expected track")
		}
		if !track.AddedAt.IsZero() {
			t.Errorf("expected zero time, got %v", track.AddedAt)
		}
		if !strings.Contains(buf.String(), "malformed added_at") || !strings.Contains(buf.String(), "yesterday") {
			t.Errorf("expected bad timestamp to be logged, got %q", buf.String())
		}
	})
}

func TestOAuth(t *testing.T) {
	t.Run("NewSpotifyOAuthConfig", func(t *testing.T) {
		cfg := NewSpotifyOAuthConfig("id", "secret", "http://127.0.0.1:8888/callback")
		authURL, err := url.Parse(cfg.AuthCodeURL("state-1"))
		if err != nil {
			t.Fatalf("invalid auth url: %v", err)
		}

		q := authURL.Query()
		if q.Get("state") != "state-1" || q.Get("client_id") != "id" {
			t.Errorf("unexpected query %v", q)
		}
		for _, scope := range []string{"playlist-read-private", "playlist-read-collaborative", "user-library-read"} {
			if !strings.Contains(q.Get("scope"), scope) {
				t.Errorf("missing scope %s in %s", scope, q.Get("scope"))
			}
		}
	})

	t.Run("DropboxAuthURL", func(t *testing.T) {
		cfg := NewDropboxOAuthConfig("key", "secret")
		raw, verifier := DropboxAuthURL(cfg)
		if verifier == "" {
			t.Fatal("expected a PKCE verifier")
		}

		authURL, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("invalid auth url: %v", err)
		}
		q := authURL.Query()
		if q.Get("token_access_type") != "offline" {
			t.Errorf("expected offline access, got %v", q)
		}
		if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") != oauth2.S256ChallengeFromVerifier(verifier) {
			t.Errorf("unexpected PKCE params %v", q)
		}
		if q.Get("redirect_uri") != "" {
			t.Errorf("no-redirect flow should not send redirect_uri, got %s", q.Get("redirect_uri"))
		}
	})

	t.Run("ExchangeDropboxCode", func(t *testing.T) {
		var gotVerifier string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			gotVerifier = r.Form.Get("code_verifier")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"at","token_type":"bearer","refresh_token":"rt","expires_in":14400}`)
		}))
		defer srv.Close()

		cfg := NewDropboxOAuthConfig("key", "secret")
		cfg.Endpoint.TokenURL = srv.URL

		token, err := ExchangeDropboxCode(context.Background(), cfg, "code", "verifier-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token.RefreshToken != "rt" {
			t.Errorf("expected refresh token rt, got %s", token.RefreshToken)
		}
		if gotVerifier != "verifier-1" {
			t.Errorf("expected verifier to be sent, got %q", gotVerifier)
		}
	})

	t.Run("ExchangeDropboxCode requires a refresh token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"at","token_type":"bearer","expires_in":14400}`)
		}))
		defer srv.Close()

		cfg := NewDropboxOAuthConfig("key", "secret")
		cfg.Endpoint.TokenURL = srv.URL

		_, err := ExchangeDropboxCode(context.Background(), cfg, "code", "verifier-1")
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})

	t.Run("NewHTTPClient reports refreshed tokens", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"fresh","token_type":"bearer","expires_in":3600}`)
		}))
		defer srv.Close()

		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, r.Header.Get("Authorization"))
		}))
		defer api.Close()

		cfg := NewDropboxOAuthConfig("key", "secret")
		cfg.Endpoint.TokenURL = srv.URL

		var refreshed []string
		client := NewHTTPClient(context.Background(), cfg, &oauth2.Token{RefreshToken: "rt"}, 5*time.Second, func(tok *oauth2.Token) {
			refreshed = append(refreshed, tok.AccessToken)
		})

		resp, err := client.Get(api.URL)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if len(refreshed) != 1 || refreshed[0] != "fresh" {
			t.Errorf("expected one refresh callback, got %v", refreshed)
		}
	})
}

func TestRefreshableTokenSource(t *testing.T) {
	t.Run("calls callback on first token fetch", func(t *testing.T) {
		var captured *oauth2.Token
		source := &refreshableTokenSource{
			source:   &mockTokenSource{token: &oauth2.Token{AccessToken: "test_token"}},
			callback: func(token *oauth2.Token) { captured = token },
		}

		token, err := source.Token()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if captured == nil || captured.AccessToken != "test_token" {
			t.Errorf("expected callback with test_token, got %+v", captured)
		}
		if token.AccessToken != "test_token" {
			t.Errorf("expected returned token to be 'test_token', got %s", token.AccessToken)
		}
	})

	t.Run("calls callback when token changes", func(t *testing.T) {
		callCount := 0
		mock := &mockTokenSource{token: &oauth2.Token{AccessToken: "token1"}}
		source := &refreshableTokenSource{
			source:   mock,
			callback: func(token *oauth2.Token) { callCount++ },
		}

		source.Token()
		mock.token = &oauth2.Token{AccessToken: "token2"}
		source.Token()
		source.Token()

		if callCount != 2 {
			t.Errorf("expected callback called twice, got %d", callCount)
		}
	})

	t.Run("skips the token it was seeded with", func(t *testing.T) {
		callCount := 0
		source := &refreshableTokenSource{
			source:   &mockTokenSource{token: &oauth2.Token{AccessToken: "stored"}},
			callback: func(token *oauth2.Token) { callCount++ },
			last:     "stored",
		}

		source.Token()
		if callCount != 0 {
			t.Errorf("expected no callback for the stored token, got %d", callCount)
		}
	})

	t.Run("handles nil callback gracefully", func(t *testing.T) {
		source := &refreshableTokenSource{source: &mockTokenSource{token: &oauth2.Token{AccessToken: "t"}}}
		if _, err := source.Token(); err != nil {
			t.Fatalf("expected no error with nil callback, got %v", err)
		}
	})

	t.Run("propagates source errors", func(t *testing.T) {
		source := &refreshableTokenSource{
			source: &mockTokenSource{err: errors.New("token source error")},
			callback: func(token *oauth2.Token) {
				t.Error("callback should not be called on error")
			},
		}

		if _, err := source.Token(); err == nil {
			t.Error("expected error")
		}
	})
}

func TestDryRunWriter(t *testing.T) {
	writer := NewDryRunWriter(nil)
	if err := writer.Upload(context.Background(), "content", "/a.csv"); err != nil {
		t.Errorf("upload should be a no-op, got %v", err)
	}
	if err := writer.EnsureFolder(context.Background(), "/a"); err != nil {
		t.Errorf("ensure folder should be a no-op, got %v", err)
	}
}
