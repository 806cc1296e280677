// Spotify implementation of [PlaylistSource]
//
// Built on github.com/zmb3/spotify/v2; see https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotbak/internal/models"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/time/rate"
)

const (
	playlistPageSize = 50
	itemsPageSize    = 100
)

// SpotifyOpts configures a [SpotifySource].
type SpotifyOpts struct {
	Client  *spotify.Client
	Limiter *rate.Limiter
	Retry   RetryPolicy
	Logger  *log.Logger
}

// SpotifySource lists playlists and their tracks from the Spotify Web API.
type SpotifySource struct {
	client *spotify.Client
	caller *Caller
	logger *log.Logger
}

// NewSpotifyClient builds a Spotify API client on top of an authenticated HTTP client.
//
// baseURL overrides the API root and is only set by tests.
func NewSpotifyClient(httpClient *http.Client, baseURL string) *spotify.Client {
	if baseURL == "" {
		return spotify.New(httpClient)
	}
	return spotify.New(httpClient, spotify.WithBaseURL(baseURL))
}

// NewSpotifySource creates a [SpotifySource].
func NewSpotifySource(opts SpotifyOpts) *SpotifySource {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logger = logger.With("service", "spotify")

	return &SpotifySource{
		client: opts.Client,
		caller: NewCaller(opts.Limiter, opts.Retry, logger),
		logger: logger,
	}
}

// CurrentUser returns the display name (or id) of the authorized user.
func (s *SpotifySource) CurrentUser(ctx context.Context) (string, error) {
	var user *spotify.PrivateUser
	err := s.caller.Do(ctx, "current_user", func(ctx context.Context) error {
		var err error
		user, err = s.client.CurrentUser(ctx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch spotify profile: %w", err)
	}

	if user.DisplayName != "" {
		return user.DisplayName, nil
	}
	return user.ID, nil
}

// ListAllPlaylists fetches every playlist of the current user and all of their tracks.
//
// Playlists keep the order Spotify returns them in. Local files and episodes are skipped.
func (s *SpotifySource) ListAllPlaylists(ctx context.Context) ([]models.Playlist, error) {
	simple, err := s.listPlaylists(ctx)
	if err != nil {
		return nil, err
	}

	playlists := make([]models.Playlist, 0, len(simple))
	for _, sp := range simple {
		tracks, err := s.playlistTracks(ctx, sp.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tracks for playlist %s: %w", sp.ID, err)
		}

		playlists = append(playlists, models.Playlist{
			ID:          string(sp.ID),
			Name:        sp.Name,
			Description: sp.Description,
			Owner:       ownerName(sp.Owner),
			Tracks:      tracks,
			SnapshotID:  sp.SnapshotID,
			TotalTracks: int(sp.Tracks.Total),
		})
		s.logger.Debug("fetched playlist", "id", sp.ID, "name", sp.Name, "tracks", len(tracks))
	}

	return playlists, nil
}

func (s *SpotifySource) listPlaylists(ctx context.Context) ([]spotify.SimplePlaylist, error) {
	var all []spotify.SimplePlaylist
	var page *spotify.SimplePlaylistPage

	err := s.caller.Do(ctx, "current_users_playlists", func(ctx context.Context) error {
		var err error
		page, err = s.client.CurrentUsersPlaylists(ctx, spotify.Limit(playlistPageSize))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}

	for {
		all = append(all, page.Playlists...)
		if page.Next == "" {
			break
		}

		next := page.Next
		err := s.caller.Do(ctx, "current_users_playlists", func(ctx context.Context) error {
			p := &spotify.SimplePlaylistPage{}
			p.Next = next
			if err := s.client.NextPage(ctx, p); err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list playlists: %w", err)
		}
	}

	return all, nil
}

func (s *SpotifySource) playlistTracks(ctx context.Context, id spotify.ID) ([]models.Track, error) {
	var tracks []models.Track
	var page *spotify.PlaylistItemPage

	err := s.caller.Do(ctx, "playlist_items", func(ctx context.Context) error {
		var err error
		page, err = s.client.GetPlaylistItems(ctx, id, spotify.Limit(itemsPageSize))
		return err
	})
	if err != nil {
		return nil, err
	}

	for {
		for _, item := range page.Items {
			if track, ok := convertItem(item, s.logger); ok {
				tracks = append(tracks, track)
			}
		}
		if page.Next == "" {
			break
		}

		// NextPage zeroes the page it decodes into, so each attempt gets a fresh one.
		next := page.Next
		err := s.caller.Do(ctx, "playlist_items", func(ctx context.Context) error {
			p := &spotify.PlaylistItemPage{}
			p.Next = next
			if err := s.client.NextPage(ctx, p); err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return tracks, nil
}

// convertItem maps a playlist item to a track. ok is false for local files, episodes and
// removed tracks. An unparseable added_at is logged and left empty.
func convertItem(item spotify.PlaylistItem, logger *log.Logger) (models.Track, bool) {
	full := item.Track.Track
	if item.IsLocal || full == nil || full.ID == "" {
		return models.Track{}, false
	}

	artists := make([]models.Artist, 0, len(full.Artists))
	for _, a := range full.Artists {
		artists = append(artists, models.Artist{ID: string(a.ID), Name: a.Name})
	}

	var addedAt time.Time
	if item.AddedAt != "" {
		var err error
		addedAt, err = time.Parse(time.RFC3339, item.AddedAt)
		if err != nil {
			logger.Debug("malformed added_at", "track", full.ID, "added_at", item.AddedAt, "err", err)
		}
	}

	return models.Track{
		ID:      string(full.ID),
		Name:    full.Name,
		Artists: artists,
		Album: models.Album{
			ID:          string(full.Album.ID),
			Name:        full.Album.Name,
			ReleaseDate: full.Album.ReleaseDate,
		},
		DurationMS: int(full.Duration),
		AddedAt:    addedAt.UTC(),
		AddedBy:    item.AddedBy.ID,
		IsLocal:    false,
	}, true
}

func ownerName(u spotify.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}
