package models

import (
	"strings"
	"time"
)

// Artist is a track's credited artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Album is the album a track was released on. An empty ReleaseDate means the source did not report one.
type Album struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date,omitempty"`
}

// Track is one entry of a playlist.
//
// IDs may repeat within a playlist when the same song was added twice.
type Track struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Artists    []Artist  `json:"artists"`
	Album      Album     `json:"album"`
	DurationMS int       `json:"duration_ms"`
	AddedAt    time.Time `json:"added_at"`
	AddedBy    string    `json:"added_by,omitempty"`
	IsLocal    bool      `json:"is_local"`
}

// ArtistNames joins the artist names with ", ".
func (t Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// Playlist is a playlist and its tracks at the time it was fetched.
//
// TotalTracks is the count reported by Spotify; Tracks is authoritative for backups.
type Playlist struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Owner       string  `json:"owner"`
	Tracks      []Track `json:"tracks"`
	SnapshotID  string  `json:"snapshot_id"`
	TotalTracks int     `json:"total_tracks"`
}

// TrackCount returns the number of fetched tracks.
func (p Playlist) TrackCount() int {
	return len(p.Tracks)
}
