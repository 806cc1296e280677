package tasks

import (
	"fmt"

	"github.com/desertthunder/spotbak/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data, the per-playlist result when finished
}

// Operation phase enumeration
type Phase int

const (
	FetchPlaylists Phase = iota
	BackupPlaylist
	SyncPlaylist
)

func (p Phase) String() string {
	switch p {
	case FetchPlaylists:
		return "fetch_playlists"
	case BackupPlaylist:
		return "backup_playlist"
	case SyncPlaylist:
		return "sync_playlist"
	default:
		return ""
	}
}

func fetchingPlaylistsUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Message: "Fetching playlists from Spotify...",
	}
}

func fetchedPlaylistsUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    count,
		Total:   count,
		Message: fmt.Sprintf("Found %d playlists", count),
	}
}

func backingUpUpdate(step, total int, p models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BackupPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Backing up: %s...", step, total, p.Name),
	}
}

func backupDoneUpdate(step, total int, r PlaylistBackupResult) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ %s (%d tracks)", step, total, r.PlaylistName, r.TrackCount)
	if !r.Success {
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, r.PlaylistName, r.Error)
	}
	return ProgressUpdate{
		Phase:   BackupPlaylist,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    r,
	}
}

func syncingUpdate(step, total int, p models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Syncing: %s...", step, total, p.Name),
	}
}

func syncDoneUpdate(step, total int, r PlaylistSyncResult) ProgressUpdate {
	var msg string
	switch {
	case r.Error != "":
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, r.PlaylistName, r.Error)
	case r.Updated:
		msg = fmt.Sprintf("[%d/%d] ✓ %s (+%d new tracks)", step, total, r.PlaylistName, r.NewTracks)
	default:
		msg = fmt.Sprintf("[%d/%d] - %s (no changes)", step, total, r.PlaylistName)
	}
	return ProgressUpdate{
		Phase:   SyncPlaylist,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    r,
	}
}
