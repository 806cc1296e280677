// package tasks implements playlist backup and incremental sync against remote storage.
//
// The core abstraction is BackupEngine, which writes CSV snapshots and records per-playlist outcomes.
// Batch operations emit progress updates via channels for non-blocking status reporting to the CLI.
package tasks

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotbak/internal/formatter"
	"github.com/desertthunder/spotbak/internal/models"
	"github.com/desertthunder/spotbak/internal/services"
	"github.com/desertthunder/spotbak/internal/shared"
)

// PlaylistBackupResult is the outcome of backing up one playlist.
type PlaylistBackupResult struct {
	PlaylistName string `json:"playlist_name"`
	TrackCount   int    `json:"track_count"` // tracks in the playlist, not confirmed remotely
	FilePath     string `json:"file_path"`   // destination, set even on failure
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// BackupResult aggregates a batch backup.
type BackupResult struct {
	TotalPlaylists  int                    `json:"total_playlists"`
	Successful      int                    `json:"successful"`
	Failed          int                    `json:"failed"`
	PlaylistResults []PlaylistBackupResult `json:"playlist_results"`
}

// PlaylistSyncResult is the outcome of syncing one playlist.
type PlaylistSyncResult struct {
	PlaylistName string `json:"playlist_name"`
	FilePath     string `json:"file_path,omitempty"`
	NewTracks    int    `json:"new_tracks"`
	TotalTracks  int    `json:"total_tracks"`
	Updated      bool   `json:"updated"`
	NotFound     bool   `json:"not_found,omitempty"` // the requested playlist id does not exist
	Error        string `json:"error,omitempty"`
}

// Failed reports whether the sync hit an error or the playlist was missing.
func (r PlaylistSyncResult) Failed() bool {
	return r.Error != "" || r.NotFound
}

// SyncResult aggregates a batch sync.
type SyncResult struct {
	PlaylistsChecked int                  `json:"playlists_checked"`
	PlaylistsUpdated int                  `json:"playlists_updated"`
	PlaylistsFailed  int                  `json:"playlists_failed"`
	TotalNewTracks   int                  `json:"total_new_tracks"`
	Results          []PlaylistSyncResult `json:"results"`
}

// EngineOpts configures a [BackupEngine].
type EngineOpts struct {
	Source services.PlaylistSource
	Reader services.RemoteReader
	Writer services.RemoteWriter // real storage, or [services.DryRunWriter] for dry runs
	Folder string               // backup folder, normalized by [NormalizeFolder]
	Logger *log.Logger
}

// BackupEngine backs up and syncs playlists one at a time.
type BackupEngine struct {
	source services.PlaylistSource
	reader services.RemoteReader
	writer services.RemoteWriter
	folder string
	logger *log.Logger
}

// NewBackupEngine creates a [BackupEngine].
func NewBackupEngine(opts EngineOpts) *BackupEngine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &BackupEngine{
		source: opts.Source,
		reader: opts.Reader,
		writer: opts.Writer,
		folder: NormalizeFolder(opts.Folder),
		logger: logger,
	}
}

// Folder returns the normalized backup folder.
func (e *BackupEngine) Folder() string {
	return e.folder
}

// NormalizeFolder returns folder as an absolute path without a trailing slash. Blank is the root.
func NormalizeFolder(folder string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return "/"
	}
	if !strings.HasPrefix(folder, "/") {
		folder = "/" + folder
	}
	folder = strings.TrimRight(folder, "/")
	if folder == "" {
		return "/"
	}
	return folder
}

// BackupPath returns the snapshot path of p inside folder.
func BackupPath(folder string, p models.Playlist) string {
	folder = NormalizeFolder(folder)
	name := formatter.MakeFilename(p)
	if folder == "/" {
		return "/" + name
	}
	return folder + "/" + name
}

// sendProgress sends a progress update through the channel without blocking.
func (e *BackupEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// sendResult delivers a finished-playlist update. It waits for the reader until ctx is done, so
// result lines are never dropped.
func (e *BackupEngine) sendResult(ctx context.Context, progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	case <-ctx.Done():
	}
}

func (e *BackupEngine) ensureFolder(ctx context.Context) error {
	if e.folder == "/" {
		return nil
	}
	return e.writer.EnsureFolder(ctx, e.folder)
}

// write ensures the folder, serializes p and uploads it to path.
func (e *BackupEngine) write(ctx context.Context, p models.Playlist, path string) error {
	if err := e.ensureFolder(ctx); err != nil {
		return err
	}

	content, err := formatter.SerializePlaylist(p)
	if err != nil {
		return err
	}

	return e.writer.Upload(ctx, content, path)
}

// BackupOne writes a full snapshot of p. Failures are recorded on the result, never returned.
func (e *BackupEngine) BackupOne(ctx context.Context, p models.Playlist) PlaylistBackupResult {
	path := BackupPath(e.folder, p)
	result := PlaylistBackupResult{
		PlaylistName: p.Name,
		TrackCount:   p.TrackCount(),
		FilePath:     path,
	}

	if err := e.write(ctx, p, path); err != nil {
		result.Error = err.Error()
		e.logger.Error("backup failed", "playlist", p.Name, "path", path, "err", err)
		return result
	}

	result.Success = true
	e.logger.Info("backed up playlist", "playlist", p.Name, "path", path, "tracks", result.TrackCount)
	return result
}

// BackupAll backs up playlists in order. One failure never stops the batch.
func (e *BackupEngine) BackupAll(ctx context.Context, playlists []models.Playlist, progress chan<- ProgressUpdate) *BackupResult {
	total := len(playlists)
	result := &BackupResult{
		TotalPlaylists:  total,
		PlaylistResults: make([]PlaylistBackupResult, 0, total),
	}

	e.logger.Info("starting backup", "playlists", total, "folder", e.folder)
	for i, p := range playlists {
		step := i + 1
		e.sendProgress(progress, backingUpUpdate(step, total, p))

		r := e.BackupOne(ctx, p)
		result.PlaylistResults = append(result.PlaylistResults, r)
		if r.Success {
			result.Successful++
		} else {
			result.Failed++
		}

		e.sendResult(ctx, progress, backupDoneUpdate(step, total, r))
	}

	return result
}

// fetch lists playlists from the source.
func (e *BackupEngine) fetch(ctx context.Context, progress chan<- ProgressUpdate) ([]models.Playlist, error) {
	e.sendProgress(progress, fetchingPlaylistsUpdate())

	playlists, err := e.source.ListAllPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlists: %w", err)
	}

	e.sendProgress(progress, fetchedPlaylistsUpdate(len(playlists)))
	return playlists, nil
}

// Playlists lists playlists from the source.
func (e *BackupEngine) Playlists(ctx context.Context) ([]models.Playlist, error) {
	return e.fetch(ctx, nil)
}

// BackupAllPlaylists fetches every playlist and backs them all up.
func (e *BackupEngine) BackupAllPlaylists(ctx context.Context, progress chan<- ProgressUpdate) (*BackupResult, error) {
	playlists, err := e.fetch(ctx, progress)
	if err != nil {
		return nil, err
	}
	return e.BackupAll(ctx, playlists, progress), nil
}

// BackupByID backs up the playlist with the given id. A missing id is a failed result.
func (e *BackupEngine) BackupByID(ctx context.Context, id string) (PlaylistBackupResult, error) {
	playlists, err := e.fetch(ctx, nil)
	if err != nil {
		return PlaylistBackupResult{}, err
	}

	for _, p := range playlists {
		if p.ID == id {
			return e.BackupOne(ctx, p), nil
		}
	}

	e.logger.Warn("playlist not found", "id", id)
	return PlaylistBackupResult{
		PlaylistName: id,
		Error:        fmt.Sprintf("%v: %s", shared.ErrPlaylistNotFound, id),
	}, nil
}

// SyncOne rewrites p's snapshot when it holds tracks the previous snapshot lacks.
//
// Without a previous snapshot every track is new. Failures are recorded on the result.
func (e *BackupEngine) SyncOne(ctx context.Context, p models.Playlist) PlaylistSyncResult {
	path := BackupPath(e.folder, p)
	result := PlaylistSyncResult{
		PlaylistName: p.Name,
		FilePath:     path,
		TotalTracks:  p.TrackCount(),
	}

	existing, found, err := e.reader.Download(ctx, path)
	if err != nil {
		result.Error = err.Error()
		e.logger.Error("sync failed", "playlist", p.Name, "path", path, "err", err)
		return result
	}

	fresh := p.Tracks
	if found {
		fresh = NewTracks(p.Tracks, existing)
	}

	if found && len(fresh) == 0 {
		e.logger.Debug("playlist unchanged", "playlist", p.Name, "path", path)
		return result
	}

	if err := e.write(ctx, p, path); err != nil {
		result.Error = err.Error()
		e.logger.Error("sync failed", "playlist", p.Name, "path", path, "err", err)
		return result
	}

	result.Updated = true
	result.NewTracks = len(fresh)
	e.logger.Info("synced playlist", "playlist", p.Name, "path", path, "new_tracks", result.NewTracks, "first_backup", !found)
	return result
}

// SyncAll syncs playlists in order. One failure never stops the batch.
func (e *BackupEngine) SyncAll(ctx context.Context, playlists []models.Playlist, progress chan<- ProgressUpdate) *SyncResult {
	total := len(playlists)
	result := &SyncResult{Results: make([]PlaylistSyncResult, 0, total)}

	e.logger.Info("starting sync", "playlists", total, "folder", e.folder)
	for i, p := range playlists {
		step := i + 1
		e.sendProgress(progress, syncingUpdate(step, total, p))

		r := e.SyncOne(ctx, p)
		result.Results = append(result.Results, r)
		result.PlaylistsChecked++
		result.TotalNewTracks += r.NewTracks
		if r.Updated {
			result.PlaylistsUpdated++
		}
		if r.Failed() {
			result.PlaylistsFailed++
		}

		e.sendResult(ctx, progress, syncDoneUpdate(step, total, r))
	}

	return result
}

// SyncAllPlaylists fetches every playlist and syncs them all.
func (e *BackupEngine) SyncAllPlaylists(ctx context.Context, progress chan<- ProgressUpdate) (*SyncResult, error) {
	playlists, err := e.fetch(ctx, progress)
	if err != nil {
		return nil, err
	}
	return e.SyncAll(ctx, playlists, progress), nil
}

// SyncByID syncs the playlist with the given id.
//
// A missing id touches no remote storage and yields an unchanged zero result named after the
// id with NotFound set.
func (e *BackupEngine) SyncByID(ctx context.Context, id string) (PlaylistSyncResult, error) {
	playlists, err := e.fetch(ctx, nil)
	if err != nil {
		return PlaylistSyncResult{}, err
	}

	for _, p := range playlists {
		if p.ID == id {
			return e.SyncOne(ctx, p), nil
		}
	}

	e.logger.Warn("playlist not found", "id", id)
	return PlaylistSyncResult{PlaylistName: id, NotFound: true}, nil
}

// Select returns the playlist whose id or name equals key exactly.
func Select(playlists []models.Playlist, key string) (models.Playlist, error) {
	var matches []models.Playlist
	for _, p := range playlists {
		if p.ID == key || p.Name == key {
			matches = append(matches, p)
		}
	}

	switch len(matches) {
	case 0:
		return models.Playlist{}, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, key)
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, 0, len(matches))
		for _, p := range matches {
			ids = append(ids, p.ID)
		}
		return models.Playlist{}, fmt.Errorf("%w: %q matches %s", shared.ErrAmbiguousPlaylist, key, strings.Join(ids, ", "))
	}
}
