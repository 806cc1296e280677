package main

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/desertthunder/spotbak/internal/services"
	"github.com/desertthunder/spotbak/internal/shared"
	"github.com/desertthunder/spotbak/internal/tasks"
	"github.com/desertthunder/spotbak/internal/ui"
	"github.com/urfave/cli/v3"
)

// Backup writes full snapshots of all playlists, or of the one selected with --playlist.
func (r *Runner) Backup(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")

	engine, err := r.engine(ctx)
	if err != nil {
		return err
	}
	r.announceDryRun(useJSON)

	if key := cmd.String("playlist"); key != "" {
		playlists, err := engine.Playlists(ctx)
		if err != nil {
			return err
		}
		p, err := tasks.Select(playlists, key)
		if err != nil {
			return err
		}

		result := engine.BackupOne(ctx, p)
		if useJSON {
			if err := r.writeJSON(result, true); err != nil {
				return err
			}
		} else {
			r.printBackup(result)
		}
		if !result.Success {
			return fmt.Errorf("%w: %s", shared.ErrBackupFailed, result.Error)
		}
		return nil
	}

	progress := ui.NewProgress(r.output, r.palette, useJSON)
	result, err := engine.BackupAllPlaylists(ctx, progress.Updates())
	progress.Close()
	if err != nil {
		return err
	}

	if useJSON {
		if err := r.writeJSON(result, true); err != nil {
			return err
		}
	} else {
		r.writePlainln("Backup complete: %d/%d successful", result.Successful, result.TotalPlaylists)
	}

	if result.Failed > 0 {
		return fmt.Errorf("%w: %d of %d playlists failed", shared.ErrBackupFailed, result.Failed, result.TotalPlaylists)
	}
	return nil
}

func (r *Runner) printBackup(result tasks.PlaylistBackupResult) {
	if result.Success {
		r.writePlain("%s %s (%d tracks) → %s\n", r.palette.Mark(true), result.PlaylistName, result.TrackCount, result.FilePath)
		return
	}
	r.writePlain("%s %s: %s\n", r.palette.Mark(false), result.PlaylistName, result.Error)
}

// Sync rewrites snapshots of playlists that gained tracks since the last run.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")

	engine, err := r.engine(ctx)
	if err != nil {
		return err
	}
	r.announceDryRun(useJSON)

	if key := cmd.String("playlist"); key != "" {
		playlists, err := engine.Playlists(ctx)
		if err != nil {
			return err
		}
		p, err := tasks.Select(playlists, key)
		if err != nil {
			return err
		}

		result := engine.SyncOne(ctx, p)
		if useJSON {
			if err := r.writeJSON(result, true); err != nil {
				return err
			}
		} else {
			r.printSync(result)
		}
		if result.Failed() {
			return fmt.Errorf("%w: %s", shared.ErrBackupFailed, result.Error)
		}
		return nil
	}

	progress := ui.NewProgress(r.output, r.palette, useJSON)
	result, err := engine.SyncAllPlaylists(ctx, progress.Updates())
	progress.Close()
	if err != nil {
		return err
	}

	if useJSON {
		if err := r.writeJSON(result, true); err != nil {
			return err
		}
	} else {
		r.writePlainln("Sync complete: %d/%d updated, %d new tracks",
			result.PlaylistsUpdated, result.PlaylistsChecked, result.TotalNewTracks)
	}

	if result.PlaylistsFailed > 0 {
		return fmt.Errorf("%w: %d of %d playlists failed to sync", shared.ErrBackupFailed, result.PlaylistsFailed, result.PlaylistsChecked)
	}
	return nil
}

func (r *Runner) printSync(result tasks.PlaylistSyncResult) {
	switch {
	case result.Failed():
		r.writePlain("%s %s: %s\n", r.palette.Mark(false), result.PlaylistName, result.Error)
	case result.Updated:
		r.writePlain("%s %s (+%d new tracks, %d total)\n", r.palette.Mark(true), result.PlaylistName, result.NewTracks, result.TotalTracks)
	default:
		r.writePlain("- %s (no changes)\n", result.PlaylistName)
	}
}

// List prints the user's playlists.
func (r *Runner) List(ctx context.Context, cmd *cli.Command) error {
	logger := shared.WithLogger(r.logger, "run", shared.GenerateID())
	source, err := r.spotifySource(ctx, logger)
	if err != nil {
		return err
	}

	playlists, err := source.ListAllPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch playlists: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}

	if len(playlists) == 0 {
		return r.writePlain("No playlists found.\n")
	}

	verbose := cmd.Bool("verbose")
	for _, p := range playlists {
		r.writePlain("%s (%d tracks)\n", p.Name, p.TrackCount())
		if verbose {
			r.writePlain("  ID: %s\n", p.ID)
			r.writePlain("  Owner: %s\n", p.Owner)
			if p.Description != "" {
				r.writePlain("  Description: %s\n", p.Description)
			}
		}
	}
	return nil
}

// Status reports how many snapshots exist in the backup folder and which was written last.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	logger := shared.WithLogger(r.logger, "run", shared.GenerateID())
	storage, err := r.dropboxStorage(ctx, logger)
	if err != nil {
		return err
	}

	folder := tasks.NormalizeFolder(r.config.Backup.Folder)
	files, err := storage.ListWithMetadata(ctx, folder)
	if err != nil {
		return err
	}

	var backups []services.FileInfo
	for _, f := range files {
		if strings.EqualFold(path.Ext(f.Path), ".csv") {
			backups = append(backups, f)
		}
	}

	r.writePlain("Backup folder: %s\n", folder)
	if len(backups) == 0 {
		return r.writePlain("No backups found in Dropbox.\n")
	}

	latest := backups[0]
	for _, f := range backups[1:] {
		if f.Modified.After(latest.Modified) {
			latest = f
		}
	}

	r.writePlain("Backups found: %d\n", len(backups))
	return r.writePlain("Latest backup: %s (%s)\n", latest.Path, latest.Modified.UTC().Format("2006-01-02 15:04:05 UTC"))
}
