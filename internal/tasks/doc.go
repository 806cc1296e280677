// Package tasks orchestrates playlist backups to remote storage with progress reporting.
//
// # Core Operations
//
// [BackupEngine] drives two operations, each available for a single playlist or a batch:
//
//  1. Backup : unconditional snapshot
//     - Ensures the backup folder exists
//     - Serializes the full playlist to CSV
//     - Uploads it, overwriting the previous snapshot
//
//  2. Sync : conditional snapshot
//     - Downloads the previous snapshot, if any
//     - Diffs track ids with [NewTracks]
//     - Rewrites the full snapshot only when new tracks appeared
//
// Batches run sequentially in the order the source returned the playlists. A failure is
// recorded on that playlist's result and the batch moves on.
//
// # Dry Run
//
// Dry runs pass a [services.DryRunWriter] as the engine's writer. Reads still hit the real
// storage so sync reports accurate counts.
//
// # Progress Reporting
//
// All batch operations accept an optional channel of [ProgressUpdate]. Sends use select with
// default so a slow or absent reader never blocks a backup.
package tasks
