package services

import (
	"context"
	"time"

	"github.com/desertthunder/spotbak/internal/models"
)

// PlaylistSource lists the user's playlists with tracks populated and local tracks excluded.
type PlaylistSource interface {
	ListAllPlaylists(ctx context.Context) ([]models.Playlist, error)
}

// RemoteReader reads snapshots from remote storage.
type RemoteReader interface {
	// Download returns the file content. found is false when the file does not exist;
	// any other failure is returned as an error.
	Download(ctx context.Context, path string) (content string, found bool, err error)

	// ListWithMetadata lists the files directly inside folder. A missing folder is empty.
	ListWithMetadata(ctx context.Context, folder string) ([]FileInfo, error)
}

// RemoteWriter writes snapshots to remote storage.
type RemoteWriter interface {
	// Upload writes content at path, overwriting any existing file.
	// The parent folder must already exist.
	Upload(ctx context.Context, content, path string) error

	// EnsureFolder creates path if needed. An existing folder is not an error.
	EnsureFolder(ctx context.Context, path string) error
}

// Storage is a remote store that can be read and written.
type Storage interface {
	RemoteReader
	RemoteWriter
}

// FileInfo describes a remote file.
type FileInfo struct {
	Path     string    `json:"path"`
	Modified time.Time `json:"modified"`
}
