// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/spotbak/internal/models"
	"github.com/desertthunder/spotbak/internal/services"
)

// FixedTime is the added_at used by [NewTrack].
var FixedTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// NewTrack builds a track with deterministic metadata.
func NewTrack(id string) models.Track {
	return models.Track{
		ID:         id,
		Name:       "Song " + id,
		Artists:    []models.Artist{{ID: "artist-1", Name: "Artist"}},
		Album:      models.Album{ID: "album-1", Name: "Album", ReleaseDate: "2024-01-01"},
		DurationMS: 210000,
		AddedAt:    FixedTime,
		AddedBy:    "user-1",
	}
}

// NewPlaylist builds a playlist holding one [NewTrack] per track id.
func NewPlaylist(id, name string, trackIDs ...string) models.Playlist {
	tracks := make([]models.Track, 0, len(trackIDs))
	for _, tid := range trackIDs {
		tracks = append(tracks, NewTrack(tid))
	}
	return models.Playlist{
		ID:          id,
		Name:        name,
		Owner:       "owner-1",
		Tracks:      tracks,
		SnapshotID:  "snap-" + id,
		TotalTracks: len(tracks),
	}
}

// MockSource is a test double for [services.PlaylistSource]
type MockSource struct {
	Playlists []models.Playlist
	Err       error
	Calls     int

	User    string
	UserErr error
}

func (m *MockSource) CurrentUser(ctx context.Context) (string, error) {
	return m.User, m.UserErr
}

func (m *MockSource) ListAllPlaylists(ctx context.Context) ([]models.Playlist, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Playlists, nil
}

// Upload records one write to [MemoryStorage].
type Upload struct {
	Path    string
	Content string
}

// MemoryStorage is an in-memory [services.Storage] with per-path failure injection.
type MemoryStorage struct {
	mu sync.Mutex

	Files    map[string]string
	Modified map[string]time.Time
	Folders  map[string]bool

	Uploads   []Upload
	Ensured   []string
	Downloads []string

	UploadErr   map[string]error
	DownloadErr map[string]error
	EnsureErr   error
	ListErr     error

	Account    string
	AccountErr error
}

func (m *MemoryStorage) CurrentAccount(ctx context.Context) (string, error) {
	return m.Account, m.AccountErr
}

// NewMemoryStorage returns an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Files:       map[string]string{},
		Modified:    map[string]time.Time{},
		Folders:     map[string]bool{},
		UploadErr:   map[string]error{},
		DownloadErr: map[string]error{},
	}
}

// Put seeds a file without recording an upload.
func (m *MemoryStorage) Put(path, content string, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[path] = content
	m.Modified[path] = modified
}

func (m *MemoryStorage) Upload(ctx context.Context, content, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.UploadErr[path]; err != nil {
		return err
	}
	m.Uploads = append(m.Uploads, Upload{Path: path, Content: content})
	m.Files[path] = content
	m.Modified[path] = FixedTime.Add(time.Duration(len(m.Uploads)) * time.Minute)
	return nil
}

func (m *MemoryStorage) EnsureFolder(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnsureErr != nil {
		return m.EnsureErr
	}
	m.Ensured = append(m.Ensured, path)
	m.Folders[path] = true
	return nil
}

func (m *MemoryStorage) Download(ctx context.Context, path string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Downloads = append(m.Downloads, path)
	if err := m.DownloadErr[path]; err != nil {
		return "", false, err
	}
	content, ok := m.Files[path]
	return content, ok, nil
}

func (m *MemoryStorage) ListWithMetadata(ctx context.Context, folder string) ([]services.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	prefix := strings.TrimSuffix(folder, "/") + "/"
	var files []services.FileInfo
	for path := range m.Files {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		files = append(files, services.FileInfo{Path: path, Modified: m.Modified[path]})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// UploadedPaths returns the paths written so far, in order.
func (m *MemoryStorage) UploadedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.Uploads))
	for _, u := range m.Uploads {
		paths = append(paths, u.Path)
	}
	return paths
}

// ErrRemote is a generic failure for injection.
var ErrRemote = errors.New("remote failure")

// FailingWriter returns err for every write call.
type FailingWriter struct{ Err error }

func (f FailingWriter) Upload(ctx context.Context, content, path string) error {
	return fmt.Errorf("upload %s: %w", path, f.Err)
}

func (f FailingWriter) EnsureFolder(ctx context.Context, path string) error {
	return fmt.Errorf("ensure %s: %w", path, f.Err)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit reached")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func MustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}
