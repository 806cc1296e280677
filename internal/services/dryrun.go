package services

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
)

// DryRunWriter is a [RemoteWriter] that only logs what it would have written.
type DryRunWriter struct {
	logger *log.Logger
}

// NewDryRunWriter returns a writer that never touches remote storage.
func NewDryRunWriter(logger *log.Logger) *DryRunWriter {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &DryRunWriter{logger: logger.With("dry_run", true)}
}

func (d *DryRunWriter) Upload(ctx context.Context, content, path string) error {
	d.logger.Info("would upload", "path", path, "bytes", len(content))
	return nil
}

func (d *DryRunWriter) EnsureFolder(ctx context.Context, path string) error {
	d.logger.Info("would ensure folder", "path", path)
	return nil
}
