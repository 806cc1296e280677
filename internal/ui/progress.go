package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/desertthunder/spotbak/internal/tasks"
)

// Progress prints finished-playlist updates from a channel until it is closed.
type Progress struct {
	updates chan tasks.ProgressUpdate
	done    sync.WaitGroup
}

// NewProgress starts printing to w. When quiet is set updates are drained without output.
func NewProgress(w io.Writer, p *Palette, quiet bool) *Progress {
	if p == nil {
		p = DefaultPalette
	}

	pr := &Progress{updates: make(chan tasks.ProgressUpdate, 64)}
	pr.done.Add(1)
	go func() {
		defer pr.done.Done()
		for u := range pr.updates {
			if quiet || u.Data == nil {
				continue
			}
			fmt.Fprintln(w, p.Colorize(u.Message))
		}
	}()
	return pr
}

// Updates is the channel handed to the engine.
func (pr *Progress) Updates() chan<- tasks.ProgressUpdate {
	return pr.updates
}

// Close stops accepting updates and waits for every pending line to be written.
func (pr *Progress) Close() {
	close(pr.updates)
	pr.done.Wait()
}
