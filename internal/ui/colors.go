package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// DefaultPalette is used by the CLI.
var DefaultPalette = NewPalette("#1DB954", "#04B575", "#FF0000", "#FFA500", "#626262")

// Painter colors text with [lipgloss] styles.
type Painter interface {
	OK(string) string
	Err(string) string
	Warn(string) string
}

// Palette is a small stylesheet built with named [lipgloss.Style] fields.
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

func (p *Palette) Title(s string) string { return p.title.Render(s) }
func (p *Palette) OK(s string) string    { return p.ok.Render(s) }
func (p *Palette) Err(s string) string   { return p.err.Render(s) }
func (p *Palette) Warn(s string) string  { return p.warn.Render(s) }
func (p *Palette) Help(s string) string  { return p.help.Render(s) }

// Mark returns a styled ✓ or ✗.
func (p *Palette) Mark(ok bool) string {
	if ok {
		return p.OK("✓")
	}
	return p.Err("✗")
}

// Colorize styles the first status mark found in line.
func (p *Palette) Colorize(line string) string {
	for _, m := range []struct {
		mark  string
		paint func(string) string
	}{
		{"✓", p.OK},
		{"✗", p.Err},
		{"⚠", p.Warn},
	} {
		if i := strings.Index(line, m.mark); i >= 0 {
			return line[:i] + m.paint(m.mark) + line[i+len(m.mark):]
		}
	}
	return line
}

var _ Painter = (*Palette)(nil)
