// Package ui renders terminal output for the CLI.
//
// A [Palette] colors status marks and headings with lipgloss. [Progress] prints the per-playlist
// lines of a running backup or sync from a [tasks.ProgressUpdate] channel, and [PromptInput] asks
// the user for a value with a huh form.
package ui
