// Package models defines the value records shared by the backup pipeline.
//
// Records are built once from a Spotify API response and never mutated afterwards:
//   - [Artist] and [Album] : track metadata
//   - [Track] : a single playlist entry, identified by its Spotify id
//   - [Playlist] : playlist metadata with its ordered track listing
//
// The CSV snapshot written to Dropbox is derived from these records by the formatter package.
package models
