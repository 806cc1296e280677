package tasks

import (
	"github.com/desertthunder/spotbak/internal/formatter"
	"github.com/desertthunder/spotbak/internal/models"
)

// NewTracks returns the tracks in current whose id is not recorded in existingCSV, in their
// original order. An empty snapshot makes every track new.
func NewTracks(current []models.Track, existingCSV string) []models.Track {
	existing := formatter.ExtractIDs(existingCSV)

	fresh := make([]models.Track, 0)
	for _, track := range current {
		if _, seen := existing[track.ID]; !seen {
			fresh = append(fresh, track)
		}
	}
	return fresh
}
