// package formatter encodes playlists as the CSV snapshots stored in Dropbox
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/spotbak/internal/models"
)

// BOM is prepended to every snapshot so spreadsheet apps detect UTF-8.
const BOM = "\ufeff"

// Fields is the fixed snapshot header.
var Fields = []string{
	"track_id",
	"track_name",
	"artists",
	"album",
	"album_release_date",
	"added_at",
	"added_by",
	"duration_ms",
	"is_local",
}

var invalidFilenameChars = regexp.MustCompile(`[\\/:*?"<>|]+`)

// Record converts a track into a row ordered like [Fields].
func Record(t models.Track) []string {
	return []string{
		t.ID,
		t.Name,
		t.ArtistNames(),
		t.Album.Name,
		t.Album.ReleaseDate,
		FormatTimestamp(t.AddedAt),
		t.AddedBy,
		strconv.Itoa(t.DurationMS),
		strconv.FormatBool(t.IsLocal),
	}
}

// FormatTimestamp renders t in UTC as RFC 3339 with a literal Z suffix. The zero time renders empty.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Serialize writes the BOM, the header and one row per track in order.
//
// Output is byte-identical for identical input.
func Serialize(tracks []models.Track) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(BOM)

	writer := csv.NewWriter(&buf)
	if err := writer.Write(Fields); err != nil {
		return "", fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		if err := writer.Write(Record(track)); err != nil {
			return "", fmt.Errorf("failed to write CSV record for %s: %w", track.ID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.String(), nil
}

// SerializePlaylist serializes the playlist's tracks.
func SerializePlaylist(p models.Playlist) (string, error) {
	return Serialize(p.Tracks)
}

// ExtractIDs returns the set of non-empty track ids recorded in a snapshot.
//
// A leading BOM is tolerated, extra or missing columns other than track_id are ignored,
// and empty, header-only or unreadable content yields an empty set.
func ExtractIDs(content string) map[string]struct{} {
	ids := make(map[string]struct{})

	content = strings.TrimSpace(strings.TrimPrefix(content, BOM))
	if content == "" {
		return ids
	}

	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return ids
	}

	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == "track_id" {
			col = i
			break
		}
	}
	if col < 0 {
		return ids
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep whatever parsed before the malformed row.
			break
		}
		if col >= len(record) {
			continue
		}
		if id := record[col]; id != "" {
			ids[id] = struct{}{}
		}
	}

	return ids
}

// MakeFilename derives a filesystem-safe snapshot name ending in "-{id}.csv".
func MakeFilename(p models.Playlist) string {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = "playlist"
	}

	name = invalidFilenameChars.ReplaceAllString(name, "-")
	name = strings.Join(strings.Fields(name), " ")
	name = strings.TrimRight(name, " .")
	if name == "" {
		name = "playlist"
	}

	return fmt.Sprintf("%s-%s.csv", name, p.ID)
}
