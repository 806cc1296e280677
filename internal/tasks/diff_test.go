package tasks

import (
	"testing"

	"github.com/desertthunder/spotbak/internal/formatter"
	"github.com/desertthunder/spotbak/internal/models"
	th "github.com/desertthunder/spotbak/internal/testing"
)

func ids(tracks []models.Track) []string {
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.ID)
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewTracks(t *testing.T) {
	snapshot := func(trackIDs ...string) string {
		out, err := formatter.Serialize(th.NewPlaylist("p", "P", trackIDs...).Tracks)
		if err != nil {
			t.Fatalf("serialize failed: %v", err)
		}
		return out
	}

	tc := []struct {
		name     string
		current  []string
		existing string
		want     []string
	}{
		{name: "empty snapshot makes everything new", current: []string{"a", "b"}, existing: "", want: []string{"a", "b"}},
		{name: "unchanged playlist", current: []string{"a", "b"}, existing: snapshot("a", "b"), want: []string{}},
		{name: "appended track", current: []string{"a", "b", "c"}, existing: snapshot("a", "b"), want: []string{"c"}},
		{name: "preserves current order", current: []string{"z", "a", "y"}, existing: snapshot("a"), want: []string{"z", "y"}},
		{name: "removed tracks are ignored", current: []string{"a"}, existing: snapshot("a", "b"), want: []string{}},
		{name: "duplicate ids are both new", current: []string{"x", "x"}, existing: snapshot("a"), want: []string{"x", "x"}},
		{name: "duplicate ids already recorded", current: []string{"a", "a"}, existing: snapshot("a"), want: []string{}},
		{name: "header only snapshot", current: []string{"a"}, existing: snapshot(), want: []string{"a"}},
		{name: "empty playlist", current: nil, existing: snapshot("a"), want: []string{}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			current := th.NewPlaylist("p", "P", tt.current...).Tracks
			got := ids(NewTracks(current, tt.existing))
			if !equalIDs(got, tt.want) {
				t.Errorf("NewTracks() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("idempotent on its own snapshot", func(t *testing.T) {
		for _, set := range [][]string{{}, {"a"}, {"a", "b", "c"}, {"dup", "dup"}} {
			tracks := th.NewPlaylist("p", "P", set...).Tracks
			existing, err := formatter.Serialize(tracks)
			if err != nil {
				t.Fatalf("serialize failed: %v", err)
			}
			if got := NewTracks(tracks, existing); len(got) != 0 {
				t.Errorf("expected no new tracks for %v, got %v", set, ids(got))
			}
			if got := NewTracks(tracks, ""); len(got) != len(tracks) {
				t.Errorf("expected all tracks new for %v, got %v", set, ids(got))
			}
		}
	})
}
