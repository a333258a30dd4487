package sweep

import (
	"testing"
)

func TestNewlySeenOnlyRecordsArrivals(t *testing.T) {
	prev := []string{"puid-a", "puid-b"}
	cur := []string{"puid-a", "puid-b", "puid-c"}
	got := newlySeen(prev, cur)
	if len(got) != 1 || got[0] != "puid-c" {
		t.Fatalf("newlySeen = %v, want [puid-c]", got)
	}
}

func TestNewlySeenCampersAreQuiet(t *testing.T) {
	// A player sitting on the server across cycles must not produce a
	// join event every cycle.
	set := []string{"puid-a", "puid-b"}
	if got := newlySeen(set, set); len(got) != 0 {
		t.Fatalf("unchanged occupants produced joins: %v", got)
	}
}

func TestNewlySeenFirstSnapshot(t *testing.T) {
	cur := []string{"puid-a", "puid-b"}
	got := newlySeen(nil, cur)
	if len(got) != 2 {
		t.Fatalf("first snapshot should record everyone, got %v", got)
	}
}

func TestNewlySeenLeaversIgnored(t *testing.T) {
	got := newlySeen([]string{"puid-a", "puid-b"}, []string{"puid-b"})
	if len(got) != 0 {
		t.Fatalf("departures are not joins: %v", got)
	}
}

func TestBatchRanges(t *testing.T) {
	tests := []struct {
		total, size int
		want        [][2]int
	}{
		{0, 50, nil},
		{10, 50, [][2]int{{0, 10}}},
		{50, 50, [][2]int{{0, 50}}},
		{120, 50, [][2]int{{0, 50}, {50, 100}, {100, 120}}},
		{100, 50, [][2]int{{0, 50}, {50, 100}}},
	}
	for _, tt := range tests {
		got := batchRanges(tt.total, tt.size)
		if len(got) != len(tt.want) {
			t.Fatalf("batchRanges(%d,%d) = %v, want %v", tt.total, tt.size, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("batchRanges(%d,%d)[%d] = %v, want %v", tt.total, tt.size, i, got[i], tt.want[i])
			}
		}
	}
}
