package graph

import (
	"bytes"
	"testing"
	"time"
)

func TestRenderPNG(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	points := []Point{
		{At: base, Players: 40},
		{At: base.Add(time.Minute), Players: 42},
		{At: base.Add(2 * time.Minute), Players: 45},
	}
	img, err := ChartRenderer{}.Render("2159", time.Hour, points, 70)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(img) == 0 {
		t.Fatal("empty image")
	}
	pngMagic := []byte{0x89, 'P', 'N', 'G'}
	if !bytes.HasPrefix(img, pngMagic) {
		t.Errorf("output does not look like a PNG: % x", img[:4])
	}
}

func TestRenderTooFewPoints(t *testing.T) {
	_, err := ChartRenderer{}.Render("2159", time.Hour, []Point{{At: time.Now(), Players: 1}}, 70)
	if err == nil {
		t.Error("expected error with a single point")
	}
}
