// Package graph renders population history time-series into PNG images
// attached to monitor reports. Rendering is best-effort everywhere it is
// used: a failed graph never blocks report delivery.
package graph

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Point is one population sample.
type Point struct {
	At      time.Time
	Players int
}

// Renderer turns a population time-series into an image.
type Renderer interface {
	Render(server string, window time.Duration, points []Point, maxPlayers int) ([]byte, error)
}

// ChartRenderer renders a line chart of players over time.
type ChartRenderer struct{}

// Render produces a PNG for the given series. At least two points are
// required; below that there is no line to draw.
func (ChartRenderer) Render(server string, window time.Duration, points []Point, maxPlayers int) ([]byte, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("need at least 2 samples to render, have %d", len(points))
	}
	if maxPlayers <= 0 {
		maxPlayers = 70
	}

	xs := make([]time.Time, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.At
		ys[i] = float64(p.Players)
	}

	g := chart.Chart{
		Title:  fmt.Sprintf("Server %s player history (last %s)", server, window),
		Width:  1000,
		Height: 600,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("15:04"),
		},
		YAxis: chart.YAxis{
			Name:  "Players",
			Range: &chart.ContinuousRange{Min: 0, Max: float64(maxPlayers)},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Players",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: drawing.ColorBlue,
					StrokeWidth: 2.0,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := g.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}
