package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/arkstatus/arkmon/db"
	"github.com/arkstatus/arkmon/delta"
	"github.com/arkstatus/arkmon/graph"
	"github.com/arkstatus/arkmon/platform"
	"github.com/arkstatus/arkmon/telemetry"
)

const (
	renameCooldown = 5 * time.Minute
	alertLookback  = 5
	graphWindow    = time.Hour
)

// populationBehavior posts player-count changes, keeps the channel name in
// sync with the live count, and evaluates the attached alert binding.
type populationBehavior struct {
	m *Monitor

	// offlineNotified suppresses repeated offline notices until the server
	// comes back.
	offlineNotified bool
}

func (b *populationBehavior) interval() time.Duration {
	if d := b.m.deps.Intervals.Population; d > 0 {
		return d
	}
	return defaultPopulationInterval
}

func (b *populationBehavior) tick(ctx context.Context) error {
	m := b.m
	now := time.Now()

	sess, err := m.deps.EOS.SessionInfo(ctx, m.key.Server)
	online := err == nil
	total := 0
	if online {
		total = sess.TotalPlayers
	} else {
		telemetry.IncCounter(telemetry.DataSourceErrors)
		m.log.Warn("session lookup failed, treating server as offline", "error", err)
	}

	if err := db.RecordPopulation(ctx, m.deps.DB, m.key.Server, total); err != nil {
		m.log.Error("record population history", "error", err)
	}

	var state populationState
	if _, err := db.GetDoc(ctx, m.deps.DB, populationDocKey(m.key), &state); err != nil {
		m.log.Error("load population state", "error", err)
	}

	if online {
		b.offlineNotified = false
		b.evaluateAlert(ctx, state.Window, total)
		if balance := delta.Population(state.Window, total); balance != 0 {
			b.report(ctx, sess.Name, total, sess.MaxPlayers, balance)
		}
		if now.Unix()-state.LastRename >= int64(renameCooldown.Seconds()) {
			name := fmt.Sprintf("%s-%d", m.key.Server, total)
			if err := m.deps.Messenger.EditChannelName(ctx, m.key.ChannelID, name); err != nil {
				m.log.Warn("channel rename failed", "error", err)
			} else {
				state.LastRename = now.Unix()
			}
		}
	} else if !b.offlineNotified {
		b.offlineNotified = true
		r := platform.Report{
			Title:       fmt.Sprintf("Server %s Offline", m.key.Server),
			Description: "The server did not answer the last status poll. Reports resume when it comes back.",
			Color:       platform.ColorRed,
			Timestamp:   now,
		}
		if err := m.deliver(ctx, m.key.ChannelID, r); err != nil {
			m.log.Error("offline notice", "error", err)
		}
	}

	state.Window = appendSample(state.Window, total)
	state.LastTick = now.Unix()
	if err := db.PutDoc(ctx, m.deps.DB, populationDocKey(m.key), &state); err != nil {
		m.log.Error("save population state", "error", err)
	}
	return nil
}

// report posts the population balance, with a recent-history graph attached
// when a renderer is wired and has enough points to draw.
func (b *populationBehavior) report(ctx context.Context, serverName string, total, max, balance int) {
	m := b.m
	r := platform.Report{
		Title: fmt.Sprintf("%s Population", m.key.Server),
		Color: platform.ColorBlue,
		Fields: []platform.Field{
			{Name: "Players", Value: fmt.Sprintf("%d/%d", total, max), Inline: true},
			{Name: "Change", Value: fmt.Sprintf("%+d", balance), Inline: true},
		},
		Footer:    serverName,
		Timestamp: time.Now(),
	}
	r.Image = b.renderGraph(ctx, max)
	if err := m.deliver(ctx, m.key.ChannelID, r); err != nil {
		m.log.Error("population report", "error", err)
	}
}

func (b *populationBehavior) renderGraph(ctx context.Context, maxPlayers int) []byte {
	m := b.m
	if m.deps.Graph == nil {
		return nil
	}
	samples, err := db.PopulationSince(ctx, m.deps.DB, m.key.Server, time.Now().Add(-graphWindow))
	if err != nil {
		m.log.Warn("population history for graph", "error", err)
		return nil
	}
	points := make([]graph.Point, 0, len(samples))
	for _, s := range samples {
		points = append(points, graph.Point{At: s.RecordedAt, Players: s.Players})
	}
	png, err := m.deps.Graph.Render(m.key.Server, graphWindow, points, maxPlayers)
	if err != nil {
		m.log.Warn("render population graph", "error", err)
		return nil
	}
	return png
}

// evaluateAlert fires the attached alert when the count moved past the
// threshold relative to the sample alertLookback ticks ago. The window is
// examined before the current count is appended.
func (b *populationBehavior) evaluateAlert(ctx context.Context, window []int, current int) {
	m := b.m
	channelID, threshold := m.alertBinding()
	if channelID == "" || threshold == 0 {
		return
	}
	change, fire := shouldAlert(window, current, threshold)
	if !fire {
		return
	}
	telemetry.IncCounter(telemetry.AlertsFired)
	r := platform.Report{
		Title:       fmt.Sprintf("Population Alert: %s", m.key.Server),
		Description: fmt.Sprintf("Player count moved %+d in the last %d minutes (now %d).", change, alertLookback, current),
		Color:       platform.ColorPurple,
		Timestamp:   time.Now(),
	}
	r.Image = b.renderGraph(ctx, 0)
	if err := m.deliver(ctx, channelID, r); err != nil {
		m.log.Error("alert report", "error", err)
	}
}

// shouldAlert decides whether an alert fires. It requires a live count,
// enough history, and no zero among the recent samples, then compares the
// signed change against the signed threshold: positive thresholds watch for
// influxes, negative ones for exoduses. A zero threshold never fires.
func shouldAlert(window []int, current, threshold int) (change int, fire bool) {
	if threshold == 0 || current <= 0 || len(window) < alertLookback {
		return 0, false
	}
	recent := window[len(window)-alertLookback:]
	for _, n := range recent {
		if n == 0 {
			return 0, false
		}
	}
	change = current - recent[0]
	switch {
	case threshold > 0:
		return change, change >= threshold
	default:
		return change, change <= threshold
	}
}
