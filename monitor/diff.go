package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arkstatus/arkmon/db"
	"github.com/arkstatus/arkmon/delta"
	"github.com/arkstatus/arkmon/platform"
	"github.com/arkstatus/arkmon/telemetry"
)

// diffBehavior announces who joined and who left between polls. The
// previous occupant set and its resolved display names are persisted so a
// restart does not replay the whole roster as joins.
type diffBehavior struct {
	m *Monitor
}

func (b *diffBehavior) interval() time.Duration {
	if d := b.m.deps.Intervals.RosterDiff; d > 0 {
		return d
	}
	return defaultRosterDiffInterval
}

func (b *diffBehavior) tick(ctx context.Context) error {
	m := b.m

	roomID, err := db.RoomID(ctx, m.deps.DB, m.key.Server)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			m.log.Error("no room id registered for server, skipping diff tick")
			return nil
		}
		return err
	}
	puids, err := m.deps.EOS.ListOccupants(ctx, roomID)
	if err != nil {
		telemetry.IncCounter(telemetry.DataSourceErrors)
		m.log.Warn("occupant snapshot failed", "error", err)
		return nil
	}
	ids, err := m.deps.EOS.LookupIdentities(ctx, puids)
	if err != nil {
		telemetry.IncCounter(telemetry.DataSourceErrors)
		m.log.Warn("identity lookup failed", "error", err)
		return nil
	}

	var state diffState
	loaded, err := db.GetDoc(ctx, m.deps.DB, diffDocKey(m.key), &state)
	if err != nil {
		m.log.Error("load diff state", "error", err)
		return nil
	}

	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if id.DisplayName != "" {
			names[id.PUID] = id.DisplayName
		}
	}

	total, max := 0, 0
	if sess, err := m.deps.EOS.SessionInfo(ctx, m.key.Server); err == nil {
		total, max = sess.TotalPlayers, sess.MaxPlayers
	}

	// First tick after registration: seed the state silently so the
	// entire roster is not announced as a wave of joins.
	if loaded {
		joined, left := delta.Sets(delta.ToSet(state.PUIDs), delta.ToSet(puids))
		for puid := range joined {
			b.announce(ctx, puid, names[puid], true, total, max)
		}
		for puid := range left {
			b.announce(ctx, puid, state.Names[puid], false, total, max)
		}
	}

	state.PUIDs = puids
	state.Names = names
	if err := db.PutDoc(ctx, m.deps.DB, diffDocKey(m.key), &state); err != nil {
		m.log.Error("save diff state", "error", err)
	}
	return nil
}

func (b *diffBehavior) announce(ctx context.Context, puid, name string, joined bool, total, max int) {
	m := b.m
	if name == "" {
		name = shortID(puid)
	}
	verb, color := "LEFT", platform.ColorRed
	if joined {
		verb, color = "JOINED", platform.ColorGreen
	}
	r := platform.Report{
		Title:     fmt.Sprintf("%s %s %s [%d/%d]", name, verb, m.key.Server, total, max),
		Color:     color,
		Footer:    puid,
		Timestamp: time.Now(),
	}
	if server, tribe, err := db.MostJoinedServer(ctx, m.deps.DB, puid); err == nil {
		desc := "Main server: " + server
		if tribe != "" {
			desc += "  Tribe: " + tribe
		}
		r.Description = desc
	}
	if err := m.deliver(ctx, m.key.ChannelID, r); err != nil {
		m.log.Error("roster diff report", "error", err)
	}
}

func shortID(puid string) string {
	if len(puid) <= 8 {
		return puid
	}
	return puid[:8]
}
