package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/arkstatus/arkmon/db"
	"github.com/arkstatus/arkmon/eos"
	"github.com/arkstatus/arkmon/roster"
	"github.com/arkstatus/arkmon/telemetry"
)

// purgeDepth is how many prior roster messages are cleared before a fresh
// listing is posted, keeping the channel to roughly one roster at a time.
const purgeDepth = 5

// rosterBehavior replaces the channel's content with the current occupant
// listing every tick.
type rosterBehavior struct {
	m *Monitor
}

func (b *rosterBehavior) interval() time.Duration {
	if d := b.m.deps.Intervals.Roster; d > 0 {
		return d
	}
	return defaultRosterInterval
}

func (b *rosterBehavior) tick(ctx context.Context) error {
	m := b.m
	entries, sess, err := b.snapshot(ctx)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			m.log.Error("no room id registered for server, skipping roster tick")
			return nil
		}
		telemetry.IncCounter(telemetry.DataSourceErrors)
		m.log.Warn("roster snapshot failed", "error", err)
		return nil
	}

	total, max := 0, 0
	name := ""
	if sess != nil {
		total, max, name = sess.TotalPlayers, sess.MaxPlayers, sess.Name
	}
	if err := m.deps.Messenger.Purge(ctx, m.key.ChannelID, purgeDepth); err != nil {
		m.log.Warn("purge roster channel", "error", err)
	}
	for _, page := range roster.Pages(m.key.Server, name, total, max, entries) {
		if err := m.deliver(ctx, m.key.ChannelID, page); err != nil {
			m.log.Error("roster page", "error", err)
			return nil
		}
	}
	return nil
}

// snapshot resolves the room's occupants into annotated entries plus the
// session view of the server. A failed session lookup is tolerated; the
// listing then goes out without the live count header.
func (b *rosterBehavior) snapshot(ctx context.Context) ([]roster.Entry, *eos.Session, error) {
	m := b.m
	roomID, err := db.RoomID(ctx, m.deps.DB, m.key.Server)
	if err != nil {
		return nil, nil, err
	}
	puids, err := m.deps.EOS.ListOccupants(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	ids, err := m.deps.EOS.LookupIdentities(ctx, puids)
	if err != nil {
		return nil, nil, err
	}
	sess, err := m.deps.EOS.SessionInfo(ctx, m.key.Server)
	if err != nil {
		m.log.Warn("session lookup for roster header", "error", err)
		sess = nil
	}
	return roster.Annotate(ctx, m.deps.DB, ids), sess, nil
}
