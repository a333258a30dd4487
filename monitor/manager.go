package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arkstatus/arkmon/db"
	"github.com/arkstatus/arkmon/telemetry"
)

var (
	// ErrExists is returned when adding a monitor whose key is already live.
	ErrExists = errors.New("monitor already exists")
	// ErrNoMonitor is returned when removing a monitor that is not live.
	ErrNoMonitor = errors.New("no such monitor")
)

// Manager owns the set of live monitors and keeps it in sync with the
// persisted monitor rows. Alert bindings are attached to the matching
// population monitor in memory; their rows are persisted by the command
// layer that created them.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	monitors map[Key]*Monitor
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, monitors: make(map[Key]*Monitor)}
}

// Load starts a monitor for every persisted row and re-attaches persisted
// alert bindings. A row that fails to start is skipped with an error log so
// one bad row cannot keep the rest of the fleet down.
func (mg *Manager) Load(ctx context.Context) error {
	rows, err := db.ListMonitors(ctx, mg.deps.DB)
	if err != nil {
		return fmt.Errorf("list monitors: %w", err)
	}
	for _, row := range rows {
		kind, err := ParseKind(row.Kind)
		if err != nil {
			slog.Error("skipping monitor row", "server", row.Server, "kind", row.Kind, "error", err)
			continue
		}
		key := NewKey(row.Server, kind, row.ChannelID, row.GuildID)
		if err := mg.start(ctx, key); err != nil {
			slog.Error("skipping monitor row", "key", key.String(), "error", err)
		}
	}

	alerts, err := db.ListAlerts(ctx, mg.deps.DB)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}
	for _, a := range alerts {
		if !mg.AttachAlert(a.Server, a.GuildID, a.AlertChannelID, a.Threshold) {
			slog.Warn("orphaned alert binding, no population monitor for it",
				"server", a.Server, "guild", a.GuildID)
		}
	}
	slog.Info("monitors loaded", "count", mg.Count())
	return nil
}

// Add persists a monitor row and starts the monitor. Adding a key that is
// already live is a no-op returning ErrExists.
func (mg *Manager) Add(ctx context.Context, key Key, nickname, nature string) error {
	mg.mu.Lock()
	if _, ok := mg.monitors[key]; ok {
		mg.mu.Unlock()
		slog.Warn("duplicate monitor add ignored", "key", key.String())
		return ErrExists
	}
	mg.mu.Unlock()

	row := db.MonitorRow{
		Server:    key.Server,
		Kind:      string(key.Kind),
		ChannelID: key.ChannelID,
		GuildID:   key.GuildID,
		Nickname:  nickname,
		Nature:    nature,
	}
	if err := db.InsertMonitor(ctx, mg.deps.DB, row); err != nil {
		return fmt.Errorf("persist monitor: %w", err)
	}
	if err := mg.start(ctx, key); err != nil {
		return err
	}
	// A stored alert binding may predate its population monitor; attach it
	// now rather than waiting for the next process restart.
	if key.Kind == KindPopulation {
		switch a, err := db.GetAlert(ctx, mg.deps.DB, key.Server, key.GuildID); {
		case err == nil:
			mg.AttachAlert(a.Server, a.GuildID, a.AlertChannelID, a.Threshold)
			slog.Info("stored alert attached to new monitor", "server", key.Server, "guild", key.GuildID)
		case !errors.Is(err, db.ErrNotFound):
			slog.Warn("alert lookup for new monitor", "server", key.Server, "error", err)
		}
	}
	return nil
}

// Remove stops the monitor and deletes its row. Removing a key that is not
// live is a no-op returning ErrNoMonitor.
func (mg *Manager) Remove(ctx context.Context, key Key) error {
	mg.mu.Lock()
	m, ok := mg.monitors[key]
	if ok {
		delete(mg.monitors, key)
	}
	mg.mu.Unlock()
	if !ok {
		slog.Warn("remove of unknown monitor ignored", "key", key.String())
		return ErrNoMonitor
	}
	m.Stop()
	if err := db.DeleteMonitor(ctx, mg.deps.DB, key.Server, string(key.Kind), key.ChannelID, key.GuildID); err != nil {
		return fmt.Errorf("delete monitor row: %w", err)
	}
	telemetry.SetLiveMonitors(mg.Count())
	return nil
}

// AttachAlert binds an alert to the population monitor watching server for
// guild. Reports whether a matching monitor was found.
func (mg *Manager) AttachAlert(server, guildID, alertChannelID string, threshold int) bool {
	for _, m := range mg.snapshot() {
		k := m.Key()
		if k.Kind == KindPopulation && k.Server == server && k.GuildID == guildID {
			m.SetAlert(alertChannelID, threshold)
			return true
		}
	}
	return false
}

// DetachAlert clears the alert binding, reporting whether one was attached.
func (mg *Manager) DetachAlert(server, guildID string) bool {
	for _, m := range mg.snapshot() {
		k := m.Key()
		if k.Kind == KindPopulation && k.Server == server && k.GuildID == guildID {
			m.ClearAlert()
			return true
		}
	}
	return false
}

// StopAll stops every live monitor. Used on shutdown.
func (mg *Manager) StopAll() {
	for _, m := range mg.snapshot() {
		m.Stop()
	}
	mg.mu.Lock()
	mg.monitors = make(map[Key]*Monitor)
	mg.mu.Unlock()
	telemetry.SetLiveMonitors(0)
}

// Count returns the number of live monitors.
func (mg *Manager) Count() int {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return len(mg.monitors)
}

// List returns the live monitor keys.
func (mg *Manager) List() []Key {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	keys := make([]Key, 0, len(mg.monitors))
	for k := range mg.monitors {
		keys = append(keys, k)
	}
	return keys
}

func (mg *Manager) start(ctx context.Context, key Key) error {
	m := New(key, mg.deps)
	mg.mu.Lock()
	if _, ok := mg.monitors[key]; ok {
		mg.mu.Unlock()
		return ErrExists
	}
	mg.monitors[key] = m
	mg.mu.Unlock()
	m.Start(ctx)
	telemetry.SetLiveMonitors(mg.Count())
	return nil
}

func (mg *Manager) snapshot() []*Monitor {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	out := make([]*Monitor, 0, len(mg.monitors))
	for _, m := range mg.monitors {
		out = append(out, m)
	}
	return out
}
