package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arkstatus/arkmon/eos"
	"github.com/arkstatus/arkmon/graph"
	"github.com/arkstatus/arkmon/platform"
	"github.com/arkstatus/arkmon/telemetry"
)

const (
	defaultPopulationInterval = time.Minute
	defaultRosterInterval     = 15 * time.Second
	defaultRosterDiffInterval = 30 * time.Second

	crashBackoff    = 10 * time.Second
	deliverAttempts = 3
	deliverBackoff  = 2 * time.Second
)

// Intervals overrides the per-kind tick cadence. Zero fields use defaults.
type Intervals struct {
	Population time.Duration
	Roster     time.Duration
	RosterDiff time.Duration
}

// Deps carries everything a monitor needs per tick. Graph is optional;
// reports go out without an image when it is nil or rendering fails.
type Deps struct {
	DB        *sql.DB
	EOS       *eos.Client
	Messenger platform.Messenger
	Graph     graph.Renderer
	Intervals Intervals
}

// behavior is the per-kind tick body, selected once when the monitor is
// built.
type behavior interface {
	tick(ctx context.Context) error
	interval() time.Duration
}

// Monitor is one supervised polling task. Start launches the supervisor
// goroutine; Stop cancels it and waits for exit. A monitor that crashes is
// restarted after a fixed backoff; only an explicit Stop ends it.
type Monitor struct {
	key  Key
	deps Deps
	log  *slog.Logger

	mu             sync.Mutex
	alertChannelID string
	threshold      int
	running        bool
	cancel         context.CancelFunc
	done           chan struct{}
	quit           chan struct{}
	quitOnce       *sync.Once

	stopped   atomic.Bool
	behavior  behavior
	backoff   time.Duration
	retryWait time.Duration
}

// New builds a monitor for the given key. The behavior is fixed by the
// key's kind.
func New(key Key, deps Deps) *Monitor {
	m := &Monitor{
		key:       key,
		deps:      deps,
		log:       slog.With("server", key.Server, "kind", string(key.Kind), "channel", key.ChannelID),
		backoff:   crashBackoff,
		retryWait: deliverBackoff,
	}
	switch key.Kind {
	case KindRoster:
		m.behavior = &rosterBehavior{m: m}
	case KindRosterDiff:
		m.behavior = &diffBehavior{m: m}
	default:
		m.behavior = &populationBehavior{m: m}
	}
	return m
}

// Key returns the monitor's identity.
func (m *Monitor) Key() Key { return m.key }

// SetAlert attaches an alert binding. A threshold of zero never fires.
func (m *Monitor) SetAlert(channelID string, threshold int) {
	m.mu.Lock()
	m.alertChannelID = channelID
	m.threshold = threshold
	m.mu.Unlock()
}

// ClearAlert detaches the alert binding.
func (m *Monitor) ClearAlert() {
	m.mu.Lock()
	m.alertChannelID = ""
	m.threshold = 0
	m.mu.Unlock()
}

func (m *Monitor) alertBinding() (channelID string, threshold int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alertChannelID, m.threshold
}

// Start launches the supervisor goroutine. Calling Start on a running
// monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopped.Store(false)
	m.done = make(chan struct{})
	m.quit = make(chan struct{})
	m.quitOnce = &sync.Once{}
	go m.supervise(ctx)
	m.log.Info("monitor started")
}

// Stop asks the supervisor to exit and waits for it. The stopped flag is
// set before cancellation so the supervisor can tell an intentional stop
// from a stray cancellation, which it treats as a crash and restarts from.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	done := m.done
	m.stopped.Store(true)
	m.quitOnce.Do(func() { close(m.quit) })
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()
	<-done
	m.log.Info("monitor stopped")
}

// Running reports whether the supervisor goroutine is alive.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) setCancel(c context.CancelFunc) {
	m.mu.Lock()
	m.cancel = c
	m.mu.Unlock()
}

func (m *Monitor) supervise(parent context.Context) {
	defer func() {
		m.mu.Lock()
		m.running = false
		close(m.done)
		m.mu.Unlock()
	}()
	for {
		runCtx, cancel := context.WithCancel(parent)
		m.setCancel(cancel)
		err := m.runTicks(runCtx)
		cancel()
		if m.stopped.Load() {
			return
		}
		if parent.Err() != nil {
			// Process shutdown rather than an explicit stop.
			return
		}
		telemetry.IncCounter(telemetry.MonitorCrashes)
		m.log.Warn("monitor crashed, restarting", "error", err, "backoff", m.backoff)
		select {
		case <-parent.Done():
			return
		case <-m.quit:
			return
		case <-time.After(m.backoff):
		}
	}
}

// runTicks runs the tick loop until the context is canceled or a tick
// errors. Sleep time is reduced by the tick's own duration so the cadence
// does not drift under slow upstream calls.
func (m *Monitor) runTicks(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		if err := m.safeTick(ctx); err != nil {
			return err
		}
		elapsed := time.Since(start)
		telemetry.TickObserved(string(m.key.Kind), elapsed)
		sleep := m.behavior.interval() - elapsed
		if sleep < time.Second {
			sleep = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (m *Monitor) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return m.behavior.tick(ctx)
}

// deliver sends a report with a small fixed retry budget. The image is
// dropped for the final attempt so a bad attachment cannot block the text.
func (m *Monitor) deliver(ctx context.Context, channelID string, report platform.Report) error {
	var err error
	for attempt := 1; attempt <= deliverAttempts; attempt++ {
		if attempt == deliverAttempts {
			report.Image = nil
		}
		if err = m.deps.Messenger.Send(ctx, channelID, report); err == nil {
			telemetry.IncCounter(telemetry.ReportsDelivered)
			return nil
		}
		if attempt < deliverAttempts {
			telemetry.IncCounter(telemetry.DeliveryRetries)
			m.log.Warn("report delivery failed, retrying", "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.retryWait):
			}
		}
	}
	telemetry.IncCounter(telemetry.ReportsFailed)
	return fmt.Errorf("deliver report to %s: %w", channelID, err)
}
