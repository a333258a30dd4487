package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arkstatus/arkmon/platform"
)

type stubBehavior struct {
	mu    sync.Mutex
	ticks int
	fn    func(ctx context.Context) error
}

func (s *stubBehavior) tick(ctx context.Context) error {
	s.mu.Lock()
	s.ticks++
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx)
	}
	return nil
}

func (s *stubBehavior) interval() time.Duration { return 10 * time.Millisecond }

func (s *stubBehavior) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

func newStubMonitor(fn func(ctx context.Context) error) (*Monitor, *stubBehavior) {
	m := New(NewKey("2145", KindPopulation, "chan-1", "guild-1"), Deps{})
	b := &stubBehavior{fn: fn}
	m.behavior = b
	m.backoff = 10 * time.Millisecond
	return m, b
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSupervisorRestartsAfterCrash(t *testing.T) {
	m, b := newStubMonitor(func(ctx context.Context) error {
		return errors.New("boom")
	})
	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, func() bool { return b.count() >= 3 })
	if !m.Running() {
		t.Fatal("monitor should keep running through crashes")
	}
}

func TestSupervisorRecoversFromPanic(t *testing.T) {
	m, b := newStubMonitor(func(ctx context.Context) error {
		panic("invariant violated")
	})
	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, func() bool { return b.count() >= 2 })
}

func TestStopEndsMonitor(t *testing.T) {
	m, b := newStubMonitor(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	m.Start(context.Background())
	waitFor(t, func() bool { return b.count() >= 1 })

	m.Stop()
	if m.Running() {
		t.Fatal("monitor still running after Stop")
	}
	ticks := b.count()
	time.Sleep(50 * time.Millisecond)
	if b.count() != ticks {
		t.Fatal("monitor ticked after Stop")
	}
}

func TestSpuriousCancellationRestarts(t *testing.T) {
	m, b := newStubMonitor(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	m.Start(context.Background())
	defer m.Stop()
	waitFor(t, func() bool { return b.count() >= 1 })

	// Cancel the run context without setting the stopped flag. This is a
	// crash as far as the supervisor is concerned, not a stop.
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	cancel()

	waitFor(t, func() bool { return b.count() >= 2 })
	if !m.Running() {
		t.Fatal("monitor exited on a cancellation that was not a Stop")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	m, b := newStubMonitor(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	m.Start(context.Background())
	m.Start(context.Background())
	waitFor(t, func() bool { return b.count() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := b.count(); got != 1 {
		t.Fatalf("expected a single blocked tick, got %d", got)
	}
	m.Stop()
	m.Stop() // second Stop is a no-op
}

func TestShouldAlert(t *testing.T) {
	tests := []struct {
		name      string
		window    []int
		current   int
		threshold int
		fire      bool
		change    int
	}{
		{"influx below threshold", []int{40, 42, 45, 50, 55}, 55, 20, false, 0},
		{"influx at threshold", []int{40, 42, 45, 50, 55}, 55, 10, true, 15},
		{"exodus fires", []int{40, 38, 35, 30, 25}, 25, -10, true, -15},
		{"exodus below threshold", []int{40, 38, 35, 30, 25}, 25, -20, false, 0},
		{"zero threshold never fires", []int{10, 20, 30, 40, 50}, 90, 0, false, 0},
		{"zero sample suppresses", []int{40, 0, 35, 30, 25}, 60, 10, false, 0},
		{"offline count suppresses", []int{40, 42, 45, 50, 55}, 0, -10, false, 0},
		{"short history suppresses", []int{40, 45}, 90, 10, false, 0},
		{"older samples ignored", []int{1, 1, 40, 42, 45, 50, 55}, 55, 10, true, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, fire := shouldAlert(tt.window, tt.current, tt.threshold)
			if fire != tt.fire {
				t.Fatalf("fire = %v, want %v", fire, tt.fire)
			}
			if fire && change != tt.change {
				t.Fatalf("change = %d, want %d", change, tt.change)
			}
		})
	}
}

func TestAppendSampleCapsWindow(t *testing.T) {
	var window []int
	for i := 0; i < windowCap+10; i++ {
		window = appendSample(window, i)
	}
	if len(window) != windowCap {
		t.Fatalf("window length = %d, want %d", len(window), windowCap)
	}
	if window[len(window)-1] != windowCap+9 {
		t.Fatalf("newest sample = %d, want %d", window[len(window)-1], windowCap+9)
	}
	if window[0] != 10 {
		t.Fatalf("oldest sample = %d, want 10", window[0])
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"1":           KindPopulation,
		"population":  KindPopulation,
		"2":           KindRoster,
		"3":           KindRosterDiff,
		"roster-diff": KindRosterDiff,
		" ROSTER ":    KindRoster,
	} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseKind("4"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestKeyCanonicalization(t *testing.T) {
	a := NewKey(" 2145 ", KindPopulation, " 123 ", "g")
	b := NewKey("2145", KindPopulation, "123", "g")
	if a != b {
		t.Fatalf("keys differ: %v vs %v", a, b)
	}
}

type fakeMessenger struct {
	mu      sync.Mutex
	fail    int
	sends   []platform.Report
	renames []string
}

func (f *fakeMessenger) Send(ctx context.Context, channelID string, r platform.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("transient")
	}
	f.sends = append(f.sends, r)
	return nil
}

func (f *fakeMessenger) EditChannelName(ctx context.Context, channelID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renames = append(f.renames, name)
	return nil
}

func (f *fakeMessenger) Purge(ctx context.Context, channelID string, limit int) error { return nil }

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	fm := &fakeMessenger{fail: 2}
	m := New(NewKey("2145", KindPopulation, "c", "g"), Deps{Messenger: fm})
	m.retryWait = time.Millisecond
	r := platform.Report{Title: "t", Image: []byte{1, 2, 3}}
	if err := m.deliver(context.Background(), "c", r); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(fm.sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(fm.sends))
	}
	// Third attempt goes out without the attachment.
	if fm.sends[0].Image != nil {
		t.Fatal("image should be dropped on the final attempt")
	}
}

func TestDeliverGivesUp(t *testing.T) {
	fm := &fakeMessenger{fail: 100}
	m := New(NewKey("2145", KindPopulation, "c", "g"), Deps{Messenger: fm})
	m.retryWait = time.Millisecond
	if err := m.deliver(context.Background(), "c", platform.Report{Title: "t"}); err == nil {
		t.Fatal("expected delivery failure")
	}
}

func TestAttachDetachAlert(t *testing.T) {
	mg := NewManager(Deps{})
	key := NewKey("2145", KindPopulation, "c", "g")
	mg.monitors[key] = New(key, Deps{})
	other := NewKey("5302", KindRoster, "c2", "g")
	mg.monitors[other] = New(other, Deps{})

	if !mg.AttachAlert("2145", "g", "alerts", 15) {
		t.Fatal("attach should find the population monitor")
	}
	ch, thr := mg.monitors[key].alertBinding()
	if ch != "alerts" || thr != 15 {
		t.Fatalf("binding = %q/%d, want alerts/15", ch, thr)
	}
	if mg.AttachAlert("9999", "g", "alerts", 15) {
		t.Fatal("attach should miss an unwatched server")
	}
	if mg.AttachAlert("5302", "g", "alerts", 15) {
		t.Fatal("attach must ignore non-population monitors")
	}
	if !mg.DetachAlert("2145", "g") {
		t.Fatal("detach should find the binding")
	}
	ch, thr = mg.monitors[key].alertBinding()
	if ch != "" || thr != 0 {
		t.Fatal("binding should be cleared")
	}
	if mg.DetachAlert("2145", "other-guild") {
		t.Fatal("detach should be scoped to the guild")
	}
}
