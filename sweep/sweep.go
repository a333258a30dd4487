// Package sweep walks the whole server registry on a slow cadence and
// records who is on which server, feeding the join history behind player
// profiles and main-server stats.
package sweep

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arkstatus/arkmon/db"
	"github.com/arkstatus/arkmon/delta"
	"github.com/arkstatus/arkmon/eos"
	"github.com/arkstatus/arkmon/telemetry"
)

const (
	defaultInterval  = 5 * time.Minute
	defaultBatchSize = 50
	batchCooldown    = 5 * time.Second
	batchConcurrency = 8
	heartbeatKey     = "sweep_job"
	stateDocKey      = "sweep:state"
)

// state is the persisted fleet-wide sweep state: the run summary plus the
// last-known occupant set per server, so only newly-seen occupants turn
// into join events on the next cycle.
type state struct {
	LastSweep     int64               `json:"last_sweep"`
	ServersSwept  int                 `json:"servers_swept"`
	ServersFailed int                 `json:"servers_failed"`
	Occupants     map[string][]string `json:"occupants"`
}

// Sweeper runs the periodic fleet sweep.
type Sweeper struct {
	DB        *sql.DB
	EOS       *eos.Client
	Interval  time.Duration
	BatchSize int
}

// Start runs the sweep loop until ctx is done. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	slog.Info("sweep job started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("sweep job stopped")
			return
		case <-ticker.C:
			s.Run(ctx)
		}
	}
}

// Run performs one full sweep over the registry.
func (s *Sweeper) Run(ctx context.Context) {
	start := time.Now()
	servers, err := db.ListServers(ctx, s.DB)
	if err != nil {
		slog.Error("sweep: list servers", "error", err)
		return
	}

	var st state
	if _, err := db.GetDoc(ctx, s.DB, stateDocKey, &st); err != nil {
		slog.Error("sweep: load state", "error", err)
		return
	}
	if st.Occupants == nil {
		st.Occupants = make(map[string][]string)
	}

	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	swept, failed := 0, 0
	batches := batchRanges(len(servers), batchSize)
	for n, r := range batches {
		if ctx.Err() != nil {
			return
		}
		ok, bad := s.sweepBatch(ctx, servers[r[0]:r[1]], st.Occupants, start)
		swept += ok
		failed += bad
		if n < len(batches)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(batchCooldown):
			}
		}
	}

	st.LastSweep = start.Unix()
	st.ServersSwept = swept
	st.ServersFailed = failed
	if err := db.PutDoc(ctx, s.DB, stateDocKey, &st); err != nil {
		slog.Error("sweep: save state", "error", err)
	}
	db.Heartbeat(ctx, s.DB, heartbeatKey)
	telemetry.IncCounter(telemetry.SweepCycles)
	if telemetry.SweepDuration != nil {
		telemetry.SweepDuration.Observe(time.Since(start).Seconds())
	}
	slog.Info("sweep complete", "servers", len(servers), "swept", swept, "failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond))
}

// batchRanges splits [0,total) into half-open index ranges of at most size.
func batchRanges(total, size int) [][2]int {
	var out [][2]int
	for i := 0; i < total; i += size {
		end := i + size
		if end > total {
			end = total
		}
		out = append(out, [2]int{i, end})
	}
	return out
}

// sweepBatch fans the batch out over a bounded worker group. Per-server
// failures are counted and logged but never abort the sweep; a failed
// server keeps its previous occupant set so the next successful cycle
// does not replay everyone as joins. occupants is only written from this
// goroutine, after the group has finished.
func (s *Sweeper) sweepBatch(ctx context.Context, servers []db.Server, occupants map[string][]string, at time.Time) (swept, failed int) {
	results := make([]struct {
		puids []string
		err   error
	}, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, srv := range servers {
		g.Go(func() error {
			results[i].puids, results[i].err = s.sweepServer(gctx, srv, occupants[srv.Number], at)
			return nil
		})
	}
	g.Wait()
	for i, res := range results {
		if res.err != nil {
			failed++
			slog.Warn("sweep: server failed", "server", servers[i].Number, "error", res.err)
			telemetry.IncCounter(telemetry.DataSourceErrors)
			continue
		}
		swept++
		occupants[servers[i].Number] = res.puids
	}
	return swept, failed
}

// sweepServer snapshots one server and records the occupants that were not
// present in the previous cycle's snapshot. Returns the current occupant
// set for the fleet state doc.
func (s *Sweeper) sweepServer(ctx context.Context, srv db.Server, prev []string, at time.Time) ([]string, error) {
	if sess, err := s.EOS.SessionInfo(ctx, srv.Number); err == nil {
		if err := db.RecordPopulation(ctx, s.DB, srv.Number, sess.TotalPlayers); err != nil {
			return nil, err
		}
	}
	if srv.RoomID == "" {
		return nil, nil
	}
	puids, err := s.EOS.ListOccupants(ctx, srv.RoomID)
	if err != nil {
		return nil, err
	}
	joined := newlySeen(prev, puids)
	if len(joined) == 0 {
		return puids, nil
	}
	if _, err := s.EOS.LookupIdentities(ctx, joined); err != nil {
		slog.Warn("sweep: identity lookup", "server", srv.Number, "error", err)
	}
	if err := db.RecordJoins(ctx, s.DB, srv.Number, joined, at); err != nil {
		return nil, err
	}
	return puids, nil
}

// newlySeen returns the occupants present now but absent from the previous
// snapshot. An empty previous snapshot means every occupant is new.
func newlySeen(prev, cur []string) []string {
	joined, _ := delta.Sets(delta.ToSet(prev), delta.ToSet(cur))
	out := make([]string, 0, len(joined))
	for _, puid := range cur {
		if _, ok := joined[puid]; ok {
			out = append(out, puid)
		}
	}
	return out
}
