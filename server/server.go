// Package server exposes the operational HTTP surface: liveness and
// readiness probes, a JSON status snapshot of the monitor fleet, and the
// Prometheus metrics endpoint. Requests carry correlation IDs for log and
// trace stitching.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/arkstatus/arkmon/commands"
	"github.com/arkstatus/arkmon/db"
	"github.com/arkstatus/arkmon/monitor"
	"github.com/arkstatus/arkmon/telemetry"
)

// Handlers carries the dependencies the HTTP handlers read.
type Handlers struct {
	db       *sql.DB
	manager  *monitor.Manager
	commands *commands.Handler
	started  time.Time
}

// NewRouter returns the ops HTTP handler with all routes registered.
func NewRouter(database *sql.DB, manager *monitor.Manager, cmds *commands.Handler) http.Handler {
	h := &Handlers{db: database, manager: manager, commands: cmds, started: time.Now()}
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.handleReadyz).Methods(http.MethodGet)
	r.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/commands", h.handleCommand).Methods(http.MethodPost)
	return withCorrelation(r)
}

// Start runs the ops server until ctx is done, then shuts it down
// gracefully.
func Start(ctx context.Context, database *sql.DB, manager *monitor.Manager, cmds *commands.Handler, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(database, manager, cmds),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (h *Handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.db.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "not_ready", "failed_check": "database", "error": err.Error(),
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

type statusMonitor struct {
	Server  string `json:"server"`
	Kind    string `json:"kind"`
	Channel string `json:"channel"`
	Guild   string `json:"guild"`
}

type statusResponse struct {
	UptimeSeconds int64           `json:"uptime_seconds"`
	Monitors      []statusMonitor `json:"monitors"`
	Sweep         json.RawMessage `json:"sweep,omitempty"`
}

// handleStatus reports the live monitor fleet and the last sweep summary.
func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Monitors:      []statusMonitor{},
	}
	for _, k := range h.manager.List() {
		resp.Monitors = append(resp.Monitors, statusMonitor{
			Server: k.Server, Kind: string(k.Kind), Channel: k.ChannelID, Guild: k.GuildID,
		})
	}
	sort.Slice(resp.Monitors, func(i, j int) bool {
		if resp.Monitors[i].Server != resp.Monitors[j].Server {
			return resp.Monitors[i].Server < resp.Monitors[j].Server
		}
		return resp.Monitors[i].Kind < resp.Monitors[j].Kind
	})

	var sweepDoc json.RawMessage
	if ok, err := db.GetDoc(r.Context(), h.db, "sweep:state", &sweepDoc); err == nil && ok {
		resp.Sweep = sweepDoc
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// withCorrelation injects a correlation ID and a tracing span into every
// request, reusing the inbound header when a caller supplied one.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start",
			slog.String("method", r.Method), slog.String("path", r.URL.Path))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		if rec.statusCode >= 500 {
			span.SetAttributes(attribute.Int("http.status_code", rec.statusCode))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
