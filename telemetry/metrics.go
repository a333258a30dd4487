// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MonitorTicks     *prometheus.CounterVec
	MonitorCrashes   prometheus.Counter
	ReportsDelivered prometheus.Counter
	ReportsFailed    prometheus.Counter
	DeliveryRetries  prometheus.Counter
	AlertsFired      prometheus.Counter
	DataSourceErrors prometheus.Counter
	SweepCycles      prometheus.Counter

	// Histograms (seconds)
	TickDuration  prometheus.Observer
	SweepDuration prometheus.Observer

	// Gauges
	LiveMonitorsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MonitorTicks = promauto.NewCounterVec(prometheus.CounterOpts{Name: "arkmon_monitor_ticks_total", Help: "Number of completed monitor ticks"}, []string{"kind"})
		MonitorCrashes = promauto.NewCounter(prometheus.CounterOpts{Name: "arkmon_monitor_crashes_total", Help: "Number of monitor tick crashes followed by restart"})
		ReportsDelivered = promauto.NewCounter(prometheus.CounterOpts{Name: "arkmon_reports_delivered_total", Help: "Number of reports delivered to chat channels"})
		ReportsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "arkmon_reports_failed_total", Help: "Number of reports dropped after delivery retries"})
		DeliveryRetries = promauto.NewCounter(prometheus.CounterOpts{Name: "arkmon_delivery_retries_total", Help: "Number of report delivery retry attempts"})
		AlertsFired = promauto.NewCounter(prometheus.CounterOpts{Name: "arkmon_alerts_fired_total", Help: "Number of population alerts fired"})
		DataSourceErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "arkmon_data_source_errors_total", Help: "Number of failed data source calls"})
		SweepCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "arkmon_sweep_cycles_total", Help: "Number of fleet sweep cycles"})
		TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "arkmon_monitor_tick_duration_seconds", Help: "Monitor tick duration seconds", Buckets: prometheus.DefBuckets})
		SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "arkmon_sweep_duration_seconds", Help: "Fleet sweep cycle duration seconds", Buckets: prometheus.DefBuckets})
		LiveMonitorsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "arkmon_live_monitors", Help: "Current number of running monitors"})
	})
}

// SetLiveMonitors records the current number of running monitors.
func SetLiveMonitors(n int) {
	if LiveMonitorsGauge != nil {
		LiveMonitorsGauge.Set(float64(n))
	}
}

// IncCounter increments a counter if metrics have been initialized.
func IncCounter(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// TickObserved records one completed tick for a monitor kind.
func TickObserved(kind string, d time.Duration) {
	if MonitorTicks != nil {
		MonitorTicks.WithLabelValues(kind).Inc()
	}
	if TickDuration != nil {
		TickDuration.Observe(d.Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
