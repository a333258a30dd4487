// Command arkmon watches ARK: Survival Ascended official servers and pushes
// live status into chat channels. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Restores persisted monitors and their alert bindings, then supervises
//     them: population reports, roster listings, and join/leave feeds.
//   - Runs the periodic fleet sweep that records join history across the
//     whole server registry.
//   - Exposes an ops HTTP server with /healthz, /readyz, /status, /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/arkstatus/arkmon/commands"
	"github.com/arkstatus/arkmon/config"
	"github.com/arkstatus/arkmon/db"
	"github.com/arkstatus/arkmon/eos"
	"github.com/arkstatus/arkmon/graph"
	"github.com/arkstatus/arkmon/monitor"
	"github.com/arkstatus/arkmon/platform"
	"github.com/arkstatus/arkmon/server"
	"github.com/arkstatus/arkmon/sweep"
	"github.com/arkstatus/arkmon/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateEOSReady(); err != nil {
		slog.Error("missing EOS credentials", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("arkmon", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first, embedded SQL as the fallback for
	// deployments that predate the schema_migrations table.
	slog.Info("running database migrations")
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded SQL", slog.Any("err", err))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &eos.Client{
		APIBase:      cfg.EOSAPIBase,
		CDNBase:      cfg.EOSCDNBase,
		DeploymentID: cfg.EOSDeploymentID,
		Cluster:      cfg.EOSCluster,
		Auth: &eos.Authenticator{
			TokenURL:     cfg.EOSAPIBase + "/auth/v1/oauth/token",
			ClientID:     cfg.EOSClientID,
			ClientSecret: cfg.EOSClientSecret,
			DeploymentID: cfg.EOSDeploymentID,
		},
		Players: &db.PlayerStoreAdapter{DB: database},
		Limiter: rate.NewLimiter(rate.Limit(10), 20),
	}

	// The chat transport plugs in behind platform.Messenger. Without a bot
	// token the log sink is used, which keeps monitors and the sweep fully
	// functional for data collection.
	var messenger platform.Messenger = platform.LogMessenger{}
	if err := cfg.ValidateBotReady(); err != nil {
		slog.Warn("no chat credentials, reports go to the log", slog.Any("err", err))
	}

	manager := monitor.NewManager(monitor.Deps{
		DB:        database,
		EOS:       client,
		Messenger: messenger,
		Graph:     graph.ChartRenderer{},
		Intervals: monitor.Intervals{
			Population: cfg.PopulationInterval,
			Roster:     cfg.RosterInterval,
			RosterDiff: cfg.RosterDiffInterval,
		},
	})
	if err := manager.Load(ctx); err != nil {
		slog.Error("failed to restore monitors", slog.Any("err", err))
		os.Exit(1)
	}

	cmds := &commands.Handler{
		DB:      database,
		EOS:     client,
		Manager: manager,
		Cluster: cfg.EOSCluster,
	}

	sweeper := &sweep.Sweeper{
		DB:        database,
		EOS:       client,
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
	}
	go sweeper.Start(ctx)

	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		if err := server.Start(ctx, database, manager, cmds, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	manager.StopAll()
}

func initLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))
}
