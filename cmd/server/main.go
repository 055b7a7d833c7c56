package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	accountservice "signbridge/internal/account/service"
	"signbridge/internal/audit"
	"signbridge/internal/confirmation/override"
	"signbridge/internal/confirmation/reaper"
	"signbridge/internal/confirmation/reconcile"
	"signbridge/internal/confirmation/tracker"
	"signbridge/internal/confirmation/watcher"
	jwttoken "signbridge/internal/jwt_token"
	"signbridge/internal/platform/config"
	"signbridge/internal/platform/httpserver"
	"signbridge/internal/platform/logger"
	"signbridge/internal/platform/metrics"
	"signbridge/internal/profile/rollnumber"
	"signbridge/internal/session"
	httptransport "signbridge/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.ErrorContext(ctx, "server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	deps, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	publisher := audit.NewPublisher(deps.auditSinks...)
	window := cfg.Confirmation.Window

	allocator := rollnumber.New(deps.profiles, rollnumber.WithLogger(log), rollnumber.WithMetrics(m))
	engine := reconcile.New(deps.profiles, deps.pending, allocator,
		reconcile.WithLogger(log),
		reconcile.WithMetrics(m),
		reconcile.WithAuditPublisher(publisher),
	)
	reap := reaper.New(deps.profiles, deps.provider,
		reaper.WithLogger(log),
		reaper.WithMetrics(m),
		reaper.WithAuditPublisher(publisher),
		reaper.WithOrphanLedger(deps.ledger),
	)
	track := tracker.New(deps.profiles, deps.provider, reap,
		tracker.WithLogger(log),
		tracker.WithMetrics(m),
		tracker.WithAuditPublisher(publisher),
		tracker.WithWindow(window),
	)
	manual := override.New(deps.profiles, deps.provider, engine,
		override.WithLogger(log),
		override.WithAuditPublisher(publisher),
	)
	sweeper := reaper.NewSweeper(deps.profiles, deps.provider, deps.ledger, reap, cfg.Confirmation.SweepInterval,
		reaper.WithSweepLogger(log),
		reaper.WithSweepAuditPublisher(publisher),
		reaper.WithSweepWindow(window),
	)

	cache := session.New(deps.provider, deps.profiles, engine, session.WithLogger(log))
	svc := accountservice.New(deps.provider, deps.pending, deps.profiles, engine, track, manual, cache,
		accountservice.WithLogger(log),
		accountservice.WithMetrics(m),
		accountservice.WithAuditPublisher(publisher),
		accountservice.WithManualDebounce(cfg.Confirmation.ManualDebounce),
		accountservice.WithWatcherOptions(
			watcher.WithLogger(log),
			watcher.WithMetrics(m),
			watcher.WithIntervals(cfg.Confirmation.PollInterval, cfg.Confirmation.TickInterval),
			watcher.WithWindow(window),
		),
	)
	defer svc.Close()

	if err := cache.Restore(ctx); err != nil {
		log.WarnContext(ctx, "could not restore previous session", "error", err)
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "signbridge", "signbridge-api")
	handler := httptransport.New(svc, jwtService, jwttoken.NewJWTServiceAdapter(jwtService), log, cfg.AccessTokenTTL,
		httptransport.WithRevocations(deps.revocations),
	)
	router := httptransport.NewRouter(handler, log, m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), deps.checks...)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting signbridge", "addr", cfg.Addr, "mode", deps.mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	for _, w := range deps.auditWorkers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	return g.Wait()
}
