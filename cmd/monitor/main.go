package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/pulsewatch/internal/config"
	"github.com/hamed0406/pulsewatch/internal/httpapi"
	apimw "github.com/hamed0406/pulsewatch/internal/httpapi/middleware"
	"github.com/hamed0406/pulsewatch/internal/logging"
	"github.com/hamed0406/pulsewatch/internal/metrics"
	"github.com/hamed0406/pulsewatch/internal/notify"
	"github.com/hamed0406/pulsewatch/internal/probe"
	"github.com/hamed0406/pulsewatch/internal/repo"
	"github.com/hamed0406/pulsewatch/internal/repo/memory"
	"github.com/hamed0406/pulsewatch/internal/repo/postgres"
	"github.com/hamed0406/pulsewatch/internal/repo/redisstore"
	"github.com/hamed0406/pulsewatch/internal/scheduler"
	"github.com/hamed0406/pulsewatch/internal/secrets"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("monitor_exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// No monitoring without keys.
	kr, err := secrets.NewKeyring(cfg.SecretSeed, secrets.DefaultKeyBits)
	if err != nil {
		return err
	}
	if cfg.KeysDir != "" {
		if err := secrets.WriteKeys(cfg.KeysDir, kr.PrivateKey()); err != nil {
			logger.Warn("keys_write_failed", zap.String("dir", cfg.KeysDir), zap.Error(err))
		}
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	auditor := repo.MultiAuditor{repo.LogAuditor{Log: logger}, metrics.DeletionAuditor{}}

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	var (
		hits   repo.HitStore
		states repo.StateStore
	)
	if cfg.RedisURL != "" {
		rdb, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		closers = append(closers, rdb.Close)
		rs := redisstore.New(rdb, auditor, logger)
		hits, states = rs, rs
		logger.Info("store_redis")
	} else {
		ms := memory.New(auditor)
		hits, states = ms, ms
		logger.Warn("store_memory", zap.String("hint", "set REDIS_URL to keep history across restarts"))
	}
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		closers = append(closers, func() error { pg.Close(); return nil })
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		states = pg
		logger.Info("state_postgres")
	}

	fleet, err := config.NewWatcher(cfg.FleetConfig, logger)
	if err != nil {
		return err
	}
	logger.Info("fleet_loaded",
		zap.String("path", cfg.FleetConfig),
		zap.Int("services", len(fleet.Current().Services)),
	)

	engine := probe.NewEngine(kr, probe.NewHTTPChecker(0), logger)

	transport := notify.FromConfig(cfg.Notify, logger)
	if transport == nil {
		logger.Warn("notify_disabled", zap.String("hint", "no SMTP, SendGrid or Slack settings"))
	}
	alerter := scheduler.NewAlerter(states, transport, logger)

	sched := scheduler.New(logger, fleet, engine, hits, alerter, cfg.Tick, cfg.MaxConcurrent)

	api := httpapi.NewServer(logger, fleet, hits, states)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.CORSOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	g.Go(func() error { return fleet.Run(gctx) })
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("monitor_stopped")
	return err
}
