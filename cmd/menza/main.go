package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"menza/internal/api"
	"menza/internal/audit"
	"menza/internal/booking"
	"menza/internal/cache"
	"menza/internal/config"
	"menza/internal/db"
	"menza/internal/events"
	"menza/internal/manager"
	"menza/internal/metrics"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load(os.Getenv("MENZA_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.App.LogLevel); err == nil && cfg.App.LogLevel != "" {
		logger = logger.Level(level)
	}

	database, err := db.Open(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	clock := clockwork.NewRealClock()
	bus := events.NewEventBus()
	availability := cache.NewAvailabilityCache(rdb, cfg.CacheTTL(), &logger)
	availability.Subscribe(bus)

	reservations := booking.NewService(database, bus, availability, clock, cfg.MaxAvailabilityDays(), &logger)
	directory := manager.NewManager(database, bus, &logger)
	exporter := audit.NewExporter(database, cfg.AuditExportPath(), clock, &logger)

	var reports api.Reports
	if cfg.Audit.Enabled {
		reports = exporter
	}
	httpServer := api.NewHTTPServer(cfg, reservations, directory, reports, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = config.WatchCanteens(ctx, cfg.CanteensPath(), cfg.CanteensWatchInterval(),
		func(c *config.CanteensConfig, change config.CanteensChange) {
			if len(change.Dropped) > 0 {
				logger.Warn().Ints64("canteen_ids", change.Dropped).Msg("Canteens removed from config are kept in the database")
			}
			if err := directory.SyncCanteensFromConfig(ctx, c); err != nil {
				logger.Error().Err(err).Msg("Failed to sync canteens")
				return
			}
			logger.Info().Ints64("changed", change.Changed).Msg("Canteens config applied")
		},
		func(err error) {
			logger.Warn().Err(err).Msg("Ignoring invalid canteens config")
		},
	)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn().Str("path", cfg.CanteensPath()).Msg("Canteens config not found, skipping seed")
	case err != nil:
		logger.Fatal().Err(err).Msg("load canteens config")
	}

	scheduler, err := startScheduler(ctx, cfg, clock, database, exporter, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("scheduler shutdown error")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpServer.Start(gctx, cfg.ShutdownTimeout())
	})
	g.Go(func() error {
		return startHealthServer(gctx, cfg.HealthPort(), database, rdb, &logger)
	})
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		g.Go(func() error {
			return startMetricsServer(gctx, cfg.MetricsPort(), &logger)
		})
	}

	logger.Info().Str("env", cfg.App.Environment).Msg("menza started")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
	}
	logger.Info().Msg("menza stopped")
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctxPing, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	return serve(ctx, "health", port, mux, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return serve(ctx, "metrics", port, mux, logger)
}

func serve(ctx context.Context, name string, port int, h http.Handler, logger *zerolog.Logger) error {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("addr", srv.Addr).Msgf("%s server listening", name)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}
