package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tutorbook/internal/api"
	"tutorbook/internal/config"
	"tutorbook/internal/database"
	"tutorbook/internal/events"
	"tutorbook/internal/metrics"
	"tutorbook/internal/service"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("TUTORBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	dbLogger := logger.With().Str("component", "database").Logger()
	db, err := database.NewDB(cfg.Database.Path, &dbLogger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus()
	subscribeAuditTrail(ctx, bus, db, &logger)

	policy := service.Policy{
		MinAdvance:        cfg.BookingMinAdvance(),
		SelfCancelNotice:  cfg.SelfCancelNotice(),
		PackageWeeksLimit: cfg.PackageWeeksLimit(),
	}
	svcLogger := logger.With().Str("component", "booking").Logger()
	booking := service.NewBookingService(db, bus, policy, &svcLogger)

	slotLogger := logger.With().Str("component", "slots").Logger()
	slots := service.NewSlotService(db, cfg.AllowedWeekdays(), &slotLogger)

	sweepLogger := logger.With().Str("component", "sweeper").Logger()
	sweeper := service.NewSweeper(db, cfg.SweepInterval(), &sweepLogger)
	go sweeper.Start(ctx)

	if cfg.Backup.Enabled {
		backupLogger := logger.With().Str("component", "backup").Logger()
		backup := database.NewBackupService(cfg.Database.Path, database.BackupOptions{
			StoragePath:   cfg.Backup.StoragePath,
			Interval:      cfg.BackupInterval(),
			RetentionDays: cfg.Backup.RetentionDays,
		}, &backupLogger)
		go backup.Start(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	apiLogger := logger.With().Str("component", "api").Logger()
	server := api.NewHTTPServer(booking, slots, db, api.Options{
		APIKey:            cfg.Server.APIKey,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		Cache:             rdb,
		CacheTTL:          cfg.CacheTTL(),
	}, &apiLogger)

	logger.Info().Msg("tutorbook server started")
	if err := server.Start(ctx, cfg.Server.Address); err != nil {
		logger.Fatal().Err(err).Msg("API server error")
	}
}

// subscribeAuditTrail persists every domain event to the audit log.
func subscribeAuditTrail(ctx context.Context, bus *events.EventBus, db *database.DB, logger *zerolog.Logger) {
	record := func(action string) events.EventHandler {
		return func(event events.Event) error {
			if err := db.InsertAudit(ctx, "engine", action, "booking", 0, string(event.Payload)); err != nil {
				logger.Warn().Err(err).Str("action", action).Msg("failed to write audit entry")
			}
			return nil
		}
	}
	bus.Subscribe(events.TypeBookingCreated, record("booking.created"))
	bus.Subscribe(events.TypeBookingCancelled, record("booking.cancelled"))
	bus.Subscribe(events.TypeSlotDeactivated, record("slot.deactivated"))
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
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

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
