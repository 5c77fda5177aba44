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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"studiobron/internal/api"
	"studiobron/internal/availability"
	"studiobron/internal/booking"
	"studiobron/internal/cache"
	"studiobron/internal/config"
	"studiobron/internal/database"
	"studiobron/internal/db"
	"studiobron/internal/ledger"
	"studiobron/internal/metrics"
	"studiobron/internal/model"
	"studiobron/internal/pricing"
	"studiobron/internal/report"
	"studiobron/internal/schedule"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("STUDIOBRON_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	d, err := database.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer d.Close()

	store := db.New(d)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var scheduleCache schedule.Cache
	var invalidator api.ScheduleInvalidator
	if cfg.Redis.Enabled && cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, schedule cache disabled")
		} else {
			sc := cache.NewScheduleCache(rdb, cfg.RedisTTL(), &logger)
			scheduleCache = sc
			invalidator = sc
		}
	}

	if _, err := store.EnsurePaymentType(ctx, model.TariffUnitsPaymentType); err != nil {
		logger.Fatal().Err(err).Msg("seed payment types error")
	}

	resolver := schedule.NewResolver(store, scheduleCache, &logger)
	checker := availability.NewChecker(store, resolver, &logger)
	pricer := pricing.NewEngine(store, &logger)
	locks := database.NewLockManager()
	bookings := booking.NewService(store, checker, pricer, locks, cfg.Booking, &logger)
	payments := ledger.NewService(store, &logger)
	exporter := report.NewExporter(store, &logger)

	var limiter *rate.Limiter
	if cfg.Server.RatePerSecond > 0 {
		burst := cfg.Server.RateBurst
		if burst <= 0 {
			burst = int(cfg.Server.RatePerSecond)
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Server.RatePerSecond), burst)
	}

	server := api.NewHTTPServer(store, bookings, payments, checker, resolver, pricer, exporter, invalidator, limiter, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backup.Start(ctx)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info().Int("port", cfg.Server.Port).Msg("studiobron started")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("http server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Int("port", port).Msg("metrics server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
