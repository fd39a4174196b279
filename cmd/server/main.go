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

	"groundslot/internal/api"
	"groundslot/internal/booking"
	"groundslot/internal/cache"
	"groundslot/internal/config"
	"groundslot/internal/db"
	"groundslot/internal/events"
	"groundslot/internal/metrics"
	"groundslot/internal/payment"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := os.Getenv("GROUNDSLOT_CONFIG_PATH")
	if configPath == "" {
		configPath = config.DefaultPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		bootLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
	}
	logger := newLogger(cfg.Logging)

	database, err := db.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	bus := events.NewEventBus(&logger)
	statusCache := cache.NewStatusCache(rdb, cfg.StatusCacheTTL(), &logger)
	statusCache.Subscribe(bus)

	loc := cfg.Location()
	bookingService := booking.NewService(database, bus, statusCache, booking.BookingRules{
		MinAdvance: cfg.BookingMinAdvance(),
		MaxAdvance: cfg.BookingMaxAdvance(),
		Location:   loc,
	}, &logger)

	paymentService := payment.NewService(database, bookingService, bus, payment.Config{
		SecretKey:   cfg.Esewa.SecretKey,
		ProductCode: cfg.Esewa.ProductCode,
		FormURL:     cfg.Esewa.FormURL,
		SuccessURL:  cfg.Esewa.SuccessURL,
		FailureURL:  cfg.Esewa.FailureURL,
	}, &logger)

	server := api.NewHTTPServer(cfg.HTTP, api.Frontend{
		SuccessURL: cfg.Esewa.FrontendSuccessURL,
		FailureURL: cfg.Esewa.FrontendFailureURL,
	}, bookingService, paymentService, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	watcher := config.NewBookingWatcher(configPath, 0, cfg.Booking, func(bc config.BookingConfig) {
		bookingService.SetRules(booking.BookingRules{
			MinAdvance: bc.MinAdvance(),
			MaxAdvance: bc.MaxAdvance(),
			Location:   loc,
		})
		logger.Info().
			Int("min_advance_minutes", bc.MinAdvanceMinutes).
			Int("max_advance_days", bc.MaxAdvanceDays).
			Msg("booking rules reloaded")
	})
	watcher.OnError(func(err error) {
		logger.Warn().Err(err).Msg("config reload failed, keeping current booking rules")
	})
	g.Go(func() error {
		watcher.Run(ctx)
		return nil
	})

	sweeper := payment.NewSweeper(paymentService, cfg.PendingTTL(), cfg.SweepInterval(), &logger)
	g.Go(func() error {
		sweeper.Start(ctx)
		return nil
	})

	backups := db.NewBackupService(database, cfg.Backup, &logger)
	g.Go(func() error {
		backups.Start(ctx)
		return nil
	})

	g.Go(func() error {
		return serve(ctx, healthMux(ctx, database, rdb), cfg.Monitoring.HealthCheckPort)
	})

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		g.Go(func() error {
			return serve(ctx, mux, cfg.Monitoring.PrometheusPort)
		})
	}

	g.Go(func() error {
		return server.Start(ctx)
	})

	logger.Info().Str("app", cfg.App.Name).Str("env", cfg.App.Environment).Msg("groundslot started")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("groundslot stopped")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func healthMux(ctx context.Context, database *db.DB, rdb *redis.Client) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
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
	return mux
}

// serve runs an auxiliary server until ctx is done.
func serve(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	return nil
}
