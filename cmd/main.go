// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
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

	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/conference-booking/internal/config"
	"github.com/Shivanand-hulikatti/conference-booking/internal/database"
	"github.com/Shivanand-hulikatti/conference-booking/internal/handler"
	"github.com/Shivanand-hulikatti/conference-booking/internal/rabbit"
	"github.com/Shivanand-hulikatti/conference-booking/internal/repository"
	"github.com/Shivanand-hulikatti/conference-booking/internal/service"
	"github.com/Shivanand-hulikatti/conference-booking/internal/worker"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)
	if err := run(cfg, &log); err != nil {
		log.Fatal().Err(err).Msg("service exited")
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func run(cfg *config.Config, log *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Storage ───────────────────────────────────────────────────────
	var store repository.Store
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := database.NewPool(ctx, cfg.DB, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		store = repository.NewPostgresStore(pool)
		log.Info().Str("host", cfg.DB.Host).Str("db", cfg.DB.Name).Msg("connected to postgres")
	default:
		store = repository.NewMemoryStore()
		log.Info().Msg("using in-memory store")
	}

	// ── 2. Services and promotion worker ─────────────────────────────────
	opts := []service.Option{service.WithConfirmWindow(cfg.Booking.ConfirmWindow)}

	var bus worker.Bus
	if cfg.Promotion.Mode == config.PromotionEager {
		var (
			closeBus func()
			err      error
		)
		if bus, closeBus, err = newBus(cfg.AMQP, log); err != nil {
			return err
		}
		defer closeBus()
		opts = append(opts, service.WithNotifier(bus))
	}

	bookings := service.NewBookingService(store, log, opts...)
	registry := service.NewRegistryService(store, log, opts...)

	if bus != nil {
		promoter := worker.NewPromoter(bus, bookings.Maintainer(), log)
		promoter.Start(ctx)
		defer promoter.Stop()
	}

	// ── 3. HTTP server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTP.Port),
		Handler:      handler.NewRouter(handler.New(bookings, registry, log), log),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTP.Port).Str("promotion", cfg.Promotion.Mode).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

// newBus picks RabbitMQ when a URL is configured and an in-process channel
// otherwise.
func newBus(cfg config.AMQPConfig, log *zerolog.Logger) (worker.Bus, func(), error) {
	if cfg.URL == "" {
		log.Info().Msg("eager promotion over in-process bus")
		return worker.NewChannelBus(1024, log), func() {}, nil
	}
	client, err := rabbit.Dial(cfg.URL, cfg.Exchange, cfg.Queue, log)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq: %w", err)
	}
	return worker.NewAMQPBus(client, log), client.Close, nil
}
