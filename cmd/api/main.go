package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookingsvc/internal/api"
	"bookingsvc/internal/config"
	"bookingsvc/internal/domain"
	"bookingsvc/internal/events"
	"bookingsvc/internal/logging"
	"bookingsvc/internal/metrics"
	"bookingsvc/internal/notifier"
	"bookingsvc/internal/repository"
	"bookingsvc/internal/service"
	"bookingsvc/internal/tracing"
	"bookingsvc/internal/worker"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if err := tracing.Configure(cfg.Tracing, cfg.App.Version); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := loadAWSConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}

	store, expiring, storeCloser, err := initStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		return err
	}
	defer (func() { _ = storeCloser.Close() })()

	svc := service.NewBookingService(store, cfg.Booking, logging.Component(logger, "booking-service"))
	httpServer := api.NewHTTPServer(cfg.API, svc, logging.Component(logger, "http"))

	if expiring != nil {
		publisher, pubCloser, err := events.NewPublisher(cfg, awsCfg, logging.Component(logger, "reminder-publisher"))
		if err != nil {
			return fmt.Errorf("init event publisher: %w", err)
		}
		defer (func() { _ = pubCloser.Close() })()

		expiryNotifier := notifier.NewExpiryNotifier(publisher, cfg.Events, logging.Component(logger, "expiry-notifier"))
		sweeper := worker.NewExpirySweeper(expiring, expiryNotifier, cfg.Store, worker.RetryPolicy{}, logging.Component(logger, "expiry-sweeper"))
		go sweeper.Start(ctx)
	}

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

// loadAWSConfig loads shared AWS settings when a backend or bus needs them.
func loadAWSConfig(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (aws.Config, error) {
	if cfg.Store.Backend != config.BackendDynamoDB && cfg.Events.Bus != config.BusEventBridge {
		return aws.Config{}, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	tracing.InstrumentAWS(&awsCfg)

	logger.Info().Str("region", awsCfg.Region).Str("endpoint", cfg.AWS.Endpoint).Msg("aws config loaded")
	return awsCfg, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// initStore returns the booking store and, for backends without native expiry,
// the same store as an ExpiringStore for the sweeper.
func initStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger *zerolog.Logger) (domain.BookingStore, domain.ExpiringStore, io.Closer, error) {
	noop := closerFunc(func() error { return nil })

	switch cfg.Store.Backend {
	case config.BackendDynamoDB:
		store := repository.NewDynamoStore(&awsCfg, cfg.Store.TableName,
			repository.WithUserIndex(cfg.Store.UserIndex),
			repository.WithEndpoint(cfg.AWS.Endpoint),
			repository.WithDynamoLogger(logging.Component(logger, "dynamo-store")),
		)
		logger.Info().Str("table", cfg.Store.TableName).Str("index", cfg.Store.UserIndex).Msg("using dynamodb store")
		return store, nil, noop, nil

	case config.BackendRedis:
		client := repository.NewRedisClient(cfg.Redis)
		if err := repository.Ping(ctx, client); err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
		store := repository.NewRedisStore(client)
		return store, store, client, nil

	case config.BackendSQLite:
		store, err := repository.NewSQLiteStore(cfg.Store.SQLitePath, logging.Component(logger, "sqlite-store"))
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, store, nil

	case config.BackendMemory:
		logger.Warn().Msg("using in-memory store; bookings are lost on restart")
		store := repository.NewMemoryStore()
		return store, store, noop, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().
		Int("http_port", cfg.API.HTTP.Port).
		Str("store", cfg.Store.Backend).
		Str("event_bus", cfg.Events.Bus).
		Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	timeout := time.Duration(cfg.API.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
