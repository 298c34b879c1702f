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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/mindcare-booking/cmd/mainconfig"
	"github.com/wolfman30/mindcare-booking/internal/api/router"
	"github.com/wolfman30/mindcare-booking/internal/app/bootstrap"
	"github.com/wolfman30/mindcare-booking/internal/appointments"
	"github.com/wolfman30/mindcare-booking/internal/availability"
	appconfig "github.com/wolfman30/mindcare-booking/internal/config"
	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/internal/doctors"
	"github.com/wolfman30/mindcare-booking/internal/events"
	"github.com/wolfman30/mindcare-booking/internal/http/handlers"
	"github.com/wolfman30/mindcare-booking/internal/observability/metrics"
	"github.com/wolfman30/mindcare-booking/internal/schedule"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting mindcare booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store_backend", cfg.StoreBackend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, bookingMetrics := setupMetrics()

	redisClient, err := bootstrap.ConnectFeedRedis(ctx, cfg)
	if err != nil {
		logger.Warn("redis feed unavailable; live availability limited to this instance", "error", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	deps := bootstrap.StoreDeps{Redis: redisClient}
	var awsClients mainconfig.Clients
	if needsAWS(cfg) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		awsClients = mainconfig.NewClients(awsCfg, cfg.AWSEndpointOverride)
		deps.Dynamo = awsClients.Dynamo
	}
	if cfg.StoreBackend == bootstrap.BackendPostgres {
		deps.Postgres = connectPostgresPool(ctx, cfg.DatabaseURL, logger)
		if deps.Postgres == nil {
			os.Exit(1)
		}
		defer deps.Postgres.Close()
	}

	backend, err := bootstrap.BuildBackend(cfg, deps, logger)
	if err != nil {
		logger.Error("failed to build document store", "error", err)
		os.Exit(1)
	}
	store := bootstrap.BuildStore(cfg, backend, redisClient, logger)
	defer store.Close()

	svc, err := setupServices(cfg, store, bookingMetrics, logger)
	if err != nil {
		logger.Error("invalid booking configuration", "error", err)
		os.Exit(1)
	}

	// Background workers
	sink := bootstrap.BuildEventSink(cfg, awsClients.SQS, bootstrap.BuildEmailSender(cfg, awsClients.SES, logger), svc.doctors, logger)
	deliverer := events.NewDeliverer(events.NewOutboxStore(store), sink, logger).
		WithBatchSize(cfg.OutboxBatch).
		WithInterval(cfg.OutboxInterval).
		WithMetrics(bookingMetrics)
	go deliverer.Start(ctx)
	go appointments.NewSweeper(svc.appointments, cfg.SweepInterval, logger).Start(ctx)

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		Doctors:            handlers.NewDoctorsHandler(svc.doctors, svc.appointments, logger),
		Appointments:       handlers.NewAppointmentsHandler(svc.appointments, logger),
		Availability:       handlers.NewAvailabilityHandler(svc.availability, logger),
		UserAuthSecret:     cfg.JWTSecret,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ReserveRateLimit:   cfg.ReserveRateLimit,
		ReserveBurst:       cfg.ReserveBurst,
		Ready:              readiness(redisClient),
	})

	// Create HTTP server. WriteTimeout is left unset so live availability
	// websockets are not cut off.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type services struct {
	doctors      *doctors.Repository
	appointments *appointments.Service
	availability *availability.Service
}

func setupServices(cfg *appconfig.Config, store *docstore.Store, m *metrics.BookingMetrics, logger *logging.Logger) (*services, error) {
	grid := schedule.DefaultGrid()
	if len(cfg.SlotTimes) > 0 {
		custom, err := schedule.NewGrid(cfg.SlotTimes)
		if err != nil {
			return nil, fmt.Errorf("slot times: %w", err)
		}
		grid = custom
	}
	prices, err := schedule.ParsePriceTable(cfg.PriceTable)
	if err != nil {
		return nil, fmt.Errorf("price table: %w", err)
	}
	loc := cfg.Location()

	repo := doctors.NewRepository(store, logger)
	return &services{
		doctors: repo,
		appointments: appointments.NewService(store, repo,
			appointments.WithGrid(grid),
			appointments.WithPrices(prices),
			appointments.WithCurrency(cfg.Currency),
			appointments.WithLocation(loc),
			appointments.WithMetrics(m),
			appointments.WithLogger(logger),
		),
		availability: availability.NewService(store, grid, loc, cfg.LookaheadBuffer, logger),
	}, nil
}

func needsAWS(cfg *appconfig.Config) bool {
	return cfg.StoreBackend == bootstrap.BackendDynamoDB || cfg.EventsQueueURL != "" || cfg.EmailProvider == "ses"
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}

func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		logger.Error("postgres backend requires DATABASE_URL")
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres not reachable", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func readiness(client *redis.Client) func(ctx context.Context) error {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
