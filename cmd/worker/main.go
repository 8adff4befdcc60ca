package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"zlot-parking/internal/config"
	"zlot-parking/internal/database"
	"zlot-parking/internal/events"
	"zlot-parking/internal/logger"
	"zlot-parking/internal/metrics"
	"zlot-parking/internal/observability"
	"zlot-parking/internal/parking"
	"zlot-parking/internal/temporal"
	"zlot-parking/internal/temporal/activities"
	"zlot-parking/internal/temporal/workflows"

	"github.com/prometheus/client_golang/prometheus"
	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fatal(slog.Default(), "Failed to load configuration", err)
	}
	log := logger.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		fatal(log, "Invalid configuration", err)
	}
	if cfg.TemporalAddress == "" {
		fatal(log, "Invalid configuration", errors.New("TEMPORAL_ADDRESS is required for the worker"))
	}
	if cfg.StoreBackend != "mysql" {
		fatal(log, "Invalid configuration", errors.New("the worker needs the mysql store backend"))
	}

	ctx := context.Background()
	shutdownTracing, err := observability.Init(ctx, "zlot-worker", cfg.OTLPEndpoint)
	if err != nil {
		fatal(log, "Failed to initialise tracing", err)
	}
	defer shutdownTracing(ctx)

	// Connect to database
	db, err := database.NewDB(cfg.DatabaseDSN)
	if err != nil {
		fatal(log, "Failed to connect to database", err)
	}
	defer db.Close()
	if err := db.VerifyWriteAccess(ctx); err != nil {
		fatal(log, "Database refuses writes", err)
	}

	log.Info("Connected to database")

	// Connect to Temporal
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    temporallog.NewStructuredLogger(log),
	})
	if err != nil {
		fatal(log, "Failed to create Temporal client", err)
	}
	defer temporalClient.Close()

	log.Info("Connected to Temporal")

	var publisher interface {
		parking.Publisher
		Close() error
	} = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	defer publisher.Close()

	// Activities share the server's service so closes go through the same
	// transaction and dispatch path.
	svc := parking.NewService(db, parking.Options{
		DefaultDeviceID: cfg.DefaultDeviceID,
		SessionDuration: cfg.SessionDuration(),
		OnlineWindow:    cfg.DeviceOnlineWindow(),
		Scheduler:       temporal.NewScheduler(temporalClient, cfg.TemporalTaskQueue),
		Publisher:       publisher,
		Metrics:         metrics.New(prometheus.NewRegistry()),
		Logger:          log,
	})

	// Create worker
	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})

	// Register workflows
	w.RegisterWorkflow(workflows.SessionCloseWorkflow)
	w.RegisterWorkflow(workflows.GateAutoCloseWorkflow)

	// Register activities
	gateActivities := activities.NewGateActivities(svc)
	w.RegisterActivity(gateActivities.CloseSession)
	w.RegisterActivity(gateActivities.DispatchClose)

	// Start worker
	if err := w.Start(); err != nil {
		fatal(log, "Failed to start worker", err)
	}

	log.Info("Worker started successfully", "task_queue", cfg.TemporalTaskQueue)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down worker...")
	w.Stop()
	log.Info("Worker stopped")
}
