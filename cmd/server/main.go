package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zlot-parking/internal/api"
	"zlot-parking/internal/auth"
	"zlot-parking/internal/config"
	"zlot-parking/internal/database"
	"zlot-parking/internal/events"
	"zlot-parking/internal/logger"
	"zlot-parking/internal/metrics"
	"zlot-parking/internal/models"
	"zlot-parking/internal/observability"
	"zlot-parking/internal/owner"
	"zlot-parking/internal/parking"
	"zlot-parking/internal/store"
	"zlot-parking/internal/store/memory"
	"zlot-parking/internal/temporal"

	"github.com/prometheus/client_golang/prometheus"
	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	"gopkg.in/guregu/null.v4"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Init(ctx, "zlot-server", cfg.OTLPEndpoint)
	if err != nil {
		fatal(log, "Failed to initialise tracing", err)
	}

	// Connect to the store
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		fatal(log, "Failed to open store", err)
	}
	defer closeStore()

	// Connect to Temporal when configured; otherwise delayed closes run on
	// in-process timers.
	var scheduler parking.CloseScheduler
	if cfg.TemporalAddress != "" {
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
			Logger:    temporallog.NewStructuredLogger(log),
		})
		if err != nil {
			fatal(log, "Failed to create Temporal client", err)
		}
		defer temporalClient.Close()
		scheduler = temporal.NewScheduler(temporalClient, cfg.TemporalTaskQueue)
		log.Info("Connected to Temporal", "address", cfg.TemporalAddress, "task_queue", cfg.TemporalTaskQueue)
	}

	var publisher interface {
		parking.Publisher
		Close() error
	} = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.Info("Publishing lifecycle events", "topic", cfg.KafkaTopic)
	}
	defer publisher.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	svc := parking.NewService(st, parking.Options{
		DefaultDeviceID: cfg.DefaultDeviceID,
		SessionDuration: cfg.SessionDuration(),
		OnlineWindow:    cfg.DeviceOnlineWindow(),
		Scheduler:       scheduler,
		Publisher:       publisher,
		Metrics:         m,
		Logger:          log,
	})
	if local, ok := svc.Scheduler().(*parking.LocalScheduler); ok {
		defer local.Stop()
	}

	go svc.RunSweeper(ctx, cfg.SweepInterval)

	ownerSvc, err := newOwnerService(ctx, cfg.Owner, log)
	if err != nil {
		fatal(log, "Failed to configure owner submissions", err)
	}

	// Create API handler
	handler := api.NewHandler(svc, auth.NewGate(auth.NewVerifier(cfg.JWTSecret), st), ownerSvc, m, log)

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		CORS:      cfg.CORSPolicy(),
		RateLimit: cfg.DeviceRateLimit,
		RateBurst: cfg.DeviceRateBurst,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Port, "origins", cfg.CORSPolicy().Origins())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(log, "Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Failed to flush traces", "error", err)
	}

	log.Info("Server exited")
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, func(), error) {
	if cfg.StoreBackend == "memory" {
		st := memory.New()
		device := st.AddDevice(models.Device{DeviceID: cfg.DefaultDeviceID})
		st.AddSlot(models.ParkingSlot{
			DeviceID:  cfg.DefaultDeviceID,
			DeviceRef: null.StringFrom(device.ID),
			SlotName:  "Demo slot",
			Price:     50,
			IsActive:  true,
		})
		log.Warn("Using in-memory store; data is lost on restart", "device_id", cfg.DefaultDeviceID)
		return st, func() {}, nil
	}

	db, err := database.NewDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RunMigrations {
		if err := database.Migrate(db.DB); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("Database migrations applied")
	}
	if err := db.VerifyWriteAccess(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	log.Info("Connected to database")
	return db, func() { db.Close() }, nil
}

func newOwnerService(ctx context.Context, cfg config.OwnerConfig, log *slog.Logger) (*owner.Service, error) {
	var media owner.MediaStore
	if cfg.MinioEndpoint != "" {
		ms, err := owner.NewMinioStore(owner.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.MediaBucket,
			PublicURL: cfg.MinioPublicURL,
		})
		if err != nil {
			return nil, err
		}
		if err := ms.EnsureBucket(ctx); err != nil {
			log.Warn("Owner media bucket unavailable", "bucket", cfg.MediaBucket, "error", err)
		}
		media = ms
	}

	var mailer owner.Mailer
	if cfg.ResendAPIKey != "" {
		mailer = owner.NewResendMailer(cfg.ResendAPIKey, cfg.ResendFrom)
	}
	return owner.NewService(media, mailer, cfg.Recipient, log), nil
}
