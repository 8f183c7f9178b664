package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/mwalcott/qrforge/internal/api"
	"github.com/mwalcott/qrforge/internal/compose"
	"github.com/mwalcott/qrforge/internal/config"
	"github.com/mwalcott/qrforge/internal/media"
	"github.com/mwalcott/qrforge/internal/pipeline"
	"github.com/mwalcott/qrforge/internal/queue"
	"github.com/mwalcott/qrforge/internal/ratelimit"
	"github.com/mwalcott/qrforge/internal/storage"
	"github.com/mwalcott/qrforge/internal/store"
	"github.com/mwalcott/qrforge/internal/telemetry"
	"github.com/mwalcott/qrforge/internal/workspace"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	if err := media.Startup(); err != nil {
		logger.Fatalf("media runtime startup failed: %v", err)
	}
	defer media.Shutdown()

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), telemetry.TraceConfig{
		ServiceName:  "qrforge-api",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	var jobStore store.JobStore
	if cfg.Database.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pgStore, err := store.NewPostgresJobStore(ctx, cfg.Database.DSN)
		cancel()
		if err != nil {
			logger.Printf("postgres unavailable, using in-memory job store: %v", err)
			jobStore = store.NewMemoryJobStore()
		} else {
			defer pgStore.Close()
			jobStore = pgStore
		}
	} else {
		jobStore = store.NewMemoryJobStore()
	}

	var storageClient *storage.Client
	if sc, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		UseSSL:   cfg.Storage.UseSSL,
	}); err != nil {
		logger.Printf("object storage unavailable, async uploads disabled: %v", err)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := sc.EnsureBucket(ctx); err != nil {
			logger.Printf("bucket check failed: %v", err)
		}
		cancel()
		storageClient = sc
	}

	var rateLimiter api.RateLimiter
	if bucket, err := ratelimit.NewRedisTokenBucket(
		redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		}),
		60,
		time.Minute,
		"qrforge:ratelimit",
	); err != nil {
		logger.Printf("rate limiter setup failed, running without limits: %v", err)
	} else {
		rateLimiter = bucket
	}

	generator := pipeline.NewGenerator(
		logger,
		workspace.NewManager(cfg.Media.WorkspaceRoot, logger),
		media.NewNormalizer(logger, cfg.Media.MaxEdge, cfg.Media.MaxFrames),
		compose.NewArtisticComposer(logger),
		cfg.Media.MaxUploadBytes,
	)

	opts := api.ServerOptions{
		Generator:      generator,
		QueueClient:    queueClient,
		JobStore:       jobStore,
		RateLimiter:    rateLimiter,
		Tracer:         otel.Tracer("qrforge/api"),
		MaxUploadBytes: cfg.Media.MaxUploadBytes,
	}
	if storageClient != nil {
		opts.Storage = storageClient
	}
	app := api.NewServer(logger, opts)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}
