// Package worker consumes queued generation jobs: it pulls staged
// uploads from object storage, runs the generation pipeline, persists
// the output, and notifies the caller.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mwalcott/qrforge/internal/compose"
	"github.com/mwalcott/qrforge/internal/config"
	"github.com/mwalcott/qrforge/internal/domain"
	"github.com/mwalcott/qrforge/internal/media"
	"github.com/mwalcott/qrforge/internal/pipeline"
	"github.com/mwalcott/qrforge/internal/queue"
	"github.com/mwalcott/qrforge/internal/storage"
	"github.com/mwalcott/qrforge/internal/store"
	"github.com/mwalcott/qrforge/internal/webhook"
	"github.com/mwalcott/qrforge/internal/workspace"
)

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	sem           chan struct{}
	generator     generator
	storage       objectStorage
	webhookClient webhookSender
	jobStore      store.JobStore
	usageStore    store.UsageStore
	metrics       *metrics
	tracer        trace.Tracer
}

type generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (pipeline.Result, error)
}

type objectStorage interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	mediaCfg config.MediaConfig,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}

	gen := pipeline.NewGenerator(
		logger,
		workspace.NewManager(mediaCfg.WorkspaceRoot, logger),
		media.NewNormalizer(logger, mediaCfg.MaxEdge, mediaCfg.MaxFrames),
		compose.NewArtisticComposer(logger),
		mediaCfg.MaxUploadBytes,
	)

	if usageStore == nil {
		if jobAndUsageStore, ok := jobStore.(store.UsageStore); ok {
			usageStore = jobAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		generator:     gen,
		storage:       storageClient,
		webhookClient: webhookClient,
		jobStore:      jobStore,
		usageStore:    usageStore,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("qrforge/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeGenerateQR, s.handleGenerate)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleGenerate(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseGeneratePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	kind := domain.MediaKindStatic
	if media.IsAnimated(payload.UploadFilename) {
		kind = domain.MediaKindAnimated
	}

	ctx, span := s.tracer.Start(ctx, "worker.generate_qr", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.kind", kind),
		attribute.Bool("job.has_upload", payload.UploadKey != ""),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(kind, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(kind, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf(
		"Working... job_id=%s kind=%s upload_key=%s",
		payload.JobID,
		kind,
		payload.UploadKey,
	)

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	result, err := s.generate(ctx, payload)
	if err != nil {
		s.markFailed(ctx, payload.JobID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		s.dispatchWebhook(ctx, payload, webhook.EventFailed, map[string]any{
			"job_id":       payload.JobID,
			"status":       domain.JobStatusFailed,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
		if isPermanent(err) {
			// Bad input never succeeds on retry.
			return fmt.Errorf("generate qr: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("generate qr: %w", err)
	}

	outputKey := storage.OutputKey(payload.JobID, result.Filename)
	if err := s.storage.WriteObject(ctx, outputKey, result.Data, domain.ContentTypeForKind(result.Kind)); err != nil {
		s.updateJobStatus(ctx, payload.JobID, domain.JobStatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "output upload failed")
		return fmt.Errorf("store output: %w", err)
	}

	if result.Truncated {
		s.metrics.reduceTruncated.Inc()
	}
	if result.Degraded {
		s.metrics.reduceDegraded.Inc()
	}

	s.logger.Printf("Generated job_id=%s output_key=%s frames=%d bytes=%d", payload.JobID, outputKey, result.Frames, len(result.Data))
	if _, err := s.jobStore.MarkSucceeded(ctx, payload.JobID, outputKey, result.Kind); err != nil {
		s.logger.Printf("job success update failed job_id=%s err=%v", payload.JobID, err)
	}
	s.recordUsage(ctx, payload.JobID, result, time.Since(startedAt))

	if err := s.dispatchWebhook(ctx, payload, webhook.EventCompleted, map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusSucceeded,
		"output_key":   outputKey,
		"output_kind":  result.Kind,
		"frames":       result.Frames,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "generated")
	return nil
}

func (s *Server) generate(ctx context.Context, payload queue.GeneratePayload) (pipeline.Result, error) {
	req := domain.GenerateRequest{
		Text:       payload.Text,
		Version:    payload.Version,
		Level:      payload.Level,
		Colorized:  payload.Colorized,
		Contrast:   payload.Contrast,
		Brightness: payload.Brightness,
	}

	if payload.UploadKey != "" {
		data, err := s.storage.ReadObject(ctx, payload.UploadKey)
		if err != nil {
			return pipeline.Result{}, fmt.Errorf("fetch upload: %w", err)
		}
		req.Upload = &domain.Upload{Filename: payload.UploadFilename, Data: data}
	}

	return s.generator.Generate(ctx, req)
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidParameter) ||
		errors.Is(err, domain.ErrUnsupportedMedia) ||
		errors.Is(err, domain.ErrPayloadTooLarge)
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) markFailed(ctx context.Context, jobID string, cause error) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		s.logger.Printf("job failure update failed job_id=%s err=%v", jobID, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.GeneratePayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func (s *Server) recordUsage(ctx context.Context, jobID string, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	computeTimeMS := computeDuration.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	usage := domain.UsageLog{
		JobID:         jobID,
		FramesEmitted: int64(result.Frames),
		OutputBytes:   int64(len(result.Data)),
		ComputeTimeMS: computeTimeMS,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.usageStore.RecordUsage(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed job_id=%s err=%v", jobID, err)
		return
	}

	s.metrics.framesEmittedTotal.Add(float64(usage.FramesEmitted))
	s.metrics.outputBytesTotal.Add(float64(usage.OutputBytes))
	s.metrics.computeTimeMSTotal.Add(float64(usage.ComputeTimeMS))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
