// Package api exposes the HTTP surface: a synchronous generation
// endpoint that streams the image back, and an asynchronous job flow
// backed by the queue and object storage.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"

	"github.com/mwalcott/qrforge/internal/domain"
	"github.com/mwalcott/qrforge/internal/id"
	"github.com/mwalcott/qrforge/internal/pipeline"
	"github.com/mwalcott/qrforge/internal/queue"
	"github.com/mwalcott/qrforge/internal/storage"
	"github.com/mwalcott/qrforge/internal/store"
)

const (
	// Response headers reporting what the encoder actually produced.
	HeaderVersion = "X-Qrforge-Version"
	HeaderFrames  = "X-Qrforge-Frames"

	defaultRateLimitHeader = "X-User-ID"
)

type Server struct {
	logger                *log.Logger
	generator             generator
	queueClient           queueEnqueuer
	jobStore              store.JobStore
	storage               objectStorage
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	tracer                trace.Tracer
	metrics               *metrics
	maxUploadBytes        int64
	presignTTL            time.Duration
	mux                   *http.ServeMux
}

type generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (pipeline.Result, error)
}

type queueEnqueuer interface {
	EnqueueGenerate(ctx context.Context, payload queue.GeneratePayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	PresignedGetURL(ctx context.Context, objectKey, downloadName string, expiry time.Duration) (string, error)
}

// ServerOptions collects the optional collaborators. Generator is the
// only required one; nil queue, store, or storage disable the async job
// endpoints with a 503.
type ServerOptions struct {
	Generator       generator
	QueueClient     queueEnqueuer
	JobStore        store.JobStore
	Storage         objectStorage
	RateLimiter     RateLimiter
	RateLimitHeader string
	Tracer          trace.Tracer
	MaxUploadBytes  int64
	PresignTTL      time.Duration
}

func NewServer(logger *log.Logger, opts ServerOptions) *Server {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.RateLimitHeader == "" {
		opts.RateLimitHeader = defaultRateLimitHeader
	}
	if opts.Storage == nil {
		opts.Storage = unavailableObjectStorage{}
	}

	s := &Server{
		logger:                logger,
		generator:             opts.Generator,
		queueClient:           opts.QueueClient,
		jobStore:              opts.JobStore,
		storage:               opts.Storage,
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: opts.RateLimitHeader,
		tracer:                opts.Tracer,
		metrics:               newMetrics(),
		maxUploadBytes:        opts.MaxUploadBytes,
		presignTTL:            opts.PresignTTL,
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) WriteObject(context.Context, string, []byte, string) error {
	return errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) PresignedGetURL(context.Context, string, string, time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /v1/qr", s.handleGenerate)
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /v1/jobs/", s.handleGetJob)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseGenerateForm(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.generator.Generate(r.Context(), req)
	if err != nil {
		s.metrics.generateTotal.WithLabelValues("error").Inc()
		s.writeError(w, err)
		return
	}
	s.metrics.generateTotal.WithLabelValues(result.Kind).Inc()
	if result.Truncated {
		s.metrics.reduceTruncated.Inc()
	}
	if result.Degraded {
		s.metrics.reduceDegraded.Inc()
	}

	w.Header().Set("Content-Type", domain.ContentTypeForKind(result.Kind))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set(HeaderVersion, strconv.Itoa(result.Version))
	w.Header().Set(HeaderFrames, strconv.Itoa(result.Frames))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		s.logger.Printf("write response failed: %v", err)
	}
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if s.queueClient == nil || s.jobStore == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "job queue is unavailable"})
		return
	}

	req, err := s.parseGenerateForm(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	webhookURL := strings.TrimSpace(r.FormValue("webhook_url"))

	now := time.Now().UTC()
	jobID := id.New()

	uploadKey := ""
	uploadFilename := ""
	if req.Upload != nil {
		uploadKey = storage.UploadKey(jobID, req.Upload.Filename)
		uploadFilename = req.Upload.Filename
		if err := s.storage.WriteObject(r.Context(), uploadKey, req.Upload.Data, "application/octet-stream"); err != nil {
			s.logger.Printf("stage upload failed for job %s: %v", jobID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to stage upload"})
			return
		}
	}

	job := domain.Job{
		ID:             jobID,
		Status:         domain.JobStatusCreated,
		Text:           req.Text,
		Version:        req.Version,
		Level:          req.Level,
		Colorized:      req.Colorized,
		Contrast:       req.Contrast,
		Brightness:     req.Brightness,
		UploadKey:      uploadKey,
		UploadFilename: uploadFilename,
		WebhookURL:     webhookURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Printf("create job failed for job %s: %v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create job"})
		return
	}

	payload := queue.GeneratePayload{
		JobID:          job.ID,
		Text:           job.Text,
		Version:        job.Version,
		Level:          job.Level,
		Colorized:      job.Colorized,
		Contrast:       job.Contrast,
		Brightness:     job.Brightness,
		UploadKey:      job.UploadKey,
		UploadFilename: job.UploadFilename,
		WebhookURL:     job.WebhookURL,
		RequestedAt:    now,
	}

	taskInfo, err := s.queueClient.EnqueueGenerate(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed for job %s: %v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue job"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		s.logger.Printf("update status failed for job %s: %v", job.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     job.ID,
		"status":     domain.JobStatusQueued,
		"queue":      taskInfo.Queue,
		"task_id":    taskInfo.ID,
		"status_url": fmt.Sprintf("/v1/jobs/%s", job.ID),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.jobStore == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "job store is unavailable"})
		return
	}

	jobID, err := extractJobIDFromPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed for job %s: %v", jobID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}

	resp := map[string]any{
		"job_id":     job.ID,
		"status":     job.Status,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
	if job.Failure != "" {
		resp["failure"] = job.Failure
	}
	if job.Status == domain.JobStatusSucceeded && job.OutputKey != "" {
		resp["output_kind"] = job.OutputKind
		url, err := s.storage.PresignedGetURL(r.Context(), job.OutputKey, strings.TrimPrefix(job.OutputKey, "outputs/"+job.ID+"/"), s.presignTTL)
		if err != nil {
			s.logger.Printf("presign output failed for job %s: %v", job.ID, err)
		} else {
			resp["download_url"] = url
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseGenerateForm reads the multipart generation form shared by the
// sync and async endpoints. Missing numeric fields take their neutral
// defaults; malformed ones are client errors.
func (s *Server) parseGenerateForm(r *http.Request) (domain.GenerateRequest, error) {
	if err := r.ParseMultipartForm(s.maxUploadBytes + (1 << 20)); err != nil {
		return domain.GenerateRequest{}, fmt.Errorf("%w: invalid multipart form: %v", domain.ErrInvalidParameter, err)
	}

	req := domain.GenerateRequest{
		Text:       strings.TrimSpace(r.FormValue("words")),
		Version:    1,
		Level:      "H",
		Contrast:   1.0,
		Brightness: 1.0,
	}

	var err error
	if req.Version, err = formInt(r, "version", 1); err != nil {
		return domain.GenerateRequest{}, err
	}
	if v := strings.TrimSpace(r.FormValue("level")); v != "" {
		req.Level = strings.ToUpper(v)
	}
	if req.Colorized, err = formBool(r, "colorized"); err != nil {
		return domain.GenerateRequest{}, err
	}
	if req.Contrast, err = formFloat(r, "contrast", 1.0); err != nil {
		return domain.GenerateRequest{}, err
	}
	if req.Brightness, err = formFloat(r, "brightness", 1.0); err != nil {
		return domain.GenerateRequest{}, err
	}

	upload, err := s.readUpload(r)
	if err != nil {
		return domain.GenerateRequest{}, err
	}
	req.Upload = upload

	return req, nil
}

func (s *Server) readUpload(r *http.Request) (*domain.Upload, error) {
	file, header, err := r.FormFile("picture")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read picture field: %v", domain.ErrInvalidParameter, err)
	}
	defer file.Close()

	// Read one byte past the ceiling so validation can tell an at-limit
	// upload from an oversized one.
	data, err := readLimited(file, s.maxUploadBytes+1)
	if err != nil {
		return nil, fmt.Errorf("read picture upload: %w", err)
	}

	return &domain.Upload{Filename: header.Filename, Data: data}, nil
}

func readLimited(file multipart.File, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(file, limit))
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidParameter), errors.Is(err, domain.ErrUnsupportedMedia):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPayloadTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrCompositionFailure):
		status = http.StatusInternalServerError
	}

	if status >= 500 {
		s.logger.Printf("generate failed: %v", err)
		writeJSON(w, status, map[string]string{"error": "image generation failed"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func formInt(r *http.Request, field string, fallback int) (int, error) {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrInvalidParameter, field, v)
	}
	return parsed, nil
}

func formFloat(r *http.Request, field string, fallback float64) (float64, error) {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", domain.ErrInvalidParameter, field, v)
	}
	return parsed, nil
}

func formBool(r *http.Request, field string) (bool, error) {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", domain.ErrInvalidParameter, field, v)
	}
	return parsed, nil
}

func extractJobIDFromPath(path string) (string, error) {
	trimmed := strings.Trim(strings.TrimPrefix(path, "/v1/jobs/"), "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", errors.New("expected path format /v1/jobs/{id}")
	}
	return trimmed, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
