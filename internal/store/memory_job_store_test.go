package store

import (
	"context"
	"testing"
	"time"

	"github.com/mwalcott/qrforge/internal/domain"
)

func TestMemoryJobStoreLifecycle(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()

	job := domain.Job{
		ID:        "job-1",
		Status:    domain.JobStatusQueued,
		Text:      "https://example.com",
		Version:   1,
		Level:     "H",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok, err := s.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("expected job, got ok=%v err=%v", ok, err)
	}
	if got.Status != domain.JobStatusQueued {
		t.Fatalf("expected queued, got %s", got.Status)
	}

	if _, err := s.UpdateStatus(ctx, "job-1", domain.JobStatusProcessing); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, err = s.MarkSucceeded(ctx, "job-1", "outputs/job-1/out.png", domain.MediaKindStatic)
	if err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if got.Status != domain.JobStatusSucceeded || got.OutputKey != "outputs/job-1/out.png" {
		t.Fatalf("unexpected job after success: %+v", got)
	}

	if _, err := s.MarkFailed(ctx, "missing", "nope"); err != ErrJobNotFound {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryJobStoreRecordsUsage(t *testing.T) {
	s := NewMemoryJobStore()
	ctx := context.Background()

	usage := domain.UsageLog{
		JobID:         "job-1",
		FramesEmitted: 3,
		OutputBytes:   1024,
		ComputeTimeMS: 250,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.RecordUsage(ctx, usage); err != nil {
		t.Fatalf("record usage: %v", err)
	}

	entries := s.Usage()
	if len(entries) != 1 {
		t.Fatalf("expected one usage entry, got %d", len(entries))
	}
	if entries[0].FramesEmitted != 3 || entries[0].OutputBytes != 1024 {
		t.Fatalf("unexpected usage entry: %+v", entries[0])
	}
}
