// Package store persists job records and usage accounting. The memory
// implementation backs tests and single-node setups, the Postgres one
// backs real deployments.
package store

import (
	"context"
	"errors"

	"github.com/mwalcott/qrforge/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	// MarkSucceeded records the finished output and flips the job to
	// succeeded in one step.
	MarkSucceeded(ctx context.Context, id, outputKey, outputKind string) (domain.Job, error)
	// MarkFailed records the failure reason and flips the job to failed.
	MarkFailed(ctx context.Context, id, failure string) (domain.Job, error)
}

type UsageStore interface {
	RecordUsage(ctx context.Context, usage domain.UsageLog) error
}
