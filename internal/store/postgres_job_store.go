package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mwalcott/qrforge/internal/domain"
	_ "github.com/lib/pq"
)

const jobSchemaSQL = `
CREATE TABLE IF NOT EXISTS qr_jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	text TEXT NOT NULL,
	version INTEGER NOT NULL,
	level TEXT NOT NULL,
	colorized BOOLEAN NOT NULL,
	contrast DOUBLE PRECISION NOT NULL,
	brightness DOUBLE PRECISION NOT NULL,
	upload_key TEXT NOT NULL DEFAULT '',
	upload_filename TEXT NOT NULL DEFAULT '',
	webhook_url TEXT NOT NULL DEFAULT '',
	output_key TEXT NOT NULL DEFAULT '',
	output_kind TEXT NOT NULL DEFAULT '',
	failure TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS qr_usage (
	id BIGSERIAL PRIMARY KEY,
	job_id TEXT NOT NULL REFERENCES qr_jobs(id),
	frames_emitted BIGINT NOT NULL,
	output_bytes BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(ctx context.Context, dsn string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresJobStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresJobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, jobSchemaSQL); err != nil {
		return fmt.Errorf("ensure job schema: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

func (s *PostgresJobStore) Create(ctx context.Context, job domain.Job) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO qr_jobs (id, status, text, version, level, colorized, contrast, brightness,
		                      upload_key, upload_filename, webhook_url, output_key, output_kind, failure,
		                      created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		job.ID,
		job.Status,
		job.Text,
		job.Version,
		job.Level,
		job.Colorized,
		job.Contrast,
		job.Brightness,
		job.UploadKey,
		job.UploadFilename,
		job.WebhookURL,
		job.OutputKey,
		job.OutputKind,
		job.Failure,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (domain.Job, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, text, version, level, colorized, contrast, brightness,
		        upload_key, upload_filename, webhook_url, output_key, output_kind, failure,
		        created_at, updated_at
		 FROM qr_jobs
		 WHERE id = $1`,
		id,
	)

	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.Status,
		&job.Text,
		&job.Version,
		&job.Level,
		&job.Colorized,
		&job.Contrast,
		&job.Brightness,
		&job.UploadKey,
		&job.UploadFilename,
		&job.WebhookURL,
		&job.OutputKey,
		&job.OutputKind,
		&job.Failure,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Job{}, false, nil
		}
		return domain.Job{}, false, fmt.Errorf("query job: %w", err)
	}

	return job, true, nil
}

func (s *PostgresJobStore) UpdateStatus(ctx context.Context, id, status string) (domain.Job, error) {
	return s.update(ctx, id,
		`UPDATE qr_jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
}

func (s *PostgresJobStore) MarkSucceeded(ctx context.Context, id, outputKey, outputKind string) (domain.Job, error) {
	return s.update(ctx, id,
		`UPDATE qr_jobs
		 SET status = $1, output_key = $2, output_kind = $3, failure = '', updated_at = $4
		 WHERE id = $5`,
		domain.JobStatusSucceeded, outputKey, outputKind, time.Now().UTC(), id,
	)
}

func (s *PostgresJobStore) MarkFailed(ctx context.Context, id, failure string) (domain.Job, error) {
	return s.update(ctx, id,
		`UPDATE qr_jobs
		 SET status = $1, failure = $2, updated_at = $3
		 WHERE id = $4`,
		domain.JobStatusFailed, failure, time.Now().UTC(), id,
	)
}

func (s *PostgresJobStore) RecordUsage(ctx context.Context, usage domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO qr_usage (job_id, frames_emitted, output_bytes, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		usage.JobID,
		usage.FramesEmitted,
		usage.OutputBytes,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) update(ctx context.Context, id, query string, args ...any) (domain.Job, error) {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Job{}, fmt.Errorf("update job: %w", err)
	}

	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}

	return job, nil
}
