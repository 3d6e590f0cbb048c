// Package postgres provides the PostgreSQL implementation of the
// notification job repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/slotwave/slotwave/internal/notifications"
)

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const jobColumns = `
	id, kind, recipient_email, recipient_name,
	COALESCE(appointment_id::text, ''), COALESCE(business_id::text, ''), COALESCE(customer_id::text, ''),
	subject, body, status, retry_count, max_retries,
	scheduled_for, sent_at, failure_reason, created_at, updated_at
`

// CreateJob persists a new notification job.
func (r *Repository) CreateJob(ctx context.Context, job *notifications.Job) error {
	query := `
		INSERT INTO notification_jobs (
			id, kind, recipient_email, recipient_name,
			appointment_id, business_id, customer_id,
			subject, body, status, retry_count, max_retries, scheduled_for
		)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, NULLIF($6, '')::uuid, NULLIF($7, '')::uuid, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		job.ID,
		job.Kind,
		job.RecipientEmail,
		job.RecipientName,
		job.AppointmentID,
		job.BusinessID,
		job.CustomerID,
		job.Subject,
		job.Body,
		job.Status,
		job.RetryCount,
		job.MaxRetries,
		job.ScheduledFor,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a notification job by ID.
func (r *Repository) GetJob(ctx context.Context, id string) (*notifications.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM notification_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FetchDue returns due pending jobs with retry budget remaining, oldest
// first. Read-only; jobs are not claimed.
func (r *Repository) FetchDue(ctx context.Context, now time.Time, limit int) ([]*notifications.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM notification_jobs
		WHERE status = 'pending' AND scheduled_for <= $1 AND retry_count < max_retries
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// MarkSent transitions a job to sent. Repeat calls keep the first sent_at.
// Failed jobs are never flipped to sent; they go through the operator reset
// first.
func (r *Repository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	query := `
		UPDATE notification_jobs
		SET status = 'sent', sent_at = COALESCE(sent_at, $2), updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'sent')
	`
	result, err := r.db.Exec(ctx, query, id, sentAt)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		var status string
		err := r.db.QueryRow(ctx, `SELECT status FROM notification_jobs WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return notifications.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		return notifications.ErrJobNotPending
	}
	return nil
}

// ScheduleRetry keeps a job pending with updated retry bookkeeping.
func (r *Repository) ScheduleRetry(ctx context.Context, id string, retryCount int, scheduledFor time.Time, reason string) error {
	query := `
		UPDATE notification_jobs
		SET retry_count = $2, scheduled_for = $3, failure_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.Exec(ctx, query, id, retryCount, scheduledFor, reason)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notifications.ErrJobNotFound
	}
	return nil
}

// MarkFailed transitions a job to terminally failed.
func (r *Repository) MarkFailed(ctx context.Context, id string, retryCount int, reason string) error {
	query := `
		UPDATE notification_jobs
		SET status = 'failed', retry_count = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, retryCount, reason)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notifications.ErrJobNotFound
	}
	return nil
}

// QueueStats returns job counts by status.
func (r *Repository) QueueStats(ctx context.Context) (*notifications.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM notification_jobs
	`
	var stats notifications.QueueStats
	if err := r.db.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Sent, &stats.Failed); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &stats, nil
}

// ListFailed returns terminally failed jobs, newest first.
func (r *Repository) ListFailed(ctx context.Context, limit int) ([]*notifications.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM notification_jobs
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ResetFailed moves a failed job back to pending with a fresh retry budget.
func (r *Repository) ResetFailed(ctx context.Context, id string, scheduledFor time.Time) error {
	query := `
		UPDATE notification_jobs
		SET status = 'pending', retry_count = 0, failure_reason = '', scheduled_for = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'failed'
	`
	result, err := r.db.Exec(ctx, query, id, scheduledFor)
	if err != nil {
		return fmt.Errorf("reset failed job: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Distinguish a missing job from a wrong-status one.
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM notification_jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check job exists: %w", err)
		}
		if !exists {
			return notifications.ErrJobNotFound
		}
		return notifications.ErrJobNotFailed
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*notifications.Job, error) {
	var job notifications.Job
	err := row.Scan(
		&job.ID,
		&job.Kind,
		&job.RecipientEmail,
		&job.RecipientName,
		&job.AppointmentID,
		&job.BusinessID,
		&job.CustomerID,
		&job.Subject,
		&job.Body,
		&job.Status,
		&job.RetryCount,
		&job.MaxRetries,
		&job.ScheduledFor,
		&job.SentAt,
		&job.FailureReason,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*notifications.Job, error) {
	jobs := make([]*notifications.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
