// Package notifications implements the asynchronous notification pipeline:
// a durable job queue, a polling delivery worker, and a reminder scheduler.
package notifications

import (
	"context"
	"time"
)

// Repository defines the interface for notification job persistence.
//
// All state transition decisions live in Service; the repository only
// executes them.
type Repository interface {
	// CreateJob persists a new job and fills in CreatedAt/UpdatedAt.
	CreateJob(ctx context.Context, job *Job) error

	// GetJob returns a job by id or ErrJobNotFound.
	GetJob(ctx context.Context, id string) (*Job, error)

	// FetchDue returns up to limit pending jobs with scheduled_for <= now
	// and retry budget remaining, oldest first. Read-only.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*Job, error)

	// MarkSent transitions a job to sent. Repeated calls keep the original
	// sent_at. Returns ErrJobNotFound for unknown ids.
	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	// ScheduleRetry keeps a job pending with an updated retry count, a new
	// scheduled time, and the latest failure reason.
	ScheduleRetry(ctx context.Context, id string, retryCount int, scheduledFor time.Time, reason string) error

	// MarkFailed transitions a job to terminally failed.
	MarkFailed(ctx context.Context, id string, retryCount int, reason string) error

	// QueueStats returns job counts by status.
	QueueStats(ctx context.Context) (*QueueStats, error)

	// ListFailed returns up to limit terminally failed jobs, newest first.
	ListFailed(ctx context.Context, limit int) ([]*Job, error)

	// ResetFailed moves a failed job back to pending with a zeroed retry
	// count, scheduled at the given time. Returns ErrJobNotFound for
	// unknown ids and ErrJobNotFailed when the job is not failed.
	ResetFailed(ctx context.Context, id string, scheduledFor time.Time) error
}
