package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/slotwave/slotwave/internal/pkg/clock"
)

// retryDelay is the fixed backoff applied when a delivery attempt fails and
// retry budget remains. No exponential growth, no jitter.
const retryDelay = 5 * time.Minute

// EnqueueInput contains the data needed to create a notification job.
type EnqueueInput struct {
	Kind           JobKind
	RecipientEmail string
	RecipientName  string
	Vars           Vars

	// Optional correlation references.
	AppointmentID string
	BusinessID    string
	CustomerID    string

	// Delay before the job becomes eligible for delivery. Zero means
	// immediately eligible.
	Delay time.Duration
}

// Service is the sole authority over notification job creation and state
// transitions. Other components read and transition jobs only through it.
type Service struct {
	repo     Repository
	renderer *Renderer
	clock    clock.Clock
}

// NewService creates a new queue service.
func NewService(repo Repository, renderer *Renderer, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Service{
		repo:     repo,
		renderer: renderer,
		clock:    clk,
	}
}

// Enqueue renders the notification content and persists a new pending job.
// Content is snapshotted now; later template or record changes do not affect
// the queued job. No email is sent synchronously.
func (s *Service) Enqueue(ctx context.Context, input EnqueueInput) (*Job, error) {
	subject, body, err := s.renderer.Render(input.Kind, input.Vars)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	job := &Job{
		ID:             uuid.New().String(),
		Kind:           input.Kind,
		RecipientEmail: input.RecipientEmail,
		RecipientName:  input.RecipientName,
		AppointmentID:  input.AppointmentID,
		BusinessID:     input.BusinessID,
		CustomerID:     input.CustomerID,
		Subject:        subject,
		Body:           body,
		Status:         JobStatusPending,
		RetryCount:     0,
		MaxRetries:     DefaultMaxRetries,
		ScheduledFor:   now.Add(input.Delay),
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	slog.Debug("notification enqueued",
		"job_id", job.ID,
		"kind", job.Kind,
		"scheduled_for", job.ScheduledFor,
	)
	recordJobEnqueued(string(job.Kind))

	return job, nil
}

// FetchDue returns up to limit due jobs, oldest first. Read-only; it does not
// claim jobs, which is safe under the single-consumer deployment assumption.
func (s *Service) FetchDue(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.FetchDue(ctx, s.clock.Now(), limit)
}

// MarkAsSent transitions a job from pending to sent. Calling it again for an
// already-sent job is a no-op.
func (s *Service) MarkAsSent(ctx context.Context, jobID string) error {
	return s.repo.MarkSent(ctx, jobID, s.clock.Now())
}

// MarkAsFailed records a failed delivery attempt. While the retry budget
// lasts, the job stays pending with a fixed 5-minute delay; the attempt that
// exhausts the budget makes the job terminally failed.
func (s *Service) MarkAsFailed(ctx context.Context, jobID string, reason string) error {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	retryCount := job.RetryCount + 1

	if retryCount >= job.MaxRetries {
		if err := s.repo.MarkFailed(ctx, jobID, retryCount, reason); err != nil {
			return fmt.Errorf("mark failed: %w", err)
		}
		slog.Warn("notification job exhausted retries",
			"job_id", jobID,
			"kind", job.Kind,
			"retry_count", retryCount,
			"reason", reason,
		)
		return nil
	}

	scheduledFor := s.clock.Now().Add(retryDelay)
	if err := s.repo.ScheduleRetry(ctx, jobID, retryCount, scheduledFor, reason); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}

	slog.Info("notification job scheduled for retry",
		"job_id", jobID,
		"retry_count", retryCount,
		"next_attempt", scheduledFor,
	)
	return nil
}

// Stats returns job counts by status. Side-effect free.
func (s *Service) Stats(ctx context.Context) (*QueueStats, error) {
	return s.repo.QueueStats(ctx)
}

// ListFailed returns terminally failed jobs for operator inspection.
func (s *Service) ListFailed(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListFailed(ctx, limit)
}

// RetryFailed is the operator re-drive path: it resets a terminally failed
// job to pending with a fresh retry budget. The pipeline itself never calls
// this.
func (s *Service) RetryFailed(ctx context.Context, jobID string) error {
	return s.repo.ResetFailed(ctx, jobID, s.clock.Now())
}
