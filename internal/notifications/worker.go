package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/slotwave/slotwave/internal/domain"
)

// WorkerConfig contains delivery worker configuration.
type WorkerConfig struct {
	BatchSize    int
	PollInterval time.Duration

	// SendTimeout bounds each transport call so a hung SMTP connection
	// cannot stall the pipeline indefinitely. Timeouts feed the normal
	// retry path as transient failures.
	SendTimeout time.Duration
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:    10,
		PollInterval: time.Minute,
		SendTimeout:  30 * time.Second,
	}
}

// AppointmentLedger reads and writes the per-window reminder flags shared
// with the reminder sweep. The worker consults it before delivering a
// reminder job and records the flag after, so a window fired on either path
// suppresses the other.
type AppointmentLedger interface {
	GetAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	SetReminderSent(ctx context.Context, appointmentID string, window domain.ReminderWindow, sentAt time.Time) error
}

// Worker drains due jobs from the queue and drives them through the mail
// transport. A single instance is assumed; running several workers against
// the same store can double-send.
type Worker struct {
	config       WorkerConfig
	queue        *Service
	transport    Transport
	businesses   BusinessDirectory
	appointments AppointmentLedger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a new delivery worker.
func NewWorker(config WorkerConfig, queue *Service, transport Transport, businesses BusinessDirectory, appointments AppointmentLedger) *Worker {
	return &Worker{
		config:       config,
		queue:        queue,
		transport:    transport,
		businesses:   businesses,
		appointments: appointments,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the polling loop.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting delivery worker",
		"batch_size", w.config.BatchSize,
		"poll_interval", w.config.PollInterval,
	)

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop gracefully stops the worker, waiting for the current tick to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	slog.Info("delivery worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one drain cycle. Errors never escape: a broken tick must not
// kill the recurring timer.
func (w *Worker) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("delivery worker tick panicked", "panic", r)
		}
	}()

	stats, err := w.queue.Stats(ctx)
	if err != nil {
		slog.Error("failed to get queue stats", "error", err)
		return
	}
	RecordQueueStats(stats)

	// Nothing pending: skip the fetch round-trip entirely.
	if stats.Pending == 0 {
		return
	}

	jobs, err := w.queue.FetchDue(ctx, w.config.BatchSize)
	if err != nil {
		slog.Error("failed to fetch due jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	slog.Debug("processing notification batch", "count", len(jobs))
	recordBatchFetched(len(jobs))

	for _, job := range jobs {
		w.deliver(ctx, job)
	}
}

// deliver attempts one job. Transport failures are converted into retry
// bookkeeping and never abort the rest of the batch.
func (w *Worker) deliver(ctx context.Context, job *Job) {
	start := time.Now()

	window, isReminder := reminderWindowFor(job.Kind)
	if isReminder && job.AppointmentID != "" {
		if apt, err := w.appointments.GetAppointment(ctx, job.AppointmentID); err == nil && apt.ReminderSent(window) {
			// The reminder sweep already covered this window; settle the
			// job without a second email.
			if err := w.queue.MarkAsSent(ctx, job.ID); err != nil {
				slog.Error("failed to mark job as sent", "job_id", job.ID, "error", err)
			}
			recordJobDelivered(string(job.Kind), "deduplicated")
			slog.Debug("reminder already sent, settling job",
				"job_id", job.ID,
				"appointment_id", job.AppointmentID,
				"window", window,
			)
			return
		}
	}

	msg := Message{
		To:      job.RecipientEmail,
		ToName:  job.RecipientName,
		Subject: job.Subject,
		Body:    job.Body,
	}

	if job.BusinessID != "" {
		if business, err := w.businesses.GetBusiness(ctx, job.BusinessID); err == nil {
			msg.ReplyTo = business.ContactEmail
		} else {
			slog.Debug("business lookup failed, sending without reply-to",
				"job_id", job.ID,
				"business_id", job.BusinessID,
				"error", err,
			)
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.config.SendTimeout)
	err := w.transport.Send(sendCtx, msg)
	cancel()

	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.New("transport send timed out")
		}
		slog.Warn("delivery failed",
			"job_id", job.ID,
			"kind", job.Kind,
			"attempt", job.RetryCount+1,
			"max_retries", job.MaxRetries,
			"error", err,
		)
		if markErr := w.queue.MarkAsFailed(ctx, job.ID, err.Error()); markErr != nil {
			slog.Error("failed to mark job as failed", "job_id", job.ID, "error", markErr)
		}
		recordJobDelivered(string(job.Kind), "failed")
		return
	}

	if err := w.queue.MarkAsSent(ctx, job.ID); err != nil {
		slog.Error("failed to mark job as sent", "job_id", job.ID, "error", err)
	}

	if isReminder && job.AppointmentID != "" {
		// Record the window on the appointment so the reminder sweep does
		// not send it again.
		if err := w.appointments.SetReminderSent(ctx, job.AppointmentID, window, time.Now()); err != nil {
			slog.Error("failed to persist reminder flag",
				"job_id", job.ID,
				"appointment_id", job.AppointmentID,
				"window", window,
				"error", err,
			)
		}
	}

	recordJobDelivered(string(job.Kind), "sent")
	recordSendDuration(string(job.Kind), duration)

	slog.Debug("notification delivered",
		"job_id", job.ID,
		"kind", job.Kind,
		"duration", duration,
	)
}

// reminderWindowFor maps reminder job kinds to their appointment window.
func reminderWindowFor(kind JobKind) (domain.ReminderWindow, bool) {
	switch kind {
	case KindReminder24h:
		return domain.ReminderWindow24h, true
	case KindReminder1h:
		return domain.ReminderWindow1h, true
	default:
		return "", false
	}
}
