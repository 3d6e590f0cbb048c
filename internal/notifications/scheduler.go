package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/slotwave/slotwave/internal/domain"
	"github.com/slotwave/slotwave/internal/pkg/clock"
)

// Firing bands in minutes until the appointment. Band widths absorb the
// scheduler's own polling interval.
const (
	band24hUpper = 1440
	band24hLower = 1420
	band1hUpper  = 60
	band1hLower  = 50
)

// AppointmentSource provides the appointments swept by the scheduler.
type AppointmentSource interface {
	// ListPendingAppointments returns all appointments with status pending.
	ListPendingAppointments(ctx context.Context) ([]*domain.Appointment, error)

	// SetReminderSent persists the sent flag and timestamp for an
	// appointment and window. Once set the flag is never cleared.
	SetReminderSent(ctx context.Context, appointmentID string, window domain.ReminderWindow, sentAt time.Time) error
}

// SchedulerConfig contains reminder scheduler configuration.
type SchedulerConfig struct {
	PollInterval time.Duration
	SendTimeout  time.Duration

	// DedupTTL bounds the process-local dedup cache. Must exceed the widest
	// firing band.
	DedupTTL time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PollInterval: time.Minute,
		SendTimeout:  30 * time.Second,
		DedupTTL:     2 * time.Hour,
	}
}

// ReminderScheduler periodically sweeps pending appointments and dispatches
// reminders for those entering a firing band. It bypasses the durable queue:
// reminders are fire-near-a-deadline, at-most-once sends, not general retry
// work.
//
// Deduplication is two-layered: the persisted per-appointment flag is
// authoritative and survives restarts; the in-memory cache only saves
// duplicate work within one process's uptime.
type ReminderScheduler struct {
	config       SchedulerConfig
	appointments AppointmentSource
	businesses   BusinessDirectory
	renderer     *Renderer
	transport    Transport
	clock        clock.Clock
	dispatched   *dedupCache

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReminderScheduler creates a new reminder scheduler.
func NewReminderScheduler(
	config SchedulerConfig,
	appointments AppointmentSource,
	businesses BusinessDirectory,
	renderer *Renderer,
	transport Transport,
	clk clock.Clock,
) *ReminderScheduler {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &ReminderScheduler{
		config:       config,
		appointments: appointments,
		businesses:   businesses,
		renderer:     renderer,
		transport:    transport,
		clock:        clk,
		dispatched:   newDedupCache(config.DedupTTL, clk),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *ReminderScheduler) Start(ctx context.Context) {
	slog.Info("starting reminder scheduler",
		"poll_interval", s.config.PollInterval,
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop gracefully stops the scheduler.
func (s *ReminderScheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("reminder scheduler stopped")
}

func (s *ReminderScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep. Errors never escape so a broken sweep cannot kill the
// recurring timer, and one appointment's failure never stops the rest of the
// sweep.
func (s *ReminderScheduler) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("reminder scheduler tick panicked", "panic", r)
		}
	}()

	appointments, err := s.appointments.ListPendingAppointments(ctx)
	if err != nil {
		slog.Error("failed to list pending appointments", "error", err)
		return
	}

	for _, apt := range appointments {
		s.evaluate(ctx, apt)
	}
}

func (s *ReminderScheduler) evaluate(ctx context.Context, apt *domain.Appointment) {
	business, err := s.businesses.GetBusiness(ctx, apt.BusinessID)
	if err != nil {
		slog.Debug("skipping appointment, business lookup failed",
			"appointment_id", apt.ID,
			"business_id", apt.BusinessID,
			"error", err,
		)
		return
	}

	if !business.RemindersEnabled {
		return
	}

	startAt, err := apt.StartAt(business.Location())
	if err != nil {
		slog.Warn("skipping appointment with unparsable start",
			"appointment_id", apt.ID,
			"error", err,
		)
		return
	}

	minutesUntil := startAt.Sub(s.clock.Now()).Minutes()

	if business.Reminder24hEnabled && minutesUntil > band24hLower && minutesUntil <= band24hUpper {
		s.dispatch(ctx, apt, business, domain.ReminderWindow24h, minutesUntil)
	}

	if business.Reminder1hEnabled && minutesUntil > band1hLower && minutesUntil <= band1hUpper {
		s.dispatch(ctx, apt, business, domain.ReminderWindow1h, minutesUntil)
	}
}

// dispatch sends one reminder directly through the transport and persists the
// sent flag on success. On failure the flag stays unset: the next tick
// retries naturally while the appointment is still inside the band, and a
// band missed before success means the reminder is silently skipped.
func (s *ReminderScheduler) dispatch(ctx context.Context, apt *domain.Appointment, business *domain.Business, window domain.ReminderWindow, minutesUntil float64) {
	// Persisted flag first: authoritative across restarts.
	if apt.ReminderSent(window) {
		return
	}

	key := dedupKey(apt.ID, window)
	if s.dispatched.Seen(key) {
		return
	}

	kind := KindReminder24h
	if window == domain.ReminderWindow1h {
		kind = KindReminder1h
	}

	subject, body, err := s.renderer.Render(kind, Vars{
		"CustomerName": apt.CustomerName,
		"BusinessName": business.Name,
		"ServiceName":  apt.ServiceName,
		"Date":         apt.Date,
		"Time":         apt.StartTime,
	})
	if err != nil {
		slog.Error("failed to render reminder",
			"appointment_id", apt.ID,
			"window", window,
			"error", err,
		)
		recordReminderDispatched(string(window), "render_error")
		return
	}

	msg := Message{
		To:          apt.CustomerEmail,
		ToName:      apt.CustomerName,
		Subject:     subject,
		Body:        body,
		ReplyTo:     business.ContactEmail,
		FromName:    business.FromName,
		FromAddress: business.FromAddress,
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.config.SendTimeout)
	err = s.transport.Send(sendCtx, msg)
	cancel()

	if err != nil {
		slog.Warn("reminder send failed",
			"appointment_id", apt.ID,
			"window", window,
			"error", err,
		)
		recordReminderDispatched(string(window), "failed")
		return
	}

	sentAt := s.clock.Now()
	if err := s.appointments.SetReminderSent(ctx, apt.ID, window, sentAt); err != nil {
		// The email went out but the flag write failed; the in-memory
		// guard below still prevents a duplicate while this process lives.
		slog.Error("failed to persist reminder flag",
			"appointment_id", apt.ID,
			"window", window,
			"error", err,
		)
	}

	s.dispatched.Mark(key)
	recordReminderDispatched(string(window), "sent")

	slog.Info("reminder dispatched",
		"appointment_id", apt.ID,
		"window", window,
		"minutes_until", int(minutesUntil),
	)
}

func dedupKey(appointmentID string, window domain.ReminderWindow) string {
	return fmt.Sprintf("%s:%s", appointmentID, window)
}
