package appointments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slotwave/slotwave/internal/domain"
	"github.com/slotwave/slotwave/internal/notifications"
	"github.com/slotwave/slotwave/internal/pkg/clock"
)

// ratingRequestDelay is how long after completion the rating request goes
// out.
const ratingRequestDelay = time.Hour

// Notifier enqueues notification jobs for appointment lifecycle events.
//
// It is fire-and-forget: enqueue failures are logged and swallowed so a
// notification problem never fails the appointment operation that triggered
// it.
type Notifier struct {
	queue         *notifications.Service
	clock         clock.Clock
	ratingBaseURL string
}

// NewNotifier creates a new lifecycle notifier.
func NewNotifier(queue *notifications.Service, clk clock.Clock, ratingBaseURL string) *Notifier {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Notifier{
		queue:         queue,
		clock:         clk,
		ratingBaseURL: ratingBaseURL,
	}
}

// AppointmentCreated enqueues the booking confirmation for the customer, an
// alert for the business contact, and queue-backed reminders for slots far
// enough in the future.
func (n *Notifier) AppointmentCreated(ctx context.Context, apt *domain.Appointment, business *domain.Business) {
	vars := n.buildVars(apt, business)

	n.enqueue(ctx, notifications.EnqueueInput{
		Kind:           notifications.KindBookingConfirmation,
		RecipientEmail: apt.CustomerEmail,
		RecipientName:  apt.CustomerName,
		Vars:           vars,
		AppointmentID:  apt.ID,
		BusinessID:     business.ID,
		CustomerID:     apt.CustomerID,
	})

	if business.ContactEmail != "" {
		n.enqueue(ctx, notifications.EnqueueInput{
			Kind:           notifications.KindNewBookingAlert,
			RecipientEmail: business.ContactEmail,
			RecipientName:  business.Name,
			Vars:           vars,
			AppointmentID:  apt.ID,
			BusinessID:     business.ID,
		})
	}

	n.scheduleReminders(ctx, apt, business, vars)
}

// StatusChanged enqueues a status update for the customer and, on
// completion, a delayed rating request.
func (n *Notifier) StatusChanged(ctx context.Context, apt *domain.Appointment, business *domain.Business, status domain.AppointmentStatus) {
	vars := n.buildVars(apt, business)
	vars["Status"] = string(status)

	n.enqueue(ctx, notifications.EnqueueInput{
		Kind:           notifications.KindStatusUpdate,
		RecipientEmail: apt.CustomerEmail,
		RecipientName:  apt.CustomerName,
		Vars:           vars,
		AppointmentID:  apt.ID,
		BusinessID:     business.ID,
		CustomerID:     apt.CustomerID,
	})

	if status == domain.AppointmentStatusCompleted {
		n.enqueue(ctx, notifications.EnqueueInput{
			Kind:           notifications.KindRatingRequest,
			RecipientEmail: apt.CustomerEmail,
			RecipientName:  apt.CustomerName,
			Vars:           vars,
			AppointmentID:  apt.ID,
			BusinessID:     business.ID,
			CustomerID:     apt.CustomerID,
			Delay:          ratingRequestDelay,
		})
	}
}

// scheduleReminders enqueues queue-backed reminder jobs for the 24h and 1h
// marks. A reminder whose computed delay is not positive (the slot is closer
// than the window, or already past) is skipped entirely: no job is created
// for it.
func (n *Notifier) scheduleReminders(ctx context.Context, apt *domain.Appointment, business *domain.Business, vars notifications.Vars) {
	startAt, err := apt.StartAt(business.Location())
	if err != nil {
		slog.Warn("skipping reminder scheduling, unparsable start",
			"appointment_id", apt.ID,
			"error", err,
		)
		return
	}

	now := n.clock.Now()
	windows := []struct {
		kind   notifications.JobKind
		before time.Duration
	}{
		{notifications.KindReminder24h, 24 * time.Hour},
		{notifications.KindReminder1h, time.Hour},
	}

	for _, w := range windows {
		delay := startAt.Add(-w.before).Sub(now)
		if delay <= 0 {
			slog.Debug("skipping reminder, window already passed",
				"appointment_id", apt.ID,
				"kind", w.kind,
			)
			continue
		}

		n.enqueue(ctx, notifications.EnqueueInput{
			Kind:           w.kind,
			RecipientEmail: apt.CustomerEmail,
			RecipientName:  apt.CustomerName,
			Vars:           vars,
			AppointmentID:  apt.ID,
			BusinessID:     business.ID,
			CustomerID:     apt.CustomerID,
			Delay:          delay,
		})
	}
}

func (n *Notifier) enqueue(ctx context.Context, input notifications.EnqueueInput) {
	if _, err := n.queue.Enqueue(ctx, input); err != nil {
		slog.Error("failed to enqueue notification",
			"kind", input.Kind,
			"appointment_id", input.AppointmentID,
			"error", err,
		)
	}
}

func (n *Notifier) buildVars(apt *domain.Appointment, business *domain.Business) notifications.Vars {
	vars := notifications.Vars{
		"CustomerName":  apt.CustomerName,
		"CustomerEmail": apt.CustomerEmail,
		"BusinessName":  business.Name,
		"ServiceName":   apt.ServiceName,
		"Date":          apt.Date,
		"Time":          apt.StartTime,
	}
	if n.ratingBaseURL != "" {
		vars["RatingURL"] = fmt.Sprintf("%s/appointments/%s/rate", n.ratingBaseURL, apt.ID)
	}
	return vars
}
