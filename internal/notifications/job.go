package notifications

import "time"

// JobStatus represents the delivery status of a notification job.
type JobStatus string

// Job statuses. Transitions are monotonic: pending moves to sent or, once the
// retry budget is exhausted, to failed. Failed and sent are terminal.
const (
	JobStatusPending JobStatus = "pending"
	JobStatusSent    JobStatus = "sent"
	JobStatusFailed  JobStatus = "failed"
)

// JobKind identifies the notification template a job was rendered from.
type JobKind string

// Job kinds.
const (
	KindBookingConfirmation JobKind = "booking_confirmation"
	KindReminder24h         JobKind = "reminder_24h"
	KindReminder1h          JobKind = "reminder_1h"
	KindStatusUpdate        JobKind = "status_update"
	KindRatingRequest       JobKind = "rating_request"
	KindNewBookingAlert     JobKind = "new_booking_alert"
)

// DefaultMaxRetries is the retry budget assigned to every job at creation.
const DefaultMaxRetries = 3

// Job represents a queued email notification.
//
// Subject and Body are snapshots rendered at enqueue time; later changes to
// templates or underlying records do not affect already-queued jobs. Jobs are
// never deleted by the pipeline and remain as an audit trail.
type Job struct {
	ID             string
	Kind           JobKind
	RecipientEmail string
	RecipientName  string

	// Correlation references. CustomerID is empty for unregistered
	// customers.
	AppointmentID string
	BusinessID    string
	CustomerID    string

	Subject string
	Body    string

	Status        JobStatus
	RetryCount    int
	MaxRetries    int
	ScheduledFor  time.Time
	SentAt        *time.Time
	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// QueueStats contains job counts by status.
type QueueStats struct {
	Pending int
	Sent    int
	Failed  int
}
