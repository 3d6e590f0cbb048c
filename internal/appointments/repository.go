// Package appointments provides appointment and business data access plus
// the notification hooks fired on appointment lifecycle events.
package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/slotwave/slotwave/internal/domain"
)

// Repository errors.
var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrBusinessNotFound    = errors.New("business not found")
)

// Repository defines the interface for appointment and business data access.
type Repository interface {
	CreateAppointment(ctx context.Context, apt *domain.Appointment) error
	GetAppointment(ctx context.Context, id string) (*domain.Appointment, error)

	// ListPendingAppointments returns all appointments with status pending,
	// the set swept by the reminder scheduler.
	ListPendingAppointments(ctx context.Context) ([]*domain.Appointment, error)

	// SetReminderSent sets the per-window sent flag and timestamp. The flag
	// is write-once; implementations never clear it.
	SetReminderSent(ctx context.Context, appointmentID string, window domain.ReminderWindow, sentAt time.Time) error

	UpdateStatus(ctx context.Context, appointmentID string, status domain.AppointmentStatus) error

	CreateBusiness(ctx context.Context, business *domain.Business) error
	GetBusiness(ctx context.Context, id string) (*domain.Business, error)
}
