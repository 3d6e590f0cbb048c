// Package postgres provides the PostgreSQL implementation of the
// appointments repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/slotwave/slotwave/internal/appointments"
	"github.com/slotwave/slotwave/internal/domain"
)

// Repository implements appointments.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const appointmentColumns = `
	id, business_id, service_id, service_name,
	COALESCE(customer_id::text, ''), customer_name, customer_email,
	date, start_time, status,
	reminder_24h_sent, reminder_24h_sent_at, reminder_1h_sent, reminder_1h_sent_at,
	created_at, updated_at
`

// CreateAppointment persists a new appointment.
func (r *Repository) CreateAppointment(ctx context.Context, apt *domain.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, business_id, service_id, service_name,
			customer_id, customer_name, customer_email,
			date, start_time, status
		)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		apt.ID,
		apt.BusinessID,
		apt.ServiceID,
		apt.ServiceName,
		apt.CustomerID,
		apt.CustomerName,
		apt.CustomerEmail,
		apt.Date,
		apt.StartTime,
		apt.Status,
	).Scan(&apt.CreatedAt, &apt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// GetAppointment retrieves an appointment by ID.
func (r *Repository) GetAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	apt, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appointments.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return apt, nil
}

// ListPendingAppointments returns all pending appointments for the reminder
// sweep.
func (r *Repository) ListPendingAppointments(ctx context.Context) ([]*domain.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE status = 'pending' ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending appointments: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Appointment, 0)
	for rows.Next() {
		apt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		result = append(result, apt)
	}
	return result, rows.Err()
}

// SetReminderSent sets the sent flag for a reminder window. Write-once: a
// flag already set keeps its original timestamp.
func (r *Repository) SetReminderSent(ctx context.Context, appointmentID string, window domain.ReminderWindow, sentAt time.Time) error {
	var query string
	switch window {
	case domain.ReminderWindow24h:
		query = `
			UPDATE appointments
			SET reminder_24h_sent = TRUE,
			    reminder_24h_sent_at = COALESCE(reminder_24h_sent_at, $2),
			    updated_at = NOW()
			WHERE id = $1
		`
	case domain.ReminderWindow1h:
		query = `
			UPDATE appointments
			SET reminder_1h_sent = TRUE,
			    reminder_1h_sent_at = COALESCE(reminder_1h_sent_at, $2),
			    updated_at = NOW()
			WHERE id = $1
		`
	default:
		return fmt.Errorf("unknown reminder window: %s", window)
	}

	result, err := r.db.Exec(ctx, query, appointmentID, sentAt)
	if err != nil {
		return fmt.Errorf("set reminder sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return appointments.ErrAppointmentNotFound
	}
	return nil
}

// UpdateStatus changes an appointment's status.
func (r *Repository) UpdateStatus(ctx context.Context, appointmentID string, status domain.AppointmentStatus) error {
	query := `UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Exec(ctx, query, appointmentID, status)
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return appointments.ErrAppointmentNotFound
	}
	return nil
}

// CreateBusiness persists a new business.
func (r *Repository) CreateBusiness(ctx context.Context, business *domain.Business) error {
	query := `
		INSERT INTO businesses (
			id, name, owner_user_id, contact_email,
			reminders_enabled, reminder_24h_enabled, reminder_1h_enabled,
			from_name, from_address, timezone
		)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		business.ID,
		business.Name,
		business.OwnerUserID,
		business.ContactEmail,
		business.RemindersEnabled,
		business.Reminder24hEnabled,
		business.Reminder1hEnabled,
		business.FromName,
		business.FromAddress,
		business.Timezone,
	).Scan(&business.CreatedAt, &business.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert business: %w", err)
	}
	return nil
}

// GetBusiness retrieves a business by ID.
func (r *Repository) GetBusiness(ctx context.Context, id string) (*domain.Business, error) {
	query := `
		SELECT id, name, COALESCE(owner_user_id::text, ''), contact_email,
		       reminders_enabled, reminder_24h_enabled, reminder_1h_enabled,
		       from_name, from_address, timezone, created_at, updated_at
		FROM businesses
		WHERE id = $1
	`
	var business domain.Business
	err := r.db.QueryRow(ctx, query, id).Scan(
		&business.ID,
		&business.Name,
		&business.OwnerUserID,
		&business.ContactEmail,
		&business.RemindersEnabled,
		&business.Reminder24hEnabled,
		&business.Reminder1hEnabled,
		&business.FromName,
		&business.FromAddress,
		&business.Timezone,
		&business.CreatedAt,
		&business.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appointments.ErrBusinessNotFound
		}
		return nil, fmt.Errorf("get business: %w", err)
	}
	return &business, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*domain.Appointment, error) {
	var apt domain.Appointment
	err := row.Scan(
		&apt.ID,
		&apt.BusinessID,
		&apt.ServiceID,
		&apt.ServiceName,
		&apt.CustomerID,
		&apt.CustomerName,
		&apt.CustomerEmail,
		&apt.Date,
		&apt.StartTime,
		&apt.Status,
		&apt.Reminder24hSent,
		&apt.Reminder24hSentAt,
		&apt.Reminder1hSent,
		&apt.Reminder1hSentAt,
		&apt.CreatedAt,
		&apt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &apt, nil
}
