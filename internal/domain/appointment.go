package domain

import (
	"fmt"
	"time"
)

// AppointmentStatus represents the lifecycle status of an appointment.
type AppointmentStatus string

// Appointment statuses.
const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusAccepted  AppointmentStatus = "accepted"
	AppointmentStatusRejected  AppointmentStatus = "rejected"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

// Appointment represents a booked time slot at a business.
//
// Date and StartTime are stored separately ("2006-01-02" and "15:04") and are
// combined into a wall-clock timestamp on demand; there is no single combined
// timestamp column.
type Appointment struct {
	ID         string
	BusinessID string
	ServiceID  string

	// ServiceName is snapshotted at booking time so notifications do not
	// depend on later service renames.
	ServiceName string

	// CustomerID is empty for unregistered customers; the contact snapshot
	// below is always populated.
	CustomerID    string
	CustomerName  string
	CustomerEmail string

	Date      string
	StartTime string

	Status AppointmentStatus

	Reminder24hSent   bool
	Reminder24hSentAt *time.Time
	Reminder1hSent    bool
	Reminder1hSentAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartAt combines the stored date and time-of-day into a timestamp in the
// given location.
func (a *Appointment) StartAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", a.Date+" "+a.StartTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse appointment start %q %q: %w", a.Date, a.StartTime, err)
	}
	return t, nil
}

// ReminderSent reports whether the reminder of the given window class was
// already dispatched for this appointment.
func (a *Appointment) ReminderSent(window ReminderWindow) bool {
	switch window {
	case ReminderWindow24h:
		return a.Reminder24hSent
	case ReminderWindow1h:
		return a.Reminder1hSent
	}
	return false
}

// ReminderWindow identifies a reminder class relative to the appointment time.
type ReminderWindow string

// Reminder windows.
const (
	ReminderWindow24h ReminderWindow = "24h"
	ReminderWindow1h  ReminderWindow = "1h"
)
