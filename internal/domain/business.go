package domain

import "time"

// Business represents a bookable business with its notification settings.
type Business struct {
	ID           string
	Name         string
	OwnerUserID  string
	ContactEmail string

	// Reminder enablement. RemindersEnabled gates both windows; the
	// per-window flags narrow it further.
	RemindersEnabled   bool
	Reminder24hEnabled bool
	Reminder1hEnabled  bool

	// Outgoing identity override. When FromAddress is set, reminder emails
	// are sent with this sender instead of the platform default.
	FromName    string
	FromAddress string

	// Timezone is the IANA zone appointments at this business are booked in.
	Timezone string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location resolves the business timezone, falling back to the system
// location when unset or invalid.
func (b *Business) Location() *time.Location {
	if b.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
