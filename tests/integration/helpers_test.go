//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	appointmentspostgres "github.com/slotwave/slotwave/internal/appointments/postgres"
	"github.com/slotwave/slotwave/internal/domain"
	"github.com/stretchr/testify/require"
)

// createTestBusiness seeds a business with all reminder windows enabled.
func createTestBusiness(t *testing.T, name string) *domain.Business {
	t.Helper()

	repo := appointmentspostgres.NewRepository(testDB)
	business := &domain.Business{
		ID:                 uuid.New().String(),
		Name:               name,
		ContactEmail:       "owner@" + uuid.New().String()[:8] + ".example.com",
		RemindersEnabled:   true,
		Reminder24hEnabled: true,
		Reminder1hEnabled:  true,
		Timezone:           "UTC",
	}
	require.NoError(t, repo.CreateBusiness(context.Background(), business))

	t.Cleanup(func() {
		_, err := testDB.Exec(context.Background(), `DELETE FROM businesses WHERE id = $1`, business.ID)
		require.NoError(t, err)
	})
	return business
}

// createTestAppointment seeds a pending appointment starting at the given
// time, with a unique customer address so Mailpit assertions cannot collide
// across tests.
func createTestAppointment(t *testing.T, business *domain.Business, startAt time.Time) *domain.Appointment {
	t.Helper()

	repo := appointmentspostgres.NewRepository(testDB)
	apt := &domain.Appointment{
		ID:            uuid.New().String(),
		BusinessID:    business.ID,
		ServiceID:     uuid.New().String(),
		ServiceName:   "Haircut",
		CustomerName:  "Alice",
		CustomerEmail: "customer-" + uuid.New().String()[:8] + "@example.com",
		Date:          startAt.Format("2006-01-02"),
		StartTime:     startAt.Format("15:04"),
		Status:        domain.AppointmentStatusPending,
	}
	require.NoError(t, repo.CreateAppointment(context.Background(), apt))

	t.Cleanup(func() {
		_, err := testDB.Exec(context.Background(), `DELETE FROM appointments WHERE id = $1`, apt.ID)
		require.NoError(t, err)
	})
	return apt
}

// cleanupJobs removes all notification jobs so queue assertions start from a
// known state.
func cleanupJobs(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `DELETE FROM notification_jobs`)
	require.NoError(t, err)
}
