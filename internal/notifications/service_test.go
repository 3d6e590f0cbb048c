package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/slotwave/slotwave/internal/domain"
	"github.com/slotwave/slotwave/internal/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository is an in-memory Repository for testing.
type mockRepository struct {
	mu   sync.Mutex
	jobs map[string]*Job
	seq  int

	createErr error
	statsErr  error
	fetchErr  error

	fetchCalls int
	statsCalls int
}

func newMockRepository() *mockRepository {
	return &mockRepository{jobs: make(map[string]*Job)}
}

func (m *mockRepository) CreateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.seq++
	// Distinct creation times so ordering is observable.
	job.CreatedAt = time.Date(2026, 1, 1, 0, 0, m.seq, 0, time.UTC)
	job.UpdatedAt = job.CreatedAt
	stored := *job
	m.jobs[job.ID] = &stored
	return nil
}

func (m *mockRepository) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *mockRepository) FetchDue(_ context.Context, now time.Time, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}

	due := make([]*Job, 0)
	for _, job := range m.jobs {
		if job.Status == JobStatusPending && !job.ScheduledFor.After(now) && job.RetryCount < job.MaxRetries {
			copied := *job
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *mockRepository) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status == JobStatusFailed {
		return ErrJobNotPending
	}
	job.Status = JobStatusSent
	if job.SentAt == nil {
		t := sentAt
		job.SentAt = &t
	}
	return nil
}

func (m *mockRepository) ScheduleRetry(_ context.Context, id string, retryCount int, scheduledFor time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != JobStatusPending {
		return ErrJobNotFound
	}
	job.RetryCount = retryCount
	job.ScheduledFor = scheduledFor
	job.FailureReason = reason
	return nil
}

func (m *mockRepository) MarkFailed(_ context.Context, id string, retryCount int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = JobStatusFailed
	job.RetryCount = retryCount
	job.FailureReason = reason
	return nil
}

func (m *mockRepository) QueueStats(_ context.Context) (*QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsCalls++
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	stats := &QueueStats{}
	for _, job := range m.jobs {
		switch job.Status {
		case JobStatusPending:
			stats.Pending++
		case JobStatusSent:
			stats.Sent++
		case JobStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (m *mockRepository) ListFailed(_ context.Context, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	failed := make([]*Job, 0)
	for _, job := range m.jobs {
		if job.Status == JobStatusFailed {
			copied := *job
			failed = append(failed, &copied)
		}
	}
	if len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

func (m *mockRepository) ResetFailed(_ context.Context, id string, scheduledFor time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != JobStatusFailed {
		return ErrJobNotFailed
	}
	job.Status = JobStatusPending
	job.RetryCount = 0
	job.FailureReason = ""
	job.ScheduledFor = scheduledFor
	return nil
}

// mockTransport records sent messages and can be told to fail.
type mockTransport struct {
	mu      sync.Mutex
	sent    []Message
	err     error
	errFor  map[string]error // keyed by recipient address
	blockFn func(ctx context.Context) error
}

func (t *mockTransport) Send(ctx context.Context, msg Message) error {
	if t.blockFn != nil {
		if err := t.blockFn(ctx); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err, ok := t.errFor[msg.To]; ok {
		return err
	}
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *mockTransport) sentMessages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.sent...)
}

// mockBusinessDirectory resolves businesses from a static map.
type mockBusinessDirectory struct {
	businesses map[string]*domain.Business
	err        error
}

func (d *mockBusinessDirectory) GetBusiness(_ context.Context, id string) (*domain.Business, error) {
	if d.err != nil {
		return nil, d.err
	}
	business, ok := d.businesses[id]
	if !ok {
		return nil, errors.New("business not found")
	}
	return business, nil
}

func newTestService(t *testing.T, repo Repository, clk clock.Clock) *Service {
	t.Helper()
	renderer, err := NewRenderer()
	require.NoError(t, err)
	return NewService(repo, renderer, clk)
}

func baseVars() Vars {
	return Vars{
		"CustomerName":  "Alice",
		"CustomerEmail": "alice@example.com",
		"BusinessName":  "Cut & Go",
		"ServiceName":   "Haircut",
		"Date":          "2026-03-10",
		"Time":          "14:30",
		"Status":        "accepted",
		"RatingURL":     "https://slotwave.example.com/appointments/apt-1/rate",
	}
}

func TestService_Enqueue_SnapshotsContent(t *testing.T) {
	repo := newMockRepository()
	clk := clock.NewMockClock(time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC))
	service := newTestService(t, repo, clk)

	job, err := service.Enqueue(context.Background(), EnqueueInput{
		Kind:           KindBookingConfirmation,
		RecipientEmail: "alice@example.com",
		RecipientName:  "Alice",
		Vars:           baseVars(),
		AppointmentID:  "apt-1",
		BusinessID:     "biz-1",
		Delay:          30 * time.Minute,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, DefaultMaxRetries, job.MaxRetries)
	assert.Equal(t, clk.Now().Add(30*time.Minute), job.ScheduledFor)
	assert.Contains(t, job.Subject, "Cut & Go")
	assert.Contains(t, job.Body, "Alice")
	assert.Contains(t, job.Body, "Haircut")

	stored, err := repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Subject, stored.Subject)
	assert.Equal(t, job.Body, stored.Body)
}

func TestService_Enqueue_UnknownKindPersistsNothing(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(t, repo, nil)

	_, err := service.Enqueue(context.Background(), EnqueueInput{
		Kind:           JobKind("carrier_pigeon"),
		RecipientEmail: "alice@example.com",
		Vars:           baseVars(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Empty(t, repo.jobs)
}

func TestService_MarkAsFailed_RetryLadder(t *testing.T) {
	repo := newMockRepository()
	clk := clock.NewMockClock(time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC))
	service := newTestService(t, repo, clk)

	job, err := service.Enqueue(context.Background(), EnqueueInput{
		Kind:           KindStatusUpdate,
		RecipientEmail: "alice@example.com",
		Vars:           baseVars(),
	})
	require.NoError(t, err)

	// First two failures keep the job pending with a 5 minute delay.
	for attempt := 1; attempt <= 2; attempt++ {
		require.NoError(t, service.MarkAsFailed(context.Background(), job.ID, "connection refused"))

		stored, err := repo.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusPending, stored.Status)
		assert.Equal(t, attempt, stored.RetryCount)
		assert.Equal(t, clk.Now().Add(5*time.Minute), stored.ScheduledFor)
		assert.Equal(t, "connection refused", stored.FailureReason)

		clk.Add(6 * time.Minute)
	}

	// The third failure exhausts the budget.
	require.NoError(t, service.MarkAsFailed(context.Background(), job.ID, "connection refused"))

	stored, err := repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)

	// Terminally failed jobs never come back as due.
	due, err := service.FetchDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestService_MarkAsSent_RejectsFailedJob(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(t, repo, nil)

	job, err := service.Enqueue(context.Background(), EnqueueInput{
		Kind:           KindBookingConfirmation,
		RecipientEmail: "alice@example.com",
		Vars:           baseVars(),
	})
	require.NoError(t, err)

	for i := 0; i < DefaultMaxRetries; i++ {
		require.NoError(t, service.MarkAsFailed(context.Background(), job.ID, "550 mailbox rejected"))
	}

	err = service.MarkAsSent(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobNotPending)

	stored, err := repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Nil(t, stored.SentAt)
}

func TestService_MarkAsSent_Idempotent(t *testing.T) {
	repo := newMockRepository()
	clk := clock.NewMockClock(time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC))
	service := newTestService(t, repo, clk)

	job, err := service.Enqueue(context.Background(), EnqueueInput{
		Kind:           KindBookingConfirmation,
		RecipientEmail: "alice@example.com",
		Vars:           baseVars(),
	})
	require.NoError(t, err)

	require.NoError(t, service.MarkAsSent(context.Background(), job.ID))

	first, err := repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, first.SentAt)

	clk.Add(10 * time.Minute)
	require.NoError(t, service.MarkAsSent(context.Background(), job.ID))

	second, err := repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusSent, second.Status)
	assert.Equal(t, *first.SentAt, *second.SentAt)
}

func TestService_FetchDue_FiltersAndOrders(t *testing.T) {
	repo := newMockRepository()
	clk := clock.NewMockClock(time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC))
	service := newTestService(t, repo, clk)

	oldest, err := service.Enqueue(context.Background(), EnqueueInput{
		Kind: KindBookingConfirmation, RecipientEmail: "a@example.com", Vars: baseVars(),
	})
	require.NoError(t, err)

	newer, err := service.Enqueue(context.Background(), EnqueueInput{
		Kind: KindStatusUpdate, RecipientEmail: "b@example.com", Vars: baseVars(),
	})
	require.NoError(t, err)

	// Not yet due.
	_, err = service.Enqueue(context.Background(), EnqueueInput{
		Kind: KindRatingRequest, RecipientEmail: "c@example.com", Vars: baseVars(), Delay: time.Hour,
	})
	require.NoError(t, err)

	// Terminally failed.
	failed, err := service.Enqueue(context.Background(), EnqueueInput{
		Kind: KindNewBookingAlert, RecipientEmail: "d@example.com", Vars: baseVars(),
	})
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(context.Background(), failed.ID, 3, "boom"))

	due, err := service.FetchDue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, oldest.ID, due[0].ID)
	assert.Equal(t, newer.ID, due[1].ID)
}

func TestService_FetchDue_RespectsLimit(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(t, repo, nil)

	for i := 0; i < 5; i++ {
		_, err := service.Enqueue(context.Background(), EnqueueInput{
			Kind: KindBookingConfirmation, RecipientEmail: "a@example.com", Vars: baseVars(),
		})
		require.NoError(t, err)
	}

	due, err := service.FetchDue(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestService_Stats(t *testing.T) {
	repo := newMockRepository()
	service := newTestService(t, repo, nil)

	sent, err := service.Enqueue(context.Background(), EnqueueInput{
		Kind: KindBookingConfirmation, RecipientEmail: "a@example.com", Vars: baseVars(),
	})
	require.NoError(t, err)
	require.NoError(t, service.MarkAsSent(context.Background(), sent.ID))

	_, err = service.Enqueue(context.Background(), EnqueueInput{
		Kind: KindStatusUpdate, RecipientEmail: "b@example.com", Vars: baseVars(),
	})
	require.NoError(t, err)

	stats, err := service.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 0, stats.Failed)
}

func TestService_RetryFailed(t *testing.T) {
	repo := newMockRepository()
	clk := clock.NewMockClock(time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC))
	service := newTestService(t, repo, clk)

	job, err := service.Enqueue(context.Background(), EnqueueInput{
		Kind: KindBookingConfirmation, RecipientEmail: "a@example.com", Vars: baseVars(),
	})
	require.NoError(t, err)

	// Still pending: re-drive is rejected.
	err = service.RetryFailed(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobNotFailed)

	require.NoError(t, repo.MarkFailed(context.Background(), job.ID, 3, "boom"))

	require.NoError(t, service.RetryFailed(context.Background(), job.ID))

	stored, err := repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.Equal(t, clk.Now(), stored.ScheduledFor)

	err = service.RetryFailed(context.Background(), "missing-id")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
