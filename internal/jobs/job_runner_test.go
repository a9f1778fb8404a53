package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"library-circulation-backend/internal/config"
	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/repository"
	"library-circulation-backend/internal/service"
)

type mockReservations struct {
	mock.Mock
	service.ReservationService
}

func (m *mockReservations) ExpireReadyReservations(ctx context.Context, hours int) (*service.SweepReport, error) {
	args := m.Called(ctx, hours)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SweepReport), args.Error(1)
}

type mockFines struct {
	mock.Mock
	service.FineService
}

func (m *mockFines) AssessOverdueFines(ctx context.Context, rate decimal.Decimal, currency string, grace int) (*service.SweepReport, error) {
	args := m.Called(ctx, rate.StringFixed(2), currency, grace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SweepReport), args.Error(1)
}

type mockPatrons struct {
	mock.Mock
	service.PatronService
}

func (m *mockPatrons) BlockDelinquentPatrons(ctx context.Context, limit decimal.Decimal, days int) (*service.SweepReport, error) {
	args := m.Called(ctx, limit.StringFixed(2), days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SweepReport), args.Error(1)
}

type mockLoans struct {
	mock.Mock
	service.LoanService
}

func (m *mockLoans) RemindDueLoans(ctx context.Context, within time.Duration) (*service.SweepReport, error) {
	args := m.Called(ctx, within)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SweepReport), args.Error(1)
}

type mockNotifications struct {
	mock.Mock
	service.NotificationService
}

func (m *mockNotifications) Dispatch(ctx context.Context, intents []domain.NotificationIntent) (*service.DispatchResult, error) {
	args := m.Called(ctx, intents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DispatchResult), args.Error(1)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
storage:
  type: memory
circulation:
  pickup_window_hours: 36
fines:
  daily_rate: "0.50"
  currency: EUR
  grace_days: 1
blocking:
  max_unpaid_fines: "15.00"
  max_overdue_days: 20
notifications:
  due_soon_hours: 24
`))
	require.NoError(t, err)
	return cfg
}

type runnerMocks struct {
	reservations  *mockReservations
	fines         *mockFines
	patrons       *mockPatrons
	loans         *mockLoans
	notifications *mockNotifications
}

func newTestRunner(t *testing.T) (*JobRunner, *runnerMocks) {
	m := &runnerMocks{
		reservations:  new(mockReservations),
		fines:         new(mockFines),
		patrons:       new(mockPatrons),
		loans:         new(mockLoans),
		notifications: new(mockNotifications),
	}
	jr := NewJobRunner(&Services{
		Loans:         m.loans,
		Reservations:  m.reservations,
		Fines:         m.fines,
		Patrons:       m.patrons,
		Notifications: m.notifications,
	}, testConfig(t))
	return jr, m
}

func TestJobsPassConfiguredArguments(t *testing.T) {
	jr, m := newTestRunner(t)
	empty := &service.SweepReport{}

	m.reservations.On("ExpireReadyReservations", mock.Anything, 36).Return(empty, nil)
	m.fines.On("AssessOverdueFines", mock.Anything, "0.50", "EUR", 1).Return(empty, nil)
	m.patrons.On("BlockDelinquentPatrons", mock.Anything, "15.00", 20).Return(empty, nil)
	m.loans.On("RemindDueLoans", mock.Anything, 24*time.Hour).Return(empty, nil)

	require.NoError(t, jr.RunAllSweeps())

	m.reservations.AssertExpectations(t)
	m.fines.AssertExpectations(t)
	m.patrons.AssertExpectations(t)
	m.loans.AssertExpectations(t)
	m.notifications.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestSweepIntentsAreDispatched(t *testing.T) {
	jr, m := newTestRunner(t)
	intents := []domain.NotificationIntent{{Kind: domain.IntentReservationExpired, PatronID: 1}}

	m.reservations.On("ExpireReadyReservations", mock.Anything, 36).
		Return(&service.SweepReport{Processed: 1, Succeeded: 1, Intents: intents}, nil)
	m.notifications.On("Dispatch", mock.Anything, intents).
		Return(&service.DispatchResult{Delivered: 1}, nil)

	require.NoError(t, jr.ExpireReadyReservations())
	m.notifications.AssertExpectations(t)
}

func TestAbortedSweepStillDispatchesAndFails(t *testing.T) {
	jr, m := newTestRunner(t)
	down := repository.Unavailable(errors.New("connection refused"))
	intents := []domain.NotificationIntent{{Kind: domain.IntentLoanOverdue, PatronID: 2, LoanID: 3}}

	m.fines.On("AssessOverdueFines", mock.Anything, "0.50", "EUR", 1).
		Return(&service.SweepReport{Processed: 2, Succeeded: 1, Intents: intents}, down)
	m.notifications.On("Dispatch", mock.Anything, intents).
		Return(nil, errors.New("mailer down"))

	err := jr.AssessOverdueFines()
	assert.ErrorIs(t, err, repository.ErrUnavailable)
	m.notifications.AssertExpectations(t)
}

func TestRunWithRecoveryTurnsPanicIntoError(t *testing.T) {
	jr, m := newTestRunner(t)
	m.patrons.On("BlockDelinquentPatrons", mock.Anything, "15.00", 20).Panic("boom")
	m.reservations.On("ExpireReadyReservations", mock.Anything, 36).Return(&service.SweepReport{}, nil)
	m.fines.On("AssessOverdueFines", mock.Anything, "0.50", "EUR", 1).Return(&service.SweepReport{}, nil)
	m.loans.On("RemindDueLoans", mock.Anything, 24*time.Hour).Return(&service.SweepReport{}, nil)

	err := jr.RunAllSweeps()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BlockDelinquentPatrons panicked")

	// later passes still ran
	m.loans.AssertExpectations(t)
}
