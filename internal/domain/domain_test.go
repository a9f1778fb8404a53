package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyStatusTransitions(t *testing.T) {
	assert.True(t, CopyStatusAvailable.CanTransitionTo(CopyStatusBorrowed))
	assert.True(t, CopyStatusAvailable.CanTransitionTo(CopyStatusReserved))
	assert.True(t, CopyStatusBorrowed.CanTransitionTo(CopyStatusReserved))
	assert.True(t, CopyStatusReserved.CanTransitionTo(CopyStatusReserved))
	assert.True(t, CopyStatusMaintenance.CanTransitionTo(CopyStatusAvailable))

	assert.False(t, CopyStatusBorrowed.CanTransitionTo(CopyStatusWithdrawn))
	assert.False(t, CopyStatusBorrowed.CanTransitionTo(CopyStatusMaintenance))
	assert.False(t, CopyStatusWithdrawn.CanTransitionTo(CopyStatusAvailable))
	assert.False(t, CopyStatus("LOST").Valid())
}

func TestCountCopies(t *testing.T) {
	copies := []Copy{
		{Status: CopyStatusAvailable},
		{Status: CopyStatusAvailable},
		{Status: CopyStatusBorrowed},
		{Status: CopyStatusReserved},
		{Status: CopyStatusWithdrawn},
		{Status: CopyStatusMaintenance},
	}
	c := CountCopies(copies)
	assert.Equal(t, 6, c.Total)
	assert.Equal(t, 2, c.Available)
	assert.Equal(t, c.Total, c.Available+c.Borrowed+c.Reserved+c.Maintenance+c.Withdrawn)
}

func TestLoanDaysOverdue(t *testing.T) {
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	loan := &Loan{DueAt: due}

	assert.False(t, loan.IsOverdue(due))
	assert.Equal(t, 0, loan.DaysOverdue(due.Add(-time.Hour)))
	assert.Equal(t, 2, loan.DaysOverdue(time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)))

	returned := due.Add(48 * time.Hour)
	loan.ReturnedAt = &returned
	assert.Equal(t, 0, loan.DaysOverdue(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)))
}

func TestComputeOverdueFine(t *testing.T) {
	rate := decimal.RequireFromString("2.00")
	assert.True(t, ComputeOverdueFine(rate, 2, 0).Equal(decimal.RequireFromString("4.00")))
	assert.True(t, ComputeOverdueFine(rate, 2, 2).IsZero())
	assert.True(t, ComputeOverdueFine(rate, 5, 2).Equal(decimal.RequireFromString("6.00")))
	assert.Equal(t, "1.67", ComputeOverdueFine(decimal.RequireFromString("0.333"), 5, 0).StringFixed(2))
}

func TestReservationLifecycle(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("Assign then cancel releases copy", func(t *testing.T) {
		r := &Reservation{ID: 1, Status: ReservationStatusActive}
		require.NoError(t, r.Assign(7, now.Add(24*time.Hour)))
		assert.True(t, r.HoldsCopy(7))

		released, err := r.Cancel(now)
		require.NoError(t, err)
		require.NotNil(t, released)
		assert.Equal(t, int64(7), *released)
		assert.False(t, r.IsAssigned())
		assert.Equal(t, ReservationStatusCancelled, r.Status)
	})

	t.Run("Terminal states reject moves", func(t *testing.T) {
		r := &Reservation{ID: 2, Status: ReservationStatusActive}
		require.NoError(t, r.Fulfill(11, now))
		require.NotNil(t, r.LoanID)

		_, err := r.Cancel(now)
		assert.ErrorIs(t, err, ErrAlreadyFulfilled)
		_, err = r.Expire(now)
		assert.ErrorIs(t, err, ErrAlreadyFulfilled)
		assert.ErrorIs(t, r.Fulfill(12, now), ErrInvalidState)
		assert.ErrorIs(t, r.Assign(3, now), ErrInvalidState)
	})

	t.Run("Terminal states drop the earmark", func(t *testing.T) {
		for name, finish := range map[string]func(r *Reservation) error{
			"fulfil": func(r *Reservation) error { return r.Fulfill(11, now) },
			"cancel": func(r *Reservation) error { _, err := r.Cancel(now); return err },
			"expire": func(r *Reservation) error { _, err := r.Expire(now); return err },
		} {
			r := &Reservation{ID: 8, Status: ReservationStatusActive}
			require.NoError(t, r.Assign(7, now.Add(time.Hour)))
			require.NoError(t, finish(r), name)
			assert.Nil(t, r.CopyID, name)
			assert.Nil(t, r.ExpiresAt, name)
			assert.False(t, r.HoldsCopy(7), name)
		}
	})

	t.Run("Fulfil needs a loan", func(t *testing.T) {
		r := &Reservation{ID: 9, Status: ReservationStatusActive}
		require.NoError(t, r.Assign(7, now.Add(time.Hour)))
		assert.ErrorIs(t, r.Fulfill(0, now), ErrInvalidState)
		assert.Equal(t, ReservationStatusActive, r.Status)
		assert.True(t, r.HoldsCopy(7))
	})

	t.Run("Pickup lapse", func(t *testing.T) {
		r := &Reservation{ID: 3, Status: ReservationStatusActive}
		require.NoError(t, r.Assign(4, now))
		assert.False(t, r.PickupLapsed(now))
		assert.True(t, r.PickupLapsed(now.Add(time.Second)))
	})

	t.Run("FIFO ordering ties on id", func(t *testing.T) {
		a := &Reservation{ID: 5, ReservedAt: now}
		b := &Reservation{ID: 6, ReservedAt: now}
		c := &Reservation{ID: 1, ReservedAt: now.Add(time.Minute)}
		assert.True(t, a.QueuedBefore(b))
		assert.True(t, b.QueuedBefore(c))
		assert.False(t, c.QueuedBefore(a))
	})
}

func TestErrorKinds(t *testing.T) {
	err := NotFound("loan", 42)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "loan 42: not found", err.Error())

	assert.Equal(t, KindPolicyViolation, KindOf(ErrBorrowLimitExceeded))
	assert.False(t, IsDomainError(errors.New("boom")))
}

func TestPolicyTiers(t *testing.T) {
	p := DefaultPolicy()
	p.Tiers["faculty"] = TierPolicy{MaxLoans: 20, LoanPeriodDays: 60}

	assert.Equal(t, 20, p.MaxLoansFor("faculty"))
	assert.Equal(t, 60, p.LoanPeriodFor("faculty"))
	assert.Equal(t, 5, p.MaxLoansFor("student"))
	assert.Equal(t, 14, p.LoanPeriodFor(""))
}

func TestIntentFingerprint(t *testing.T) {
	a := NotificationIntent{ID: "a", Kind: IntentLoanOverdue, PatronID: 1, LoanID: 9, DaysLate: 3, CreatedAt: time.Now()}
	b := NotificationIntent{ID: "b", Kind: IntentLoanOverdue, PatronID: 1, LoanID: 9, DaysLate: 3}
	c := NotificationIntent{Kind: IntentLoanOverdue, PatronID: 1, LoanID: 9, DaysLate: 4}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
