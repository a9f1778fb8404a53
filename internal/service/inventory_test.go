package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation-backend/internal/domain"
)

func TestInventoryIsStaffOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := domain.Actor{PatronID: f.patron(t, "u1"), Role: domain.PatronRoleMember}
	titleID, copies := f.title(t, "dune", 1)

	_, err := f.inventory.AddTitle(ctx, member, &domain.Title{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.inventory.AddCopy(ctx, member, &domain.Copy{TitleID: titleID, InventoryCode: "x"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.inventory.SendToMaintenance(ctx, member, copies[0], "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.inventory.WithdrawCopy(ctx, member, copies[0], "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.inventory.ReturnToCirculation(ctx, member, copies[0])
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.Equal(t, domain.CopyStatusAvailable, f.copyStatus(t, copies[0]))
}

func TestMaintenanceRoundTrip(t *testing.T) {
	ctx := context.Background()

	t.Run("available copy goes to maintenance and back", func(t *testing.T) {
		f := newFixture(t)
		titleID, copies := f.title(t, "dune", 2)

		res, err := f.inventory.SendToMaintenance(ctx, staff, copies[0], "torn spine")
		require.NoError(t, err)
		assert.Equal(t, domain.CopyStatusMaintenance, res.Copy.Status)
		counts := f.assertCounters(t, titleID)
		assert.Equal(t, 1, counts.Available)
		assert.Equal(t, 1, counts.Maintenance)

		_, err = f.inventory.SendToMaintenance(ctx, staff, copies[0], "again")
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)

		res, err = f.inventory.ReturnToCirculation(ctx, staff, copies[0])
		require.NoError(t, err)
		assert.Equal(t, domain.CopyStatusAvailable, res.Copy.Status)
		assert.Empty(t, res.Intents)
		assert.Equal(t, 2, f.assertCounters(t, titleID).Available)
	})

	t.Run("repaired copy goes to the head of the queue", func(t *testing.T) {
		f := newFixture(t)
		u1, u2 := f.patron(t, "u1"), f.patron(t, "u2")
		titleID, copies := f.title(t, "dune", 1)

		_, err := f.inventory.SendToMaintenance(ctx, staff, copies[0], "")
		require.NoError(t, err)
		r1, err := f.reservations.CreateReservation(ctx, u1, titleID)
		require.NoError(t, err)
		_, err = f.reservations.CreateReservation(ctx, u2, titleID)
		require.NoError(t, err)
		assert.Nil(t, r1.Reservation.CopyID)

		res, err := f.inventory.ReturnToCirculation(ctx, staff, copies[0])
		require.NoError(t, err)
		assert.Equal(t, domain.CopyStatusReserved, res.Copy.Status)
		require.Len(t, res.Intents, 1)
		assert.Equal(t, domain.IntentReservationReady, res.Intents[0].Kind)
		assert.Equal(t, u1, res.Intents[0].PatronID)

		got, err := f.reservations.GetReservation(ctx, r1.Reservation.ID)
		require.NoError(t, err)
		require.NotNil(t, got.CopyID)
		assert.Equal(t, copies[0], *got.CopyID)
		f.assertCounters(t, titleID)
	})

	t.Run("only copies in maintenance return to circulation", func(t *testing.T) {
		f := newFixture(t)
		_, copies := f.title(t, "dune", 1)

		_, err := f.inventory.ReturnToCirculation(ctx, staff, copies[0])
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("borrowed copy cannot be shelved", func(t *testing.T) {
		f := newFixture(t)
		u1 := f.patron(t, "u1")
		_, copies := f.title(t, "dune", 1)
		_, err := f.loans.CreateLoan(ctx, u1, copies[0])
		require.NoError(t, err)

		_, err = f.inventory.SendToMaintenance(ctx, staff, copies[0], "")
		assert.ErrorIs(t, err, domain.ErrCopyNotAvailable)
		_, err = f.inventory.WithdrawCopy(ctx, staff, copies[0], "")
		assert.ErrorIs(t, err, domain.ErrCopyNotAvailable)
	})
}

func TestWithdrawCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	titleID, copies := f.title(t, "dune", 2)

	_, err := f.inventory.WithdrawCopy(ctx, staff, copies[0], "lost")
	require.NoError(t, err)
	_, err = f.inventory.SendToMaintenance(ctx, staff, copies[1], "")
	require.NoError(t, err)
	_, err = f.inventory.WithdrawCopy(ctx, staff, copies[1], "beyond repair")
	require.NoError(t, err)

	counts := f.assertCounters(t, titleID)
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 2, counts.Withdrawn)
	assert.Equal(t, 0, counts.Available)

	_, err = f.inventory.WithdrawCopy(ctx, staff, copies[0], "")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	_, err = f.inventory.ReturnToCirculation(ctx, staff, copies[0])
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestGetTitleAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1, u2, u3 := f.patron(t, "u1"), f.patron(t, "u2"), f.patron(t, "u3")
	titleID, copies := f.title(t, "dune", 2)

	held, err := f.loans.CreateLoan(ctx, u1, copies[0])
	require.NoError(t, err)
	_, err = f.reservations.CreateReservation(ctx, u2, titleID)
	require.NoError(t, err)
	_, err = f.reservations.CreateReservation(ctx, u3, titleID)
	require.NoError(t, err)

	av, err := f.inventory.GetTitleAvailability(ctx, titleID)
	require.NoError(t, err)
	assert.Equal(t, 2, av.Counts.Total)
	assert.Equal(t, 1, av.Counts.Borrowed)
	assert.Equal(t, 1, av.Counts.Reserved)
	assert.Equal(t, 0, av.Counts.Available)
	assert.Equal(t, 1, av.Queued)
	assert.Len(t, av.Copies, 2)
	assert.Equal(t, 0, av.Title.AvailableCopies)

	loan, err := f.loans.GetLoan(ctx, held.Loan.ID)
	require.NoError(t, err)
	assert.Equal(t, copies[0], loan.CopyID)

	_, err = f.inventory.GetTitleAvailability(ctx, 424242)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.loans.GetLoan(ctx, 424242)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
