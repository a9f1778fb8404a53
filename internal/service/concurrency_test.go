package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation-backend/internal/domain"
)

// Returns, a cancellation and the expiry pass race on one title. However they
// interleave, each released copy ends up with exactly one waiting patron.
func TestConcurrentReleasesAwardEachCopyOnce(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		f := newFixture(t)
		titleID, copies := f.title(t, "dune", 3)

		loans := make([]int64, 0, len(copies))
		for i, copyID := range copies {
			borrower := f.patron(t, "borrower"+string(rune('a'+i)))
			res, err := f.loans.CreateLoan(ctx, borrower, copyID)
			require.NoError(t, err)
			loans = append(loans, res.Loan.ID)
		}

		waiters := make([]int64, 0, 4)
		reservations := make([]int64, 0, 4)
		for i := 0; i < 4; i++ {
			w := f.patron(t, "waiter"+string(rune('a'+i)))
			res, err := f.reservations.CreateReservation(ctx, w, titleID)
			require.NoError(t, err)
			waiters = append(waiters, w)
			reservations = append(reservations, res.Reservation.ID)
		}

		var wg sync.WaitGroup
		errs := make(chan error, len(loans)+2)
		for _, loanID := range loans {
			wg.Add(1)
			go func(loanID int64) {
				defer wg.Done()
				_, err := f.loans.ReturnLoan(ctx, loanID)
				errs <- err
			}(loanID)
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			first := domain.Actor{PatronID: waiters[0], Role: domain.PatronRoleMember}
			_, err := f.reservations.CancelReservation(ctx, reservations[0], first)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.reservations.ExpireReadyReservations(ctx, 0)
			errs <- err
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		holders := map[int64]int64{}
		for i, id := range reservations {
			res, err := f.reservations.GetReservation(ctx, id)
			require.NoError(t, err)
			if i == 0 {
				assert.Equal(t, domain.ReservationStatusCancelled, res.Status)
				assert.Nil(t, res.CopyID)
				continue
			}
			require.Equal(t, domain.ReservationStatusActive, res.Status)
			require.NotNil(t, res.CopyID, "reservation %d got no copy", id)
			prev, taken := holders[*res.CopyID]
			assert.False(t, taken, "copy %d awarded to reservations %d and %d", *res.CopyID, prev, id)
			holders[*res.CopyID] = id
		}
		assert.Len(t, holders, len(copies))
		for _, copyID := range copies {
			assert.Equal(t, domain.CopyStatusReserved, f.copyStatus(t, copyID))
		}
		counts := f.assertCounters(t, titleID)
		assert.Equal(t, 3, counts.Reserved)
	}
}
