package service

import (
	"context"

	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/logger"
)

// releaseCopy decides where a copy goes once nobody borrows or holds it: to
// the head of the title's queue, or back on the shelf when nobody waits.
// The caller must hold the title lock.
func (t *txn) releaseCopy(ctx context.Context, cp *domain.Copy) error {
	queue, err := t.Reservations.ListQueued(ctx, cp.TitleID)
	if err != nil {
		return err
	}
	if len(queue) == 0 {
		return t.setStatus(ctx, cp, domain.CopyStatusAvailable)
	}
	head := queue[0]
	return t.earmark(ctx, cp, &head)
}

// earmark assigns cp to res for pickup until now + pickup window.
func (t *txn) earmark(ctx context.Context, cp *domain.Copy, res *domain.Reservation) error {
	pickupBy := t.now.Add(t.pickupWindow)
	if err := res.Assign(cp.ID, pickupBy); err != nil {
		return err
	}
	if err := t.setStatus(ctx, cp, domain.CopyStatusReserved); err != nil {
		return err
	}
	if err := t.Reservations.Update(ctx, res); err != nil {
		return err
	}

	logger.Info("Copy earmarked", "copyID", cp.ID, "reservationID", res.ID, "patronID", res.PatronID, "pickupBy", pickupBy)
	t.record("reservation.assigned", "reservation", res.ID, res.PatronID, map[string]any{
		"copy_id":    cp.ID,
		"expires_at": pickupBy,
	})
	t.emit(domain.NotificationIntent{
		Kind:          domain.IntentReservationReady,
		PatronID:      res.PatronID,
		TitleID:       res.TitleID,
		CopyID:        cp.ID,
		ReservationID: res.ID,
		PickupBy:      &pickupBy,
	})
	return nil
}
