package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"library-circulation-backend/internal/audit"
	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/logger"
	"library-circulation-backend/internal/repository"
)

type reservationService struct {
	*engine
}

func NewReservationService(store repository.Transactor, policy domain.Policy, recorder audit.Recorder, clock Clock) ReservationService {
	return &reservationService{engine: newEngine(store, policy, recorder, clock)}
}

// CreateReservation puts the patron in the title's queue. When a copy is on
// the shelf it is earmarked straight away instead of waiting in line.
func (s *reservationService) CreateReservation(ctx context.Context, patronID, titleID int64) (*ReservationResult, error) {
	logger.EnterMethod("reservationService.CreateReservation", "patronID", patronID, "titleID", titleID)

	var res *domain.Reservation
	t, err := s.run(ctx, func(ctx context.Context, t *txn) error {
		if _, err := t.lockTitle(ctx, titleID); err != nil {
			return err
		}
		patron, err := t.Patrons.GetByID(ctx, patronID)
		if err != nil {
			return err
		}
		existing, err := t.Reservations.GetActiveByPatron(ctx, patronID, titleID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: reservation %d", domain.ErrAlreadyReserved, existing.ID)
		}
		if patron.Blocked {
			return domain.ErrUserBlocked
		}

		res = &domain.Reservation{
			TitleID:    titleID,
			PatronID:   patronID,
			Status:     domain.ReservationStatusActive,
			ReservedAt: t.now,
		}
		if err := t.Reservations.Create(ctx, res); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return fmt.Errorf("%w: %w", domain.ErrAlreadyReserved, err)
			}
			return err
		}
		t.record("reservation.created", "reservation", res.ID, patronID, map[string]any{"title_id": titleID})

		cp, err := t.Copies.FindAvailable(ctx, titleID)
		if err != nil {
			return err
		}
		if cp != nil {
			return t.earmark(ctx, cp, res)
		}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("reservationService.CreateReservation", err, "patronID", patronID, "titleID", titleID)
		return nil, err
	}

	logger.ExitMethod("reservationService.CreateReservation", "reservationID", res.ID, "assigned", res.IsAssigned())
	return &ReservationResult{Reservation: res, Intents: t.intents}, nil
}

// CancelReservation is allowed to the owner and to staff. An earmarked copy
// cascades to the next reservation in line or back to the shelf.
func (s *reservationService) CancelReservation(ctx context.Context, reservationID int64, actor domain.Actor) (*ReservationResult, error) {
	logger.EnterMethod("reservationService.CancelReservation", "reservationID", reservationID, "actor", actor.PatronID)

	var res *domain.Reservation
	t, err := s.run(ctx, func(ctx context.Context, t *txn) error {
		var err error
		if res, err = lockReservation(ctx, t, reservationID); err != nil {
			return err
		}
		if !actor.IsStaff() && actor.PatronID != res.PatronID {
			return fmt.Errorf("%w: reservation %d belongs to another patron", domain.ErrForbidden, res.ID)
		}
		released, err := res.Cancel(t.now)
		if err != nil {
			return err
		}
		if err := t.Reservations.Update(ctx, res); err != nil {
			return err
		}
		logger.Transition("reservation", res.ID, string(domain.ReservationStatusActive), string(res.Status), "actor", actor.PatronID)
		t.record("reservation.cancelled", "reservation", res.ID, res.PatronID, map[string]any{
			"actor":       actor.PatronID,
			"released_to": releasedTo(released),
		})
		return releaseByID(ctx, t, released)
	})
	if err != nil {
		logger.ExitMethodWithError("reservationService.CancelReservation", err, "reservationID", reservationID)
		return nil, err
	}

	logger.ExitMethod("reservationService.CancelReservation", "reservationID", reservationID)
	return &ReservationResult{Reservation: res, Intents: t.intents}, nil
}

// FulfillReservation closes an earmarked reservation against a loan created
// for it. The loan must be the open loan of the earmarked copy and belong to
// the reservation's patron. The copy status is left alone: the loan already
// made it BORROWED.
func (s *reservationService) FulfillReservation(ctx context.Context, reservationID, loanID int64) (*domain.Reservation, error) {
	var res *domain.Reservation
	_, err := s.run(ctx, func(ctx context.Context, t *txn) error {
		var err error
		if res, err = lockReservation(ctx, t, reservationID); err != nil {
			return err
		}
		if res.Status != domain.ReservationStatusActive {
			return fmt.Errorf("%w: reservation %d is %s", domain.ErrInvalidState, res.ID, res.Status)
		}
		if !res.IsAssigned() {
			return fmt.Errorf("%w: reservation %d", domain.ErrNoCopyAssigned, res.ID)
		}
		if loanID == 0 {
			return fmt.Errorf("%w: reservation %d needs a loan to be fulfilled", domain.ErrInvalidState, res.ID)
		}
		loan, err := t.Loans.GetByID(ctx, loanID)
		if err != nil {
			return err
		}
		open, err := t.Loans.GetOpenByCopy(ctx, *res.CopyID)
		if err != nil {
			return err
		}
		if open == nil || open.ID != loan.ID || loan.PatronID != res.PatronID {
			return fmt.Errorf("%w: loan %d is not the open loan of copy %d for patron %d",
				domain.ErrInvalidState, loan.ID, *res.CopyID, res.PatronID)
		}
		if err := res.Fulfill(loanID, t.now); err != nil {
			return err
		}
		if err := t.Reservations.Update(ctx, res); err != nil {
			return err
		}
		logger.Transition("reservation", res.ID, string(domain.ReservationStatusActive), string(res.Status), "loanID", loanID)
		t.record("reservation.fulfilled", "reservation", res.ID, res.PatronID, map[string]any{"loan_id": loanID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// QueuePosition is 0 for a reservation holding a copy, otherwise its 1-based
// rank among the title's unassigned active reservations.
func (s *reservationService) QueuePosition(ctx context.Context, reservationID int64) (int, error) {
	position := 0
	err := s.read(ctx, func(ctx context.Context, r repository.Repos) error {
		res, err := r.Reservations.GetByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if res.Status != domain.ReservationStatusActive {
			return fmt.Errorf("%w: reservation %d is %s", domain.ErrInvalidState, res.ID, res.Status)
		}
		if res.IsAssigned() {
			return nil
		}
		queue, err := r.Reservations.ListQueued(ctx, res.TitleID)
		if err != nil {
			return err
		}
		position = 1
		for i := range queue {
			if queue[i].ID != res.ID && queue[i].QueuedBefore(res) {
				position++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return position, nil
}

// ExpireReadyReservations expires every earmark whose pickup deadline has
// passed and cascades the copy to the next reservation in line. Each
// reservation is handled in its own transaction and re-checked under the
// title lock. pickupWindowHours sets the deadline of the cascaded earmarks;
// zero or less means the policy default.
func (s *reservationService) ExpireReadyReservations(ctx context.Context, pickupWindowHours int) (*SweepReport, error) {
	now := s.clock().UTC()
	report := newSweepReport("expire-ready-reservations", now)

	window := s.policy.PickupWindow
	if pickupWindowHours > 0 {
		window = time.Duration(pickupWindowHours) * time.Hour
	}

	var lapsed []domain.Reservation
	err := s.read(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		lapsed, err = r.Reservations.ListLapsed(ctx, now)
		return err
	})
	if err != nil {
		return report.finish(s.clock().UTC()), err
	}

	for _, candidate := range lapsed {
		if err := ctx.Err(); err != nil {
			return report.finish(s.clock().UTC()), err
		}
		t, err := s.runWithWindow(ctx, window, func(ctx context.Context, t *txn) error {
			return s.expireOne(ctx, t, candidate.ID)
		})
		if stop := report.apply(candidate.ID, t, err); stop != nil {
			return report.finish(s.clock().UTC()), stop
		}
	}
	return report.finish(s.clock().UTC()), nil
}

func (s *reservationService) expireOne(ctx context.Context, t *txn, reservationID int64) error {
	res, err := lockReservation(ctx, t, reservationID)
	if err != nil {
		return err
	}
	// picked up, cancelled or re-earmarked since the candidate list was read
	if !res.PickupLapsed(t.now) {
		t.skip()
		return nil
	}

	released, err := res.Expire(t.now)
	if err != nil {
		return err
	}
	if err := t.Reservations.Update(ctx, res); err != nil {
		return err
	}
	logger.Transition("reservation", res.ID, string(domain.ReservationStatusActive), string(res.Status))
	t.record("reservation.expired", "reservation", res.ID, res.PatronID, map[string]any{"released_to": releasedTo(released)})

	intent := domain.NotificationIntent{
		Kind:          domain.IntentReservationExpired,
		PatronID:      res.PatronID,
		TitleID:       res.TitleID,
		ReservationID: res.ID,
	}
	if released != nil {
		intent.CopyID = *released
	}
	t.emit(intent)

	return releaseByID(ctx, t, released)
}

func (s *reservationService) GetReservation(ctx context.Context, reservationID int64) (*domain.Reservation, error) {
	var res *domain.Reservation
	err := s.read(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		res, err = r.Reservations.GetByID(ctx, reservationID)
		return err
	})
	return res, err
}

// lockReservation reads a reservation, locks its title and reads it again
// under the lock.
func lockReservation(ctx context.Context, t *txn, reservationID int64) (*domain.Reservation, error) {
	res, err := t.Reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if _, err := t.lockTitle(ctx, res.TitleID); err != nil {
		return nil, err
	}
	return t.Reservations.GetByID(ctx, reservationID)
}

// releaseByID runs the release path for a copy dropped by a reservation.
func releaseByID(ctx context.Context, t *txn, copyID *int64) error {
	if copyID == nil {
		return nil
	}
	cp, err := t.Copies.GetByID(ctx, *copyID)
	if err != nil {
		return err
	}
	return t.releaseCopy(ctx, cp)
}

func releasedTo(copyID *int64) any {
	if copyID == nil {
		return nil
	}
	return *copyID
}
