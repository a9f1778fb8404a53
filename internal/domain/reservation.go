package domain

import (
	"fmt"
	"time"
)

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "ACTIVE"
	ReservationStatusFulfilled ReservationStatus = "FULFILLED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
)

func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationStatusFulfilled || s == ReservationStatusCancelled || s == ReservationStatusExpired
}

// Reservation is a patron's place in a title's waiting list. CopyID is set only
// while the reservation is ACTIVE and a copy has been earmarked for pickup.
type Reservation struct {
	ID          int64             `json:"id" db:"id"`
	TitleID     int64             `json:"title_id" db:"title_id"`
	PatronID    int64             `json:"patron_id" db:"patron_id"`
	CopyID      *int64            `json:"copy_id,omitempty" db:"copy_id"`
	LoanID      *int64            `json:"loan_id,omitempty" db:"loan_id"`
	Status      ReservationStatus `json:"status" db:"status"`
	ReservedAt  time.Time         `json:"reserved_at" db:"reserved_at"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty" db:"expires_at"`
	FulfilledAt *time.Time        `json:"fulfilled_at,omitempty" db:"fulfilled_at"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	ExpiredAt   *time.Time        `json:"expired_at,omitempty" db:"expired_at"`
	UpdatedOn   time.Time         `json:"updated_on" db:"updated_on"`
}

func (r *Reservation) IsAssigned() bool {
	return r.CopyID != nil
}

// HoldsCopy reports whether the reservation currently earmarks the given copy.
func (r *Reservation) HoldsCopy(copyID int64) bool {
	return r.Status == ReservationStatusActive && r.CopyID != nil && *r.CopyID == copyID
}

// PickupLapsed reports whether an earmarked copy was not collected by its deadline.
func (r *Reservation) PickupLapsed(now time.Time) bool {
	return r.Status == ReservationStatusActive && r.CopyID != nil && r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// QueuedBefore orders reservations FIFO by reservation time, ties broken by id.
func (r *Reservation) QueuedBefore(other *Reservation) bool {
	if r.ReservedAt.Equal(other.ReservedAt) {
		return r.ID < other.ID
	}
	return r.ReservedAt.Before(other.ReservedAt)
}

// Assign earmarks a copy for pickup until expiresAt.
func (r *Reservation) Assign(copyID int64, expiresAt time.Time) error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: reservation %d is %s", ErrInvalidState, r.ID, r.Status)
	}
	r.CopyID = &copyID
	r.ExpiresAt = &expiresAt
	return nil
}

// Fulfill closes the reservation against the loan that satisfied it. The
// earmark is dropped; the loan carries the copy from here on.
func (r *Reservation) Fulfill(loanID int64, now time.Time) error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: reservation %d is %s", ErrInvalidState, r.ID, r.Status)
	}
	if loanID == 0 {
		return fmt.Errorf("%w: reservation %d needs a loan to be fulfilled", ErrInvalidState, r.ID)
	}
	r.Status = ReservationStatusFulfilled
	r.FulfilledAt = &now
	r.LoanID = &loanID
	r.clearEarmark()
	return nil
}

// Cancel moves the reservation to CANCELLED and drops any earmark. The released
// copy id, if any, is returned so the caller can pass it on.
func (r *Reservation) Cancel(now time.Time) (*int64, error) {
	if r.Status.IsTerminal() {
		return nil, r.stateError()
	}
	released := r.CopyID
	r.Status = ReservationStatusCancelled
	r.CancelledAt = &now
	r.clearEarmark()
	return released, nil
}

// Expire moves the reservation to EXPIRED and drops its earmark.
func (r *Reservation) Expire(now time.Time) (*int64, error) {
	if r.Status.IsTerminal() {
		return nil, r.stateError()
	}
	released := r.CopyID
	r.Status = ReservationStatusExpired
	r.ExpiredAt = &now
	r.clearEarmark()
	return released, nil
}

func (r *Reservation) clearEarmark() {
	r.CopyID = nil
	r.ExpiresAt = nil
}

func (r *Reservation) stateError() error {
	switch r.Status {
	case ReservationStatusFulfilled:
		return ErrAlreadyFulfilled
	case ReservationStatusCancelled:
		return ErrAlreadyCancelled
	case ReservationStatusExpired:
		return ErrAlreadyExpired
	default:
		return fmt.Errorf("%w: reservation %d is %s", ErrInvalidState, r.ID, r.Status)
	}
}
