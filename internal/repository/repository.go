package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"library-circulation-backend/internal/domain"
)

// ErrUnavailable marks a persistence failure the caller cannot recover from by
// retrying the same operation with other inputs. Sweeps abort on it.
var ErrUnavailable = errors.New("persistence unavailable")

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

type TitleRepository interface {
	Create(ctx context.Context, title *domain.Title) error
	GetByID(ctx context.Context, id int64) (*domain.Title, error)
	// Lock reads the title and holds its row lock until the transaction ends.
	// Every path that reads or rewrites a title's queue takes this lock first.
	Lock(ctx context.Context, id int64) (*domain.Title, error)
	UpdateCounters(ctx context.Context, id int64, total, available int) error
}

type CopyRepository interface {
	Create(ctx context.Context, copy *domain.Copy) error
	GetByID(ctx context.Context, id int64) (*domain.Copy, error)
	UpdateStatus(ctx context.Context, id int64, status domain.CopyStatus) error
	ListByTitle(ctx context.Context, titleID int64) ([]domain.Copy, error)
	// FindAvailable returns the lowest-id AVAILABLE copy of a title, or nil.
	FindAvailable(ctx context.Context, titleID int64) (*domain.Copy, error)
}

type LoanRepository interface {
	Create(ctx context.Context, loan *domain.Loan) error
	GetByID(ctx context.Context, id int64) (*domain.Loan, error)
	Update(ctx context.Context, loan *domain.Loan) error
	// GetOpenByCopy returns the open loan on a copy, or nil.
	GetOpenByCopy(ctx context.Context, copyID int64) (*domain.Loan, error)
	CountOpenByPatron(ctx context.Context, patronID int64) (int, error)
	// ListOverdue returns open loans with due_at before the cutoff, oldest first.
	ListOverdue(ctx context.Context, before time.Time) ([]domain.Loan, error)
	// ListDueBetween returns open loans with from <= due_at < to.
	ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.Loan, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, res *domain.Reservation) error
	GetByID(ctx context.Context, id int64) (*domain.Reservation, error)
	Update(ctx context.Context, res *domain.Reservation) error
	// ListQueued returns ACTIVE reservations of a title with no copy assigned,
	// ordered by reserved_at then id.
	ListQueued(ctx context.Context, titleID int64) ([]domain.Reservation, error)
	// GetActiveByPatron returns the patron's ACTIVE reservation for a title, or nil.
	GetActiveByPatron(ctx context.Context, patronID, titleID int64) (*domain.Reservation, error)
	// GetActiveByCopy returns the ACTIVE reservation earmarking a copy, or nil.
	GetActiveByCopy(ctx context.Context, copyID int64) (*domain.Reservation, error)
	// ListLapsed returns ACTIVE assigned reservations whose expires_at is before now.
	ListLapsed(ctx context.Context, now time.Time) ([]domain.Reservation, error)
}

type FineRepository interface {
	// Create inserts a fine. A second active fine for the same loan fails with
	// domain.ErrConflict.
	Create(ctx context.Context, fine *domain.Fine) error
	// GetActiveByLoan returns the active fine of a loan, or nil.
	GetActiveByLoan(ctx context.Context, loanID int64) (*domain.Fine, error)
	ListByPatron(ctx context.Context, patronID int64) ([]domain.Fine, error)
}

type PatronRepository interface {
	Create(ctx context.Context, patron *domain.Patron) error
	GetByID(ctx context.Context, id int64) (*domain.Patron, error)
	SetBlocked(ctx context.Context, id int64, reason string, at time.Time) error
	// ListDelinquencies summarises unblocked patrons that owe active fines or
	// hold loans overdue at now.
	ListDelinquencies(ctx context.Context, now time.Time) ([]domain.Delinquency, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	// ExistsSince reports whether the patron got a notification with the same
	// fingerprint at or after since.
	ExistsSince(ctx context.Context, patronID int64, fingerprint string, since time.Time) (bool, error)
	List(ctx context.Context, patronID int64, limit, offset int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, patronID int64) error
}

// Repos bundles the repositories bound to one transaction.
type Repos struct {
	Titles        TitleRepository
	Copies        CopyRepository
	Loans         LoanRepository
	Reservations  ReservationRepository
	Fines         FineRepository
	Patrons       PatronRepository
	Notifications NotificationRepository
}

// Transactor runs fn inside one transaction. fn's error rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

// Store is a persistence backend.
type Store interface {
	Transactor
	Close() error
}
