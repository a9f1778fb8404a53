package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"library-circulation-backend/internal/domain"
)

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

type InventoryService interface {
	AddTitle(ctx context.Context, actor domain.Actor, title *domain.Title) (*domain.Title, error)
	AddCopy(ctx context.Context, actor domain.Actor, copy *domain.Copy) (*CopyResult, error)
	SendToMaintenance(ctx context.Context, actor domain.Actor, copyID int64, note string) (*CopyResult, error)
	ReturnToCirculation(ctx context.Context, actor domain.Actor, copyID int64) (*CopyResult, error)
	WithdrawCopy(ctx context.Context, actor domain.Actor, copyID int64, note string) (*CopyResult, error)
	GetTitleAvailability(ctx context.Context, titleID int64) (*TitleAvailability, error)
}

type LoanService interface {
	CreateLoan(ctx context.Context, patronID, copyID int64) (*LoanResult, error)
	ReturnLoan(ctx context.Context, loanID int64) (*LoanResult, error)
	ExtendLoan(ctx context.Context, loanID int64, days int) (*domain.Loan, error)
	GetLoan(ctx context.Context, loanID int64) (*domain.Loan, error)
	RemindDueLoans(ctx context.Context, within time.Duration) (*SweepReport, error)
}

type ReservationService interface {
	CreateReservation(ctx context.Context, patronID, titleID int64) (*ReservationResult, error)
	CancelReservation(ctx context.Context, reservationID int64, actor domain.Actor) (*ReservationResult, error)
	FulfillReservation(ctx context.Context, reservationID, loanID int64) (*domain.Reservation, error)
	QueuePosition(ctx context.Context, reservationID int64) (int, error)
	ExpireReadyReservations(ctx context.Context, pickupWindowHours int) (*SweepReport, error)
	GetReservation(ctx context.Context, reservationID int64) (*domain.Reservation, error)
}

type FineService interface {
	AssessOverdueFines(ctx context.Context, dailyRate decimal.Decimal, currency string, graceDays int) (*SweepReport, error)
	ListFines(ctx context.Context, patronID int64) ([]domain.Fine, error)
}

type PatronService interface {
	BlockDelinquentPatrons(ctx context.Context, maxUnpaidFines decimal.Decimal, maxOverdueDays int) (*SweepReport, error)
	GetPatron(ctx context.Context, patronID int64) (*domain.Patron, error)
}

type NotificationService interface {
	Dispatch(ctx context.Context, intents []domain.NotificationIntent) (*DispatchResult, error)
	GetNotifications(ctx context.Context, patronID int64, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, patronID, notificationID int64) error
}

// CopyResult is the copy after an inventory operation plus the intents it
// produced (a copy entering circulation may be earmarked for a waiting patron).
type CopyResult struct {
	Copy    *domain.Copy
	Intents []domain.NotificationIntent
}

type TitleAvailability struct {
	Title  *domain.Title
	Counts domain.CopyCounts
	Copies []domain.Copy
	Queued int
}

type LoanResult struct {
	Loan *domain.Loan
	Copy *domain.Copy
	// Fulfilled is the borrower's reservation closed by this loan, if any.
	Fulfilled *domain.Reservation
	Intents   []domain.NotificationIntent
}

type ReservationResult struct {
	Reservation *domain.Reservation
	Intents     []domain.NotificationIntent
}

type DispatchResult struct {
	Delivered  int
	Suppressed int
}
