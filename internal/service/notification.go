package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/logger"
	"library-circulation-backend/internal/repository"
)

type notificationService struct {
	store  repository.Transactor
	window time.Duration
	clock  Clock
}

// NewNotificationService returns the in-app dispatcher. Intents whose
// fingerprint was already delivered to the patron within window are dropped.
func NewNotificationService(store repository.Transactor, window time.Duration, clock Clock) NotificationService {
	if clock == nil {
		clock = time.Now
	}
	return &notificationService{store: store, window: window, clock: clock}
}

func (s *notificationService) Dispatch(ctx context.Context, intents []domain.NotificationIntent) (*DispatchResult, error) {
	result := &DispatchResult{}
	if len(intents) == 0 {
		return result, nil
	}
	now := s.clock().UTC()
	since := now.Add(-s.window)

	err := s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
		*result = DispatchResult{}
		for _, intent := range intents {
			fp := intent.Fingerprint()
			if s.window > 0 {
				seen, err := r.Notifications.ExistsSince(ctx, intent.PatronID, fp, since)
				if err != nil {
					return err
				}
				if seen {
					result.Suppressed++
					continue
				}
			}
			note := renderNotification(intent, fp, now)
			if err := r.Notifications.Create(ctx, note); err != nil {
				return err
			}
			result.Delivered++
		}
		return nil
	})
	if err != nil {
		logger.Error("Notification dispatch failed", "intents", len(intents), "error", err)
		return nil, err
	}

	logger.Info("Notifications dispatched", "delivered", result.Delivered, "suppressed", result.Suppressed)
	return result, nil
}

func renderNotification(intent domain.NotificationIntent, fingerprint string, now time.Time) *domain.Notification {
	note := &domain.Notification{
		PatronID:    intent.PatronID,
		Kind:        intent.Kind,
		Fingerprint: fingerprint,
		CreatedOn:   now,
		Attributes:  map[string]string{"intent_id": intent.ID},
	}
	attr := func(key string, id int64) {
		if id != 0 {
			note.Attributes[key] = strconv.FormatInt(id, 10)
		}
	}
	attr("title_id", intent.TitleID)
	attr("copy_id", intent.CopyID)
	attr("loan_id", intent.LoanID)
	attr("reservation_id", intent.ReservationID)

	switch intent.Kind {
	case domain.IntentReservationReady:
		note.Title = "Reservation ready for pickup"
		note.Message = "A copy you reserved is waiting at the desk."
		if intent.PickupBy != nil {
			note.Message = fmt.Sprintf("A copy you reserved is waiting at the desk until %s.", intent.PickupBy.UTC().Format(time.RFC1123))
			note.Attributes["pickup_by"] = intent.PickupBy.UTC().Format(time.RFC3339)
		}
	case domain.IntentReservationExpired:
		note.Title = "Reservation expired"
		note.Message = "Your reservation expired because the copy was not picked up in time."
	case domain.IntentLoanDue:
		note.Title = "Loan due soon"
		note.Message = "A borrowed item is due soon."
		if intent.DueAt != nil {
			note.Message = fmt.Sprintf("A borrowed item is due on %s.", intent.DueAt.UTC().Format("2006-01-02"))
			note.Attributes["due_at"] = intent.DueAt.UTC().Format(time.RFC3339)
		}
	case domain.IntentLoanOverdue:
		note.Title = "Loan overdue"
		note.Message = fmt.Sprintf("A borrowed item is %d day(s) overdue.", intent.DaysLate)
		note.Attributes["days_late"] = strconv.Itoa(intent.DaysLate)
	default:
		note.Title = "Circulation update"
		note.Message = string(intent.Kind)
	}
	return note
}

func (s *notificationService) GetNotifications(ctx context.Context, patronID int64, page, pageSize int32) ([]domain.Notification, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var (
		notes []domain.Notification
		total int32
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		notes, total, err = r.Notifications.List(ctx, patronID, pageSize, offset)
		return err
	})
	return notes, total, err
}

func (s *notificationService) MarkAsRead(ctx context.Context, patronID, notificationID int64) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
		return r.Notifications.MarkAsRead(ctx, notificationID, patronID)
	})
}
