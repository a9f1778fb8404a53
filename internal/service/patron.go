package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"library-circulation-backend/internal/audit"
	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/logger"
	"library-circulation-backend/internal/repository"
	"library-circulation-backend/internal/utils"
)

type patronService struct {
	*engine
}

func NewPatronService(store repository.Transactor, policy domain.Policy, recorder audit.Recorder, clock Clock) PatronService {
	return &patronService{engine: newEngine(store, policy, recorder, clock)}
}

// BlockDelinquentPatrons blocks every unblocked patron whose active fines
// reach maxUnpaidFines or whose oldest open loan is overdue by at least
// maxOverdueDays. A zero threshold disables that criterion.
func (s *patronService) BlockDelinquentPatrons(ctx context.Context, maxUnpaidFines decimal.Decimal, maxOverdueDays int) (*SweepReport, error) {
	now := s.clock().UTC()
	report := newSweepReport("block-delinquent-patrons", now)

	var candidates []domain.Delinquency
	err := s.read(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		candidates, err = r.Patrons.ListDelinquencies(ctx, now)
		return err
	})
	if err != nil {
		return report.finish(s.clock().UTC()), err
	}

	for _, d := range candidates {
		if err := ctx.Err(); err != nil {
			return report.finish(s.clock().UTC()), err
		}
		reason := blockReason(d, now, maxUnpaidFines, maxOverdueDays)
		if reason == "" {
			report.Processed++
			report.Skipped++
			continue
		}
		t, err := s.run(ctx, func(ctx context.Context, t *txn) error {
			patron, err := t.Patrons.GetByID(ctx, d.PatronID)
			if err != nil {
				return err
			}
			if patron.Blocked {
				t.skip()
				return nil
			}
			if err := t.Patrons.SetBlocked(ctx, patron.ID, reason, t.now); err != nil {
				return err
			}
			logger.Info("Patron blocked", "patronID", patron.ID, "reason", reason)
			t.record("patron.blocked", "patron", patron.ID, patron.ID, map[string]any{"reason": reason})
			return nil
		})
		if stop := report.apply(d.PatronID, t, err); stop != nil {
			return report.finish(s.clock().UTC()), stop
		}
	}
	return report.finish(s.clock().UTC()), nil
}

func blockReason(d domain.Delinquency, now time.Time, maxUnpaidFines decimal.Decimal, maxOverdueDays int) string {
	if maxUnpaidFines.IsPositive() && d.UnpaidFines.GreaterThanOrEqual(maxUnpaidFines) {
		return fmt.Sprintf("unpaid fines %s reach limit %s", d.UnpaidFines.StringFixed(2), maxUnpaidFines.StringFixed(2))
	}
	if maxOverdueDays > 0 && d.OldestDueAt != nil {
		if days := utils.CalendarDaysBetween(*d.OldestDueAt, now); days >= maxOverdueDays {
			return fmt.Sprintf("loan overdue %d days, limit %d", days, maxOverdueDays)
		}
	}
	return ""
}

func (s *patronService) GetPatron(ctx context.Context, patronID int64) (*domain.Patron, error) {
	var patron *domain.Patron
	err := s.read(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		patron, err = r.Patrons.GetByID(ctx, patronID)
		return err
	})
	return patron, err
}
