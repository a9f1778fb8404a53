package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"library-circulation-backend/internal/audit"
	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/logger"
	"library-circulation-backend/internal/repository"
)

type fineService struct {
	*engine
}

func NewFineService(store repository.Transactor, policy domain.Policy, recorder audit.Recorder, clock Clock) FineService {
	return &fineService{engine: newEngine(store, policy, recorder, clock)}
}

// AssessOverdueFines charges every open loan overdue by more than graceDays.
// A rate that is not positive falls back to the policy rate.
// A loan that already carries an active fine is left untouched, so the pass
// can run at any cadence. A loan.overdue intent goes out for every overdue
// loan on every run; the dispatcher dedupes them.
func (s *fineService) AssessOverdueFines(ctx context.Context, dailyRate decimal.Decimal, currency string, graceDays int) (*SweepReport, error) {
	now := s.clock().UTC()
	report := newSweepReport("assess-overdue-fines", now)

	if dailyRate.IsNegative() {
		logger.Warn("Negative daily fine rate, using policy rate", "dailyRate", dailyRate.String(), "policyRate", s.policy.FineDailyRate.String())
	}
	if !dailyRate.IsPositive() {
		dailyRate = s.policy.FineDailyRate
	}
	if currency == "" {
		currency = s.policy.FineCurrency
	}
	if graceDays < 0 {
		graceDays = 0
	}

	var overdue []domain.Loan
	err := s.read(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		overdue, err = r.Loans.ListOverdue(ctx, now)
		return err
	})
	if err != nil {
		return report.finish(s.clock().UTC()), err
	}

	logger.Info("Assessing overdue fines", "loans", len(overdue), "dailyRate", dailyRate.StringFixed(2), "currency", currency, "graceDays", graceDays)

	for _, candidate := range overdue {
		if err := ctx.Err(); err != nil {
			return report.finish(s.clock().UTC()), err
		}
		t, err := s.run(ctx, func(ctx context.Context, t *txn) error {
			return assessOne(ctx, t, candidate.ID, dailyRate, currency, graceDays)
		})
		if errors.Is(err, domain.ErrConflict) {
			// a concurrent pass inserted the fine first
			report.Processed++
			report.Skipped++
			report.Intents = append(report.Intents, overdueIntent(&candidate, candidate.DaysOverdue(now), now))
			continue
		}
		if stop := report.apply(candidate.ID, t, err); stop != nil {
			return report.finish(s.clock().UTC()), stop
		}
	}
	return report.finish(s.clock().UTC()), nil
}

func assessOne(ctx context.Context, t *txn, loanID int64, dailyRate decimal.Decimal, currency string, graceDays int) error {
	loan, err := t.Loans.GetByID(ctx, loanID)
	if err != nil {
		return err
	}
	days := loan.DaysOverdue(t.now)
	if days == 0 {
		// returned or extended since the candidate list was read
		t.skip()
		return nil
	}
	t.emit(overdueIntent(loan, days, t.now))

	amount := domain.ComputeOverdueFine(dailyRate, days, graceDays)
	if amount.IsZero() {
		t.skip()
		return nil
	}

	existing, err := t.Fines.GetActiveByLoan(ctx, loan.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		t.skip()
		return nil
	}

	fine := &domain.Fine{
		LoanID:     loan.ID,
		PatronID:   loan.PatronID,
		Amount:     amount,
		Currency:   currency,
		Reason:     domain.FineReasonOverdue,
		Status:     domain.FineStatusActive,
		AssessedAt: t.now,
	}
	if err := t.Fines.Create(ctx, fine); err != nil {
		return err
	}

	logger.Info("Fine assessed", "fineID", fine.ID, "loanID", loan.ID, "patronID", loan.PatronID, "daysOverdue", days, "amount", amount.StringFixed(2))
	t.record("fine.assessed", "fine", fine.ID, loan.PatronID, map[string]any{
		"loan_id":      loan.ID,
		"days_overdue": days,
		"amount":       amount.StringFixed(2),
		"currency":     currency,
	})
	return nil
}

func overdueIntent(loan *domain.Loan, days int, now time.Time) domain.NotificationIntent {
	due := loan.DueAt
	return domain.NotificationIntent{
		ID:        newIntentID(),
		Kind:      domain.IntentLoanOverdue,
		PatronID:  loan.PatronID,
		TitleID:   loan.TitleID,
		CopyID:    loan.CopyID,
		LoanID:    loan.ID,
		DaysLate:  days,
		DueAt:     &due,
		CreatedAt: now,
	}
}

func (s *fineService) ListFines(ctx context.Context, patronID int64) ([]domain.Fine, error) {
	var fines []domain.Fine
	err := s.read(ctx, func(ctx context.Context, r repository.Repos) error {
		if _, err := r.Patrons.GetByID(ctx, patronID); err != nil {
			return err
		}
		var err error
		fines, err = r.Fines.ListByPatron(ctx, patronID)
		return err
	})
	return fines, err
}
