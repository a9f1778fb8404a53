package service

import (
	"context"
	"fmt"
	"time"

	"library-circulation-backend/internal/audit"
	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/logger"
	"library-circulation-backend/internal/repository"
	"library-circulation-backend/internal/utils"
)

type loanService struct {
	*engine
}

func NewLoanService(store repository.Transactor, policy domain.Policy, recorder audit.Recorder, clock Clock) LoanService {
	return &loanService{engine: newEngine(store, policy, recorder, clock)}
}

// CreateLoan lends a copy to a patron. The copy must be AVAILABLE, or RESERVED
// for this same patron. If the patron holds an active reservation for the
// title it is fulfilled by this loan; a different copy it had earmarked goes
// back through the release path.
func (s *loanService) CreateLoan(ctx context.Context, patronID, copyID int64) (*LoanResult, error) {
	logger.EnterMethod("loanService.CreateLoan", "patronID", patronID, "copyID", copyID)

	result := &LoanResult{}
	t, err := s.run(ctx, func(ctx context.Context, t *txn) error {
		cp, err := lockCopy(ctx, t, copyID)
		if err != nil {
			return err
		}
		patron, err := t.Patrons.GetByID(ctx, patronID)
		if err != nil {
			return err
		}

		var held *domain.Reservation
		switch cp.Status {
		case domain.CopyStatusAvailable:
		case domain.CopyStatusReserved:
			held, err = t.Reservations.GetActiveByCopy(ctx, cp.ID)
			if err != nil {
				return err
			}
			if held == nil || held.PatronID != patronID {
				return fmt.Errorf("%w: copy %d is held for another patron", domain.ErrCopyNotAvailable, cp.ID)
			}
		default:
			return fmt.Errorf("%w: copy %d is %s", domain.ErrCopyNotAvailable, cp.ID, cp.Status)
		}
		existing, err := t.Loans.GetOpenByCopy(ctx, cp.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: copy %d is still on loan %d", domain.ErrCopyNotAvailable, cp.ID, existing.ID)
		}

		open, err := t.Loans.CountOpenByPatron(ctx, patronID)
		if err != nil {
			return err
		}
		if limit := t.policy.MaxLoansFor(patron.Tier); open >= limit {
			return fmt.Errorf("%w: %d open loans, limit %d", domain.ErrBorrowLimitExceeded, open, limit)
		}
		if patron.Blocked {
			return domain.ErrUserBlocked
		}

		if held == nil {
			if held, err = t.Reservations.GetActiveByPatron(ctx, patronID, cp.TitleID); err != nil {
				return err
			}
		}

		loan := &domain.Loan{
			CopyID:     cp.ID,
			TitleID:    cp.TitleID,
			PatronID:   patronID,
			BorrowedAt: t.now,
			DueAt:      utils.AddCalendarDays(t.now, t.policy.LoanPeriodFor(patron.Tier)),
		}
		if err := t.Loans.Create(ctx, loan); err != nil {
			return err
		}
		if err := t.setStatus(ctx, cp, domain.CopyStatusBorrowed); err != nil {
			return err
		}
		t.record("loan.created", "loan", loan.ID, patronID, map[string]any{"copy_id": cp.ID, "due_at": loan.DueAt})

		if held != nil {
			if err := fulfillWithLoan(ctx, t, held, cp.ID, loan.ID); err != nil {
				return err
			}
			result.Fulfilled = held
		}
		result.Loan, result.Copy = loan, cp
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("loanService.CreateLoan", err, "patronID", patronID, "copyID", copyID)
		return nil, err
	}

	result.Intents = t.intents
	logger.ExitMethod("loanService.CreateLoan", "loanID", result.Loan.ID, "dueAt", result.Loan.DueAt)
	return result, nil
}

// fulfillWithLoan closes the borrower's reservation against the loan. The
// copy is already BORROWED; if the reservation had earmarked another copy,
// that copy is released to the next patron in line.
func fulfillWithLoan(ctx context.Context, t *txn, res *domain.Reservation, borrowedCopyID, loanID int64) error {
	other := res.CopyID
	if err := res.Fulfill(loanID, t.now); err != nil {
		return err
	}
	if err := t.Reservations.Update(ctx, res); err != nil {
		return err
	}
	logger.Transition("reservation", res.ID, string(domain.ReservationStatusActive), string(res.Status), "loanID", loanID)
	t.record("reservation.fulfilled", "reservation", res.ID, res.PatronID, map[string]any{"loan_id": loanID})

	if other != nil && *other != borrowedCopyID {
		cp, err := t.Copies.GetByID(ctx, *other)
		if err != nil {
			return err
		}
		return t.releaseCopy(ctx, cp)
	}
	return nil
}

// ReturnLoan closes the loan and hands the copy to the release path, which
// earmarks it for the next queued reservation or shelves it.
func (s *loanService) ReturnLoan(ctx context.Context, loanID int64) (*LoanResult, error) {
	logger.EnterMethod("loanService.ReturnLoan", "loanID", loanID)

	result := &LoanResult{}
	t, err := s.run(ctx, func(ctx context.Context, t *txn) error {
		loan, err := lockLoan(ctx, t, loanID)
		if err != nil {
			return err
		}
		if !loan.IsOpen() {
			return fmt.Errorf("%w: loan %d", domain.ErrAlreadyReturned, loan.ID)
		}

		overdueDays := loan.DaysOverdue(t.now)
		returnedAt := t.now
		loan.ReturnedAt = &returnedAt
		if err := t.Loans.Update(ctx, loan); err != nil {
			return err
		}
		t.record("loan.returned", "loan", loan.ID, loan.PatronID, map[string]any{"overdue_days": overdueDays})

		cp, err := t.Copies.GetByID(ctx, loan.CopyID)
		if err != nil {
			return err
		}
		if err := t.releaseCopy(ctx, cp); err != nil {
			return err
		}
		result.Loan, result.Copy = loan, cp
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("loanService.ReturnLoan", err, "loanID", loanID)
		return nil, err
	}

	result.Intents = t.intents
	logger.ExitMethod("loanService.ReturnLoan", "loanID", loanID, "copyStatus", result.Copy.Status)
	return result, nil
}

// ExtendLoan pushes the due date back by days calendar days (the policy
// default when days <= 0).
func (s *loanService) ExtendLoan(ctx context.Context, loanID int64, days int) (*domain.Loan, error) {
	var out *domain.Loan
	_, err := s.run(ctx, func(ctx context.Context, t *txn) error {
		loan, err := lockLoan(ctx, t, loanID)
		if err != nil {
			return err
		}
		if !loan.IsOpen() {
			return fmt.Errorf("%w: loan %d", domain.ErrAlreadyReturned, loan.ID)
		}
		if loan.IsOverdue(t.now) {
			return fmt.Errorf("%w: loan %d was due %s", domain.ErrLoanOverdue, loan.ID, loan.DueAt.Format(time.DateOnly))
		}
		if loan.ExtensionsCount >= t.policy.MaxExtensions {
			return fmt.Errorf("%w: %d of %d used", domain.ErrMaxExtensionsReached, loan.ExtensionsCount, t.policy.MaxExtensions)
		}
		if days <= 0 {
			days = t.policy.ExtensionDays
		}
		if t.policy.MaxExtensionDays > 0 && days > t.policy.MaxExtensionDays {
			return fmt.Errorf("%w: %d days requested, at most %d", domain.ErrExtensionTooLong, days, t.policy.MaxExtensionDays)
		}
		if t.policy.BlockExtensionWhenReserved {
			queue, err := t.Reservations.ListQueued(ctx, loan.TitleID)
			if err != nil {
				return err
			}
			if len(queue) > 0 {
				return fmt.Errorf("%w: %d waiting", domain.ErrTitleHasWaitlist, len(queue))
			}
		}

		previous := loan.DueAt
		loan.DueAt = utils.AddCalendarDays(loan.DueAt, days)
		loan.ExtensionsCount++
		if err := t.Loans.Update(ctx, loan); err != nil {
			return err
		}
		t.record("loan.extended", "loan", loan.ID, loan.PatronID, map[string]any{
			"previous_due_at": previous,
			"due_at":          loan.DueAt,
			"extensions":      loan.ExtensionsCount,
		})
		out = loan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *loanService) GetLoan(ctx context.Context, loanID int64) (*domain.Loan, error) {
	var loan *domain.Loan
	err := s.read(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		loan, err = r.Loans.GetByID(ctx, loanID)
		return err
	})
	return loan, err
}

// RemindDueLoans emits a loan.due intent for every open loan falling due
// within the window. Nothing is written.
func (s *loanService) RemindDueLoans(ctx context.Context, within time.Duration) (*SweepReport, error) {
	now := s.clock().UTC()
	report := newSweepReport("send-due-reminders", now)

	var loans []domain.Loan
	err := s.read(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		loans, err = r.Loans.ListDueBetween(ctx, now, now.Add(within))
		return err
	})
	if err != nil {
		return report.finish(s.clock().UTC()), err
	}

	for _, loan := range loans {
		due := loan.DueAt
		report.Processed++
		report.Succeeded++
		report.Intents = append(report.Intents, domain.NotificationIntent{
			ID:        newIntentID(),
			Kind:      domain.IntentLoanDue,
			PatronID:  loan.PatronID,
			TitleID:   loan.TitleID,
			CopyID:    loan.CopyID,
			LoanID:    loan.ID,
			DueAt:     &due,
			CreatedAt: now,
		})
	}
	return report.finish(s.clock().UTC()), nil
}

// lockLoan reads a loan, locks its title and reads the loan again under the lock.
func lockLoan(ctx context.Context, t *txn, loanID int64) (*domain.Loan, error) {
	loan, err := t.Loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if _, err := t.lockTitle(ctx, loan.TitleID); err != nil {
		return nil, err
	}
	return t.Loans.GetByID(ctx, loanID)
}
