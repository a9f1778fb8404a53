package jobs

import (
	"context"

	"github.com/shopspring/decimal"

	"library-circulation-backend/internal/service"
)

// ExpireReadyReservations expires uncollected earmarks and passes each copy on
// to the next patron in line
func (jr *JobRunner) ExpireReadyReservations() error {
	hours := jr.config.Circulation.PickupWindowHours
	return jr.runSweep("ExpireReadyReservations", func(ctx context.Context) (*service.SweepReport, error) {
		return jr.services.Reservations.ExpireReadyReservations(ctx, hours)
	})
}

// AssessOverdueFines charges one fine per overdue loan
func (jr *JobRunner) AssessOverdueFines() error {
	cfg := jr.config.Fines
	rate, err := decimal.NewFromString(cfg.DailyRate)
	if err != nil {
		rate = decimal.Zero // service falls back to the policy rate
	}
	return jr.runSweep("AssessOverdueFines", func(ctx context.Context) (*service.SweepReport, error) {
		return jr.services.Fines.AssessOverdueFines(ctx, rate, cfg.Currency, cfg.GraceDays)
	})
}

// BlockDelinquentPatrons blocks patrons over the unpaid-fine or overdue-days limits
func (jr *JobRunner) BlockDelinquentPatrons() error {
	cfg := jr.config.Blocking
	limit, err := decimal.NewFromString(cfg.MaxUnpaidFines)
	if err != nil {
		limit = decimal.Zero
	}
	return jr.runSweep("BlockDelinquentPatrons", func(ctx context.Context) (*service.SweepReport, error) {
		return jr.services.Patrons.BlockDelinquentPatrons(ctx, limit, cfg.OverdueDaysLimit())
	})
}

// SendDueReminders notifies patrons whose loans fall due soon
func (jr *JobRunner) SendDueReminders() error {
	within := jr.config.DueSoonWindow()
	return jr.runSweep("SendDueReminders", func(ctx context.Context) (*service.SweepReport, error) {
		return jr.services.Loans.RemindDueLoans(ctx, within)
	})
}
