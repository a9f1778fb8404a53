package service

import (
	"context"
	"errors"
	"time"

	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/logger"
	"library-circulation-backend/internal/repository"
)

// SweepFailure is one item a sweep pass could not process.
type SweepFailure struct {
	ItemID int64
	Err    error
}

// SweepReport summarises one pass over the dataset.
type SweepReport struct {
	Pass       string
	StartedAt  time.Time
	FinishedAt time.Time
	Processed  int
	Succeeded  int
	Skipped    int
	Failures   []SweepFailure
	Intents    []domain.NotificationIntent
}

func newSweepReport(pass string, now time.Time) *SweepReport {
	return &SweepReport{Pass: pass, StartedAt: now}
}

// apply folds the outcome of one item into the report. It returns a non-nil
// error only when the pass must stop: persistence is gone or ctx is done.
func (r *SweepReport) apply(itemID int64, t *txn, err error) error {
	r.Processed++
	switch {
	case err == nil && t.skipped:
		r.Skipped++
		r.Intents = append(r.Intents, t.intents...)
	case err == nil:
		r.Succeeded++
		r.Intents = append(r.Intents, t.intents...)
	case errors.Is(err, repository.ErrUnavailable), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.Failures = append(r.Failures, SweepFailure{ItemID: itemID, Err: err})
		return err
	default:
		logger.Error("Sweep item failed", "pass", r.Pass, "itemID", itemID, "error", err)
		r.Failures = append(r.Failures, SweepFailure{ItemID: itemID, Err: err})
	}
	return nil
}

func (r *SweepReport) finish(now time.Time) *SweepReport {
	r.FinishedAt = now
	logger.Info("Sweep pass completed",
		"pass", r.Pass,
		"processed", r.Processed,
		"succeeded", r.Succeeded,
		"skipped", r.Skipped,
		"failed", len(r.Failures),
		"intents", len(r.Intents),
		"duration", r.FinishedAt.Sub(r.StartedAt))
	return r
}
