package jobs

import (
	"context"
	"fmt"
	"time"

	"library-circulation-backend/internal/config"
	"library-circulation-backend/internal/logger"
	"library-circulation-backend/internal/service"
)

// JobRunner coordinates all scheduled sweep passes
type JobRunner struct {
	services *Services
	config   *config.Config
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Loans         service.LoanService
	Reservations  service.ReservationService
	Fines         service.FineService
	Patrons       service.PatronService
	Notifications service.NotificationService
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *Services, cfg *config.Config) *JobRunner {
	return &JobRunner{
		services: services,
		config:   cfg,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery. A panicking or
// failing job is logged and reported as an error; it never takes down the
// scheduler.
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func() error) (err error) {
	log := logger.WithJob(jobName)
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
	}()

	log.Info("Starting job")
	if err = jobFunc(); err != nil {
		log.Error("Job failed", "error", err, "duration", time.Since(started))
		return err
	}
	log.Info("Job completed", "duration", time.Since(started))
	return nil
}

// runSweep runs one pass and hands whatever intents it produced to the
// dispatcher, including those of a pass that stopped early.
func (jr *JobRunner) runSweep(jobName string, pass func(ctx context.Context) (*service.SweepReport, error)) error {
	return jr.runWithRecovery(jobName, func() error {
		ctx := context.Background()
		report, err := pass(ctx)
		if report != nil {
			jr.dispatch(ctx, jobName, report.Intents)
			logger.Info("Sweep report",
				"job", jobName,
				"processed", report.Processed,
				"succeeded", report.Succeeded,
				"skipped", report.Skipped,
				"failed", len(report.Failures))
		}
		return err
	})
}

// RunAllSweeps runs every pass once (for manual execution). All passes run
// even if an earlier one fails; the first error is returned.
func (jr *JobRunner) RunAllSweeps() error {
	var first error
	for _, job := range []func() error{
		jr.ExpireReadyReservations,
		jr.AssessOverdueFines,
		jr.BlockDelinquentPatrons,
		jr.SendDueReminders,
	} {
		if err := job(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
