package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"library-circulation-backend/internal/audit"
	"library-circulation-backend/internal/config"
	"library-circulation-backend/internal/jobs"
	"library-circulation-backend/internal/logger"
	"library-circulation-backend/internal/repository"
	"library-circulation-backend/internal/repository/memory"
	"library-circulation-backend/internal/repository/postgres"
	"library-circulation-backend/internal/scheduler"
	"library-circulation-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'expire-ready-reservations', 'all-sweeps')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting circulation sweep runner...", "log_level", cfg.Log.Level, "storage", cfg.Storage.Type)

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	recorder, closeAudit, err := openAudit(cfg)
	if err != nil {
		logger.Error("Failed to open audit log", "error", err)
		log.Fatalf("Failed to open audit log: %v", err)
	}
	defer closeAudit()

	// Initialize Services
	policy := cfg.Policy()
	jobServices := &jobs.Services{
		Loans:         service.NewLoanService(store, policy, recorder, nil),
		Reservations:  service.NewReservationService(store, policy, recorder, nil),
		Fines:         service.NewFineService(store, policy, recorder, nil),
		Patrons:       service.NewPatronService(store, policy, recorder, nil),
		Notifications: service.NewNotificationService(store, cfg.DedupeWindow(), nil),
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(jobServices, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if err := runJobOnce(jobRunner, *runOnce); err != nil {
			logger.Error("Job execution failed", "job", *runOnce, "error", err)
			store.Close()
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Sweep scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down sweep scheduler...")
	cronScheduler.Stop()
	logger.Info("Sweep scheduler stopped. Goodbye!")
}

// openStore connects the configured persistence backend
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.Storage.Type == "memory" {
		logger.Warn("Using in-memory storage; state is lost on exit")
		return memory.NewStore(), nil
	}

	logger.Info("Connecting to database...", "driver", cfg.Database.Driver, "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := postgres.Open(ctx, cfg.Database.Driver, cfg.GetDatabaseConnectionString(), cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	logger.Info("Database connection established")

	store := postgres.NewStore(db, postgres.RetryPolicy{MaxAttempts: cfg.Database.RetryAttempts})
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("Database schema applied")
	}
	return store, nil
}

// openAudit builds the configured audit sink
func openAudit(cfg *config.Config) (audit.Recorder, func(), error) {
	switch cfg.Audit.Sink {
	case "sqlite":
		rec, err := audit.OpenSQLite(cfg.Audit.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Audit log opened", "path", cfg.Audit.Path)
		return rec, func() { rec.Close() }, nil
	case "none":
		return audit.Nop{}, func() {}, nil
	default:
		return audit.LogRecorder{}, func() {}, nil
	}
}

// runJobOnce runs a specific job once
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) error {
	switch jobName {
	case "expire-ready-reservations":
		return jobRunner.ExpireReadyReservations()
	case "assess-overdue-fines":
		return jobRunner.AssessOverdueFines()
	case "block-delinquent-patrons":
		return jobRunner.BlockDelinquentPatrons()
	case "send-due-reminders":
		return jobRunner.SendDueReminders()
	case "all-sweeps":
		return jobRunner.RunAllSweeps()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - expire-ready-reservations\n")
		fmt.Printf("  - assess-overdue-fines\n")
		fmt.Printf("  - block-delinquent-patrons\n")
		fmt.Printf("  - send-due-reminders\n")
		fmt.Printf("  - all-sweeps\n")
		return fmt.Errorf("unknown job %q", jobName)
	}
}
