package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"library-circulation-backend/internal/logger"
	"library-circulation-backend/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

var dialect = goqu.Dialect("postgres")

// Store is the Postgres-backed repository.Store. Every unit of work runs in its
// own READ COMMITTED transaction; queue paths serialise on the title row lock.
type Store struct {
	db    *sqlx.DB
	retry RetryPolicy
}

// Open connects with the given driver ("postgres" for lib/pq, "pgx" for the
// pgx stdlib driver) and pings the server.
func Open(ctx context.Context, driver, dsn string, maxOpenConns int) (*sqlx.DB, error) {
	switch driver {
	case "postgres", "pgx":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, repository.Unavailable(fmt.Errorf("failed to ping database: %w", err))
	}
	return db, nil
}

func NewStore(db *sqlx.DB, retry RetryPolicy) *Store {
	return &Store{db: db, retry: retry.withDefaults()}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	logger.Info("Applying database schema")
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return mapError("migrate", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn in a transaction, retrying the whole unit of work on
// serialization failures and deadlocks.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	return s.retry.run(ctx, func(ctx context.Context) error {
		return s.runTx(ctx, fn)
	})
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapError("begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Warn("Rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(ctx, reposFor(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return mapError("commit", err)
	}
	return nil
}

func reposFor(ext sqlx.ExtContext) repository.Repos {
	return repository.Repos{
		Titles:        &titleRepository{db: ext},
		Copies:        &copyRepository{db: ext},
		Loans:         &loanRepository{db: ext},
		Reservations:  &reservationRepository{db: ext},
		Fines:         &fineRepository{db: ext},
		Patrons:       &patronRepository{db: ext},
		Notifications: &notificationRepository{db: ext},
	}
}

// Repos returns repositories bound directly to the pool, outside any
// transaction. Used for read-only lookups and tests.
func (s *Store) Repos() repository.Repos {
	return reposFor(s.db)
}

// toSQL renders a goqu dataset as a prepared statement.
func toSQL(ds interface {
	ToSQL() (string, []interface{}, error)
}) (string, []interface{}, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build query: %w", err)
	}
	return query, args, nil
}
