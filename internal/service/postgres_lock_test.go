package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation-backend/internal/audit"
	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/repository/postgres"
	"library-circulation-backend/internal/service"
)

// ReturnLoan against Postgres takes the title row lock before it reads the
// reservation queue, so two releases on one title cannot pick the same head.
func TestReturnLoan_LocksTitleBeforeReadingQueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := postgres.NewStore(sqlx.NewDb(db, "postgres"), postgres.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond})

	now := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	borrowedAt := now.Add(-72 * time.Hour)
	dueAt := now.Add(24 * time.Hour)
	loanCols := []string{"id", "copy_id", "title_id", "patron_id", "borrowed_at", "due_at", "returned_at", "extensions_count", "updated_on"}
	titleCols := []string{"id", "isbn", "name", "total_copies", "available_copies", "created_on", "updated_on"}
	copyCols := []string{"id", "title_id", "status", "inventory_code", "location", "access_tier", "condition_note", "created_on", "updated_on"}
	resCols := []string{"id", "title_id", "patron_id", "copy_id", "loan_id", "status", "reserved_at",
		"expires_at", "fulfilled_at", "cancelled_at", "expired_at", "updated_on"}
	loanRow := func() *sqlmock.Rows {
		return sqlmock.NewRows(loanCols).AddRow(10, 3, 1, 20, borrowedAt, dueAt, nil, 0, borrowedAt)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM "loans" WHERE`).WillReturnRows(loanRow())
	mock.ExpectQuery(`SELECT (.+) FROM "titles" (.+) FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(titleCols).AddRow(1, "978-0", "Dune", 1, 0, borrowedAt, borrowedAt))
	mock.ExpectQuery(`SELECT (.+) FROM "loans" WHERE`).WillReturnRows(loanRow())
	mock.ExpectExec(`UPDATE loans SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT (.+) FROM "copies" WHERE .*"id" = `).
		WillReturnRows(sqlmock.NewRows(copyCols).AddRow(3, 1, "BORROWED", "dune-A", "main", "", "", borrowedAt, borrowedAt))
	mock.ExpectQuery(`SELECT (.+) FROM "reservations" WHERE (.+)"copy_id" IS NULL(.+) ORDER BY "reserved_at" ASC, "id" ASC`).
		WillReturnRows(sqlmock.NewRows(resCols).
			AddRow(40, 1, 21, nil, nil, "ACTIVE", borrowedAt, nil, nil, nil, nil, borrowedAt))
	mock.ExpectExec(`UPDATE copies SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT (.+) FROM "copies" WHERE .*"title_id" = `).
		WillReturnRows(sqlmock.NewRows(copyCols).AddRow(3, 1, "RESERVED", "dune-A", "main", "", "", borrowedAt, now))
	mock.ExpectExec(`UPDATE titles SET total_copies`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE reservations`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	loans := service.NewLoanService(store, domain.DefaultPolicy(), audit.Nop{}, func() time.Time { return now })
	res, err := loans.ReturnLoan(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, domain.CopyStatusReserved, res.Copy.Status)
	require.Len(t, res.Intents, 1)
	assert.Equal(t, domain.IntentReservationReady, res.Intents[0].Kind)
	assert.Equal(t, int64(21), res.Intents[0].PatronID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
