package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/logger"
)

var fineColumns = []interface{}{
	"id", "loan_id", "patron_id", "amount", "currency", "reason", "status", "assessed_at", "updated_on",
}

type fineRepository struct {
	db sqlx.ExtContext
}

func (r *fineRepository) Create(ctx context.Context, f *domain.Fine) error {
	now := time.Now().UTC()
	query := `INSERT INTO fines (loan_id, patron_id, amount, currency, reason, status, assessed_at, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	logger.DatabaseCall("INSERT", "fines", "loanID", f.LoanID, "amount", f.Amount.StringFixed(2))
	err := r.db.QueryRowxContext(ctx, query, f.LoanID, f.PatronID, f.Amount, f.Currency, f.Reason, f.Status, f.AssessedAt, now).Scan(&f.ID)
	logger.DatabaseResult("INSERT", 1, err, "fineID", f.ID)
	if err != nil {
		return mapError("create fine", err)
	}
	f.UpdatedOn = now
	return nil
}

func (r *fineRepository) GetActiveByLoan(ctx context.Context, loanID int64) (*domain.Fine, error) {
	query, args, err := toSQL(dialect.From("fines").Prepared(true).
		Select(fineColumns...).
		Where(goqu.Ex{"loan_id": loanID, "status": string(domain.FineStatusActive)}))
	if err != nil {
		return nil, err
	}
	var f domain.Fine
	if err := sqlx.GetContext(ctx, r.db, &f, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("get active fine", err)
	}
	return &f, nil
}

func (r *fineRepository) ListByPatron(ctx context.Context, patronID int64) ([]domain.Fine, error) {
	query, args, err := toSQL(dialect.From("fines").Prepared(true).
		Select(fineColumns...).
		Where(goqu.C("patron_id").Eq(patronID)).
		Order(goqu.C("assessed_at").Desc(), goqu.C("id").Desc()))
	if err != nil {
		return nil, err
	}
	var fines []domain.Fine
	if err := sqlx.SelectContext(ctx, r.db, &fines, query, args...); err != nil {
		return nil, mapError("list fines", err)
	}
	return fines, nil
}
