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

var loanColumns = []interface{}{
	"id", "copy_id", "title_id", "patron_id", "borrowed_at", "due_at", "returned_at", "extensions_count", "updated_on",
}

type loanRepository struct {
	db sqlx.ExtContext
}

func (r *loanRepository) Create(ctx context.Context, l *domain.Loan) error {
	logger.EnterMethod("loanRepository.Create", "copyID", l.CopyID, "patronID", l.PatronID)

	now := time.Now().UTC()
	query := `INSERT INTO loans (copy_id, title_id, patron_id, borrowed_at, due_at, returned_at, extensions_count, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	logger.DatabaseCall("INSERT", "loans", "copyID", l.CopyID)
	err := r.db.QueryRowxContext(ctx, query, l.CopyID, l.TitleID, l.PatronID, l.BorrowedAt, l.DueAt, l.ReturnedAt, l.ExtensionsCount, now).Scan(&l.ID)
	logger.DatabaseResult("INSERT", 1, err, "loanID", l.ID)
	if err != nil {
		err = mapError("create loan", err)
		logger.ExitMethodWithError("loanRepository.Create", err)
		return err
	}
	l.UpdatedOn = now

	logger.ExitMethod("loanRepository.Create", "loanID", l.ID)
	return nil
}

func (r *loanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	query, args, err := toSQL(dialect.From("loans").Prepared(true).
		Select(loanColumns...).
		Where(goqu.C("id").Eq(id)))
	if err != nil {
		return nil, err
	}
	var l domain.Loan
	if err := sqlx.GetContext(ctx, r.db, &l, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("loan", id)
		}
		return nil, mapError("get loan", err)
	}
	return &l, nil
}

func (r *loanRepository) Update(ctx context.Context, l *domain.Loan) error {
	now := time.Now().UTC()
	query := `UPDATE loans SET due_at = $1, returned_at = $2, extensions_count = $3, updated_on = $4 WHERE id = $5`
	res, err := r.db.ExecContext(ctx, query, l.DueAt, l.ReturnedAt, l.ExtensionsCount, now, l.ID)
	if err != nil {
		return mapError("update loan", err)
	}
	if err := expectOneRow(res, "loan", l.ID); err != nil {
		return err
	}
	l.UpdatedOn = now
	return nil
}

func (r *loanRepository) GetOpenByCopy(ctx context.Context, copyID int64) (*domain.Loan, error) {
	query, args, err := toSQL(dialect.From("loans").Prepared(true).
		Select(loanColumns...).
		Where(goqu.C("copy_id").Eq(copyID), goqu.C("returned_at").IsNull()))
	if err != nil {
		return nil, err
	}
	var l domain.Loan
	if err := sqlx.GetContext(ctx, r.db, &l, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("get open loan", err)
	}
	return &l, nil
}

func (r *loanRepository) CountOpenByPatron(ctx context.Context, patronID int64) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, `SELECT count(*) FROM loans WHERE patron_id = $1 AND returned_at IS NULL`, patronID)
	if err != nil {
		return 0, mapError("count open loans", err)
	}
	return n, nil
}

func (r *loanRepository) ListOverdue(ctx context.Context, before time.Time) ([]domain.Loan, error) {
	return r.listOpen(ctx, goqu.C("due_at").Lt(before))
}

func (r *loanRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.Loan, error) {
	return r.listOpen(ctx, goqu.C("due_at").Gte(from), goqu.C("due_at").Lt(to))
}

func (r *loanRepository) listOpen(ctx context.Context, conds ...goqu.Expression) ([]domain.Loan, error) {
	conds = append(conds, goqu.C("returned_at").IsNull())
	query, args, err := toSQL(dialect.From("loans").Prepared(true).
		Select(loanColumns...).
		Where(conds...).
		Order(goqu.C("due_at").Asc(), goqu.C("id").Asc()))
	if err != nil {
		return nil, err
	}
	var loans []domain.Loan
	if err := sqlx.SelectContext(ctx, r.db, &loans, query, args...); err != nil {
		return nil, mapError("list open loans", err)
	}
	return loans, nil
}
