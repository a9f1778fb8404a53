package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/logger"
)

var titleColumns = []interface{}{"id", "isbn", "name", "total_copies", "available_copies", "created_on", "updated_on"}

type titleRepository struct {
	db sqlx.ExtContext
}

func (r *titleRepository) Create(ctx context.Context, t *domain.Title) error {
	now := time.Now().UTC()
	query := `INSERT INTO titles (isbn, name, total_copies, available_copies, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`
	logger.DatabaseCall("INSERT", "titles", "isbn", t.ISBN)
	err := r.db.QueryRowxContext(ctx, query, t.ISBN, t.Name, t.TotalCopies, t.AvailableCopies, now).Scan(&t.ID)
	logger.DatabaseResult("INSERT", 1, err, "titleID", t.ID)
	if err != nil {
		return mapError("create title", err)
	}
	t.CreatedOn, t.UpdatedOn = now, now
	return nil
}

func (r *titleRepository) GetByID(ctx context.Context, id int64) (*domain.Title, error) {
	return r.get(ctx, id, false)
}

func (r *titleRepository) Lock(ctx context.Context, id int64) (*domain.Title, error) {
	return r.get(ctx, id, true)
}

func (r *titleRepository) get(ctx context.Context, id int64, forUpdate bool) (*domain.Title, error) {
	ds := dialect.From("titles").Prepared(true).
		Select(titleColumns...).
		Where(goqu.C("id").Eq(id))
	if forUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}
	query, args, err := toSQL(ds)
	if err != nil {
		return nil, err
	}

	var t domain.Title
	if err := sqlx.GetContext(ctx, r.db, &t, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("title", id)
		}
		return nil, mapError("get title", err)
	}
	return &t, nil
}

func (r *titleRepository) UpdateCounters(ctx context.Context, id int64, total, available int) error {
	query := `UPDATE titles SET total_copies = $1, available_copies = $2, updated_on = $3 WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, total, available, time.Now().UTC(), id)
	if err != nil {
		return mapError("update title counters", err)
	}
	return expectOneRow(res, "title", id)
}

// expectOneRow turns a zero-row UPDATE into NotFound.
func expectOneRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError("rows affected", err)
	}
	if n == 0 {
		return domain.NotFound(entity, id)
	}
	return nil
}
