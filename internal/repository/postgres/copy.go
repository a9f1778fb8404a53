package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"library-circulation-backend/internal/domain"
)

var copyColumns = []interface{}{
	"id", "title_id", "status", "inventory_code", "location", "access_tier", "condition_note", "created_on", "updated_on",
}

type copyRepository struct {
	db sqlx.ExtContext
}

func (r *copyRepository) Create(ctx context.Context, c *domain.Copy) error {
	now := time.Now().UTC()
	query := `INSERT INTO copies (title_id, status, inventory_code, location, access_tier, condition_note, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query, c.TitleID, c.Status, c.InventoryCode, c.Location, c.AccessTier, c.ConditionNote, now).Scan(&c.ID)
	if err != nil {
		return mapError("create copy", err)
	}
	c.CreatedOn, c.UpdatedOn = now, now
	return nil
}

func (r *copyRepository) GetByID(ctx context.Context, id int64) (*domain.Copy, error) {
	query, args, err := toSQL(dialect.From("copies").Prepared(true).
		Select(copyColumns...).
		Where(goqu.C("id").Eq(id)))
	if err != nil {
		return nil, err
	}
	var c domain.Copy
	if err := sqlx.GetContext(ctx, r.db, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("copy", id)
		}
		return nil, mapError("get copy", err)
	}
	return &c, nil
}

func (r *copyRepository) UpdateStatus(ctx context.Context, id int64, status domain.CopyStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE copies SET status = $1, updated_on = $2 WHERE id = $3`, status, time.Now().UTC(), id)
	if err != nil {
		return mapError("update copy status", err)
	}
	return expectOneRow(res, "copy", id)
}

func (r *copyRepository) ListByTitle(ctx context.Context, titleID int64) ([]domain.Copy, error) {
	query, args, err := toSQL(dialect.From("copies").Prepared(true).
		Select(copyColumns...).
		Where(goqu.C("title_id").Eq(titleID)).
		Order(goqu.C("id").Asc()))
	if err != nil {
		return nil, err
	}
	var copies []domain.Copy
	if err := sqlx.SelectContext(ctx, r.db, &copies, query, args...); err != nil {
		return nil, mapError("list copies", err)
	}
	return copies, nil
}

func (r *copyRepository) FindAvailable(ctx context.Context, titleID int64) (*domain.Copy, error) {
	query, args, err := toSQL(dialect.From("copies").Prepared(true).
		Select(copyColumns...).
		Where(goqu.Ex{"title_id": titleID, "status": string(domain.CopyStatusAvailable)}).
		Order(goqu.C("id").Asc()).
		Limit(1))
	if err != nil {
		return nil, err
	}
	var c domain.Copy
	if err := sqlx.GetContext(ctx, r.db, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("find available copy", err)
	}
	return &c, nil
}
