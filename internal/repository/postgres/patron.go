package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"library-circulation-backend/internal/domain"
)

type patronRepository struct {
	db sqlx.ExtContext
}

func (r *patronRepository) Create(ctx context.Context, p *domain.Patron) error {
	query := `INSERT INTO patrons (name, email, tier, role, blocked, blocked_reason, blocked_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if p.Role == "" {
		p.Role = domain.PatronRoleMember
	}
	err := r.db.QueryRowxContext(ctx, query, p.Name, p.Email, p.Tier, p.Role, p.Blocked, p.BlockedReason, p.BlockedOn).Scan(&p.ID)
	return mapError("create patron", err)
}

func (r *patronRepository) GetByID(ctx context.Context, id int64) (*domain.Patron, error) {
	query := `SELECT id, name, email, tier, role, blocked, blocked_reason, blocked_on FROM patrons WHERE id = $1`
	var p domain.Patron
	if err := sqlx.GetContext(ctx, r.db, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("patron", id)
		}
		return nil, mapError("get patron", err)
	}
	return &p, nil
}

func (r *patronRepository) SetBlocked(ctx context.Context, id int64, reason string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE patrons SET blocked = TRUE, blocked_reason = $1, blocked_on = $2 WHERE id = $3`, reason, at, id)
	if err != nil {
		return mapError("block patron", err)
	}
	return expectOneRow(res, "patron", id)
}

const delinquencyQuery = `
SELECT p.id AS patron_id,
       COALESCE(f.unpaid, 0) AS unpaid_fines,
       l.oldest_due_at
FROM patrons p
LEFT JOIN (
    SELECT patron_id, SUM(amount) AS unpaid
    FROM fines WHERE status = 'active'
    GROUP BY patron_id
) f ON f.patron_id = p.id
LEFT JOIN (
    SELECT patron_id, MIN(due_at) AS oldest_due_at
    FROM loans WHERE returned_at IS NULL AND due_at < $1
    GROUP BY patron_id
) l ON l.patron_id = p.id
WHERE p.blocked = FALSE AND (f.unpaid IS NOT NULL OR l.oldest_due_at IS NOT NULL)
ORDER BY p.id`

func (r *patronRepository) ListDelinquencies(ctx context.Context, now time.Time) ([]domain.Delinquency, error) {
	var out []domain.Delinquency
	if err := sqlx.SelectContext(ctx, r.db, &out, delinquencyQuery, now); err != nil {
		return nil, mapError("list delinquencies", err)
	}
	return out, nil
}
