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

var reservationColumns = []interface{}{
	"id", "title_id", "patron_id", "copy_id", "loan_id", "status", "reserved_at",
	"expires_at", "fulfilled_at", "cancelled_at", "expired_at", "updated_on",
}

var activeReservation = goqu.C("status").Eq(string(domain.ReservationStatusActive))

type reservationRepository struct {
	db sqlx.ExtContext
}

func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	now := time.Now().UTC()
	query := `INSERT INTO reservations (title_id, patron_id, copy_id, loan_id, status, reserved_at, expires_at, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	logger.DatabaseCall("INSERT", "reservations", "titleID", res.TitleID, "patronID", res.PatronID)
	err := r.db.QueryRowxContext(ctx, query, res.TitleID, res.PatronID, res.CopyID, res.LoanID, res.Status, res.ReservedAt, res.ExpiresAt, now).Scan(&res.ID)
	logger.DatabaseResult("INSERT", 1, err, "reservationID", res.ID)
	if err != nil {
		return mapError("create reservation", err)
	}
	res.UpdatedOn = now
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	res, err := r.getOne(ctx, goqu.C("id").Eq(id))
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, domain.NotFound("reservation", id)
	}
	return res, nil
}

func (r *reservationRepository) Update(ctx context.Context, res *domain.Reservation) error {
	now := time.Now().UTC()
	query := `UPDATE reservations
	          SET copy_id = $1, loan_id = $2, status = $3, expires_at = $4, fulfilled_at = $5,
	              cancelled_at = $6, expired_at = $7, updated_on = $8
	          WHERE id = $9`
	result, err := r.db.ExecContext(ctx, query, res.CopyID, res.LoanID, res.Status, res.ExpiresAt,
		res.FulfilledAt, res.CancelledAt, res.ExpiredAt, now, res.ID)
	if err != nil {
		return mapError("update reservation", err)
	}
	if err := expectOneRow(result, "reservation", res.ID); err != nil {
		return err
	}
	res.UpdatedOn = now
	return nil
}

func (r *reservationRepository) ListQueued(ctx context.Context, titleID int64) ([]domain.Reservation, error) {
	return r.list(ctx,
		[]goqu.Expression{goqu.C("title_id").Eq(titleID), activeReservation, goqu.C("copy_id").IsNull()},
		goqu.C("reserved_at").Asc(), goqu.C("id").Asc())
}

func (r *reservationRepository) GetActiveByPatron(ctx context.Context, patronID, titleID int64) (*domain.Reservation, error) {
	return r.getOne(ctx, goqu.C("patron_id").Eq(patronID), goqu.C("title_id").Eq(titleID), activeReservation)
}

func (r *reservationRepository) GetActiveByCopy(ctx context.Context, copyID int64) (*domain.Reservation, error) {
	return r.getOne(ctx, goqu.C("copy_id").Eq(copyID), activeReservation)
}

func (r *reservationRepository) ListLapsed(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	return r.list(ctx,
		[]goqu.Expression{activeReservation, goqu.C("copy_id").IsNotNull(), goqu.C("expires_at").Lt(now)},
		goqu.C("expires_at").Asc(), goqu.C("id").Asc())
}

func (r *reservationRepository) getOne(ctx context.Context, conds ...goqu.Expression) (*domain.Reservation, error) {
	query, args, err := toSQL(dialect.From("reservations").Prepared(true).
		Select(reservationColumns...).
		Where(conds...))
	if err != nil {
		return nil, err
	}
	var res domain.Reservation
	if err := sqlx.GetContext(ctx, r.db, &res, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("get reservation", err)
	}
	return &res, nil
}

func (r *reservationRepository) list(ctx context.Context, conds []goqu.Expression, order ...exp.OrderedExpression) ([]domain.Reservation, error) {
	query, args, err := toSQL(dialect.From("reservations").Prepared(true).
		Select(reservationColumns...).
		Where(conds...).
		Order(order...))
	if err != nil {
		return nil, err
	}
	var out []domain.Reservation
	if err := sqlx.SelectContext(ctx, r.db, &out, query, args...); err != nil {
		return nil, mapError("list reservations", err)
	}
	return out, nil
}
