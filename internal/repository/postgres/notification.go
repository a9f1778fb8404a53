package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"library-circulation-backend/internal/domain"
	"library-circulation-backend/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type notificationRepository struct {
	db sqlx.ExtContext
}

type notificationRow struct {
	domain.Notification
	AttributesJSON []byte `db:"attributes"`
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	logger.EnterMethod("notificationRepository.Create", "patronID", n.PatronID, "kind", n.Kind)

	attrs, err := json.Marshal(n.Attributes)
	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Create", err, "reason", "failed to marshal attributes")
		return err
	}

	if n.CreatedOn.IsZero() {
		n.CreatedOn = time.Now().UTC()
	}
	query := `INSERT INTO notifications (patron_id, kind, title, message, is_read, fingerprint, attributes, created_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	logger.DatabaseCall("INSERT", "notifications", "patronID", n.PatronID)
	err = r.db.QueryRowxContext(ctx, query, n.PatronID, n.Kind, n.Title, n.Message, n.IsRead, n.Fingerprint, attrs, n.CreatedOn).Scan(&n.ID)
	logger.DatabaseResult("INSERT", 1, err, "notificationID", n.ID)

	if err != nil {
		err = mapError("create notification", err)
		logger.ExitMethodWithError("notificationRepository.Create", err, "patronID", n.PatronID)
		return err
	}
	logger.ExitMethod("notificationRepository.Create", "notificationID", n.ID)
	return nil
}

func (r *notificationRepository) ExistsSince(ctx context.Context, patronID int64, fingerprint string, since time.Time) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM notifications WHERE patron_id = $1 AND fingerprint = $2 AND created_on >= $3)`
	if err := sqlx.GetContext(ctx, r.db, &exists, query, patronID, fingerprint, since); err != nil {
		return false, mapError("check notification", err)
	}
	return exists, nil
}

func (r *notificationRepository) List(ctx context.Context, patronID int64, limit, offset int32) ([]domain.Notification, int32, error) {
	var count int32
	if err := sqlx.GetContext(ctx, r.db, &count, `SELECT count(*) FROM notifications WHERE patron_id = $1`, patronID); err != nil {
		return nil, 0, mapError("count notifications", err)
	}

	query := `SELECT id, patron_id, kind, title, message, is_read, fingerprint, attributes, created_on
	          FROM notifications WHERE patron_id = $1 ORDER BY created_on DESC, id DESC LIMIT $2 OFFSET $3`
	var rows []notificationRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, patronID, limit, offset); err != nil {
		return nil, 0, mapError("list notifications", err)
	}

	notes := make([]domain.Notification, 0, len(rows))
	for _, row := range rows {
		n := row.Notification
		if len(row.AttributesJSON) > 0 {
			if err := json.Unmarshal(row.AttributesJSON, &n.Attributes); err != nil {
				return nil, 0, err
			}
		}
		notes = append(notes, n)
	}
	return notes, count, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, patronID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND patron_id = $2`, id, patronID)
	if err != nil {
		return mapError("mark notification read", err)
	}
	return expectOneRow(res, "notification", id)
}
