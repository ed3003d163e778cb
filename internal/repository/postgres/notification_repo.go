package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/Deadswitch/internal/domain/notification"
)

var _ notification.LogRepo = (*NotificationLogRepo)(nil)

type NotificationLogRepo struct{ db *DB }

func NewNotificationLogRepo(db *DB) *NotificationLogRepo { return &NotificationLogRepo{db: db} }

const (
	qNotifInsert = `
INSERT INTO notification_logs (user_id, contact_id, sent_at, status)
VALUES ($1, $2, COALESCE($3, now()), $4)
RETURNING id, sent_at;
`
	qNotifSince = `
SELECT id, user_id, contact_id, sent_at, status
FROM notification_logs
WHERE user_id = $1 AND sent_at >= $2
ORDER BY sent_at DESC;
`
)

// Append runs inside the transaction carried by ctx when there is one.
func (r *NotificationLogRepo) Append(ctx context.Context, e *notification.LogEntry) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.execQueryer(ctx).QueryRow(ctx, qNotifInsert,
		e.UserID,
		e.ContactID,
		nullTime(e.SentAt),
		string(e.Status),
	).Scan(&e.ID, &e.SentAt); err != nil {
		return fmt.Errorf("insert notification log: %w", mapPgError(err))
	}
	return nil
}

func (r *NotificationLogRepo) ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*notification.LogEntry, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qNotifSince, userID, since)
	if err != nil {
		return nil, fmt.Errorf("query notification logs: %w", err)
	}
	defer rows.Close()

	var out []*notification.LogEntry
	for rows.Next() {
		var (
			e      notification.LogEntry
			status string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.ContactID, &e.SentAt, &status); err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		e.Status = notification.Status(status)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
