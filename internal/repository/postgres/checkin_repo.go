package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/NordCoder/Deadswitch/internal/domain/checkin"
)

var _ checkin.Repo = (*CheckInRepo)(nil)

type CheckInRepo struct{ db *DB }

func NewCheckInRepo(db *DB) *CheckInRepo { return &CheckInRepo{db: db} }

const (
	qCheckInInsert = `
INSERT INTO check_ins (user_id, checked_at)
VALUES ($1, COALESCE($2, now()))
RETURNING id, checked_at, created_at;`

	qCheckInLatestPerUser = `
SELECT user_id, max(checked_at)
FROM check_ins
GROUP BY user_id;`

	qCheckInByUser = `
SELECT id, user_id, checked_at, created_at
FROM check_ins
WHERE user_id = $1
ORDER BY checked_at DESC
LIMIT $2;`
)

func (r *CheckInRepo) Insert(ctx context.Context, c *checkin.CheckIn) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.execQueryer(ctx).QueryRow(ctx, qCheckInInsert, c.UserID, nullTime(c.CheckedAt)).
		Scan(&c.ID, &c.CheckedAt, &c.CreatedAt); err != nil {
		return fmt.Errorf("insert check-in: %w", mapPgError(err))
	}
	return nil
}

func (r *CheckInRepo) LatestPerUser(ctx context.Context) ([]checkin.CheckIn, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qCheckInLatestPerUser)
	if err != nil {
		return nil, fmt.Errorf("query latest check-ins: %w", err)
	}
	defer rows.Close()

	var out []checkin.CheckIn
	for rows.Next() {
		var c checkin.CheckIn
		if err := rows.Scan(&c.UserID, &c.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *CheckInRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]checkin.CheckIn, error) {
	if limit <= 0 {
		limit = 60
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qCheckInByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query check-ins: %w", err)
	}
	defer rows.Close()

	out := make([]checkin.CheckIn, 0, limit)
	for rows.Next() {
		var c checkin.CheckIn
		if err := rows.Scan(&c.ID, &c.UserID, &c.CheckedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
