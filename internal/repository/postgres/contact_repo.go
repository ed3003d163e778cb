package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Deadswitch/internal/domain/contact"
)

var _ contact.Repo = (*ContactRepo)(nil)

type ContactRepo struct{ db *DB }

func NewContactRepo(db *DB) *ContactRepo { return &ContactRepo{db: db} }

const (
	qContactByUser = `
SELECT id, user_id, name, email, created_at, updated_at
FROM emergency_contacts
WHERE user_id = $1
ORDER BY created_at, id;`

	qContactInsert = `
INSERT INTO emergency_contacts (user_id, name, email)
VALUES ($1, $2, $3)
RETURNING id, created_at, updated_at;`

	qContactUpdate = `
UPDATE emergency_contacts
SET name = $3, email = $4, updated_at = now()
WHERE id = $1 AND user_id = $2
RETURNING created_at, updated_at;`

	qContactDelete = `DELETE FROM emergency_contacts WHERE id = $1 AND user_id = $2;`
)

func (r *ContactRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]contact.Contact, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qContactByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var out []contact.Contact
	for rows.Next() {
		var c contact.Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *ContactRepo) Create(ctx context.Context, c *contact.Contact) error {
	if err := c.Normalize(); err != nil {
		return err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.execQueryer(ctx).QueryRow(ctx, qContactInsert, c.UserID, c.Name, c.Email).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("insert contact: %w", mapPgError(err))
	}
	return nil
}

func (r *ContactRepo) Update(ctx context.Context, c *contact.Contact) error {
	if err := c.Normalize(); err != nil {
		return err
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	err := r.db.execQueryer(ctx).QueryRow(ctx, qContactUpdate, c.ID, c.UserID, c.Name, c.Email).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update contact: %w", mapPgError(err))
	}
	return nil
}

func (r *ContactRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qContactDelete, id, userID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
