package contact

import (
	"context"

	"github.com/google/uuid"
)

type Repo interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Contact, error)
	Create(ctx context.Context, c *Contact) error
	Update(ctx context.Context, c *Contact) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}
