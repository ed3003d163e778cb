package user

import (
	"context"

	"github.com/google/uuid"
)

type Repo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// EmailsByIDs returns the known emails keyed by user id; unknown ids are absent.
	EmailsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}
