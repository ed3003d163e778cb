package checkin

import (
	"context"

	"github.com/google/uuid"
)

type Repo interface {
	Insert(ctx context.Context, c *CheckIn) error
	// LatestPerUser returns one row per user carrying that user's newest checked_at.
	LatestPerUser(ctx context.Context) ([]CheckIn, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]CheckIn, error)
}
