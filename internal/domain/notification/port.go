package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type LogRepo interface {
	Append(ctx context.Context, e *LogEntry) error
	ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*LogEntry, error)
}
