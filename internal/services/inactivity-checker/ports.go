package checker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/Deadswitch/internal/domain/checkin"
	"github.com/NordCoder/Deadswitch/internal/domain/contact"
	"github.com/NordCoder/Deadswitch/internal/domain/notification"
)

type CheckInSource interface {
	LatestPerUser(ctx context.Context) ([]checkin.CheckIn, error)
}

type Roster interface {
	EmailsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type ContactSource interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]contact.Contact, error)
}

type LogReader interface {
	ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*notification.LogEntry, error)
}

type LogWriter interface {
	Append(ctx context.Context, e *notification.LogEntry) error
}

type CheckInHistory interface {
	Insert(ctx context.Context, c *checkin.CheckIn) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]checkin.CheckIn, error)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock reads the wall clock in UTC.
var SystemClock notification.Clock = systemClock{}
