package outbox

import (
	"context"
	"time"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	// StatusDead rows are never picked again.
	StatusDead Status = "DEAD"
)

type Kind int

const (
	KindNotificationLogged Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindNotificationLogged:
		return "notification_logged"
	default:
		return "unknown"
	}
}

type Message struct {
	IdempotencyKey string
	Kind           Kind
	Data           []byte
	Status         Status
	// Attempts counts picks, including the one that returned this message.
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository interface {
	// Enqueue is a no-op when key already exists.
	Enqueue(ctx context.Context, key string, kind Kind, data []byte) error
	// PickBatch claims up to batch CREATED rows, plus IN_PROGRESS rows older than inProgressTTL.
	PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Message, error)
	MarkSuccess(ctx context.Context, keys []string) error
	MarkDead(ctx context.Context, keys []string) error
	// Purge deletes SUCCESS and DEAD rows last touched before cutoff.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

type KindHandler func(ctx context.Context, data []byte) error

type GlobalHandler func(kind Kind) (KindHandler, error)
