package kafka

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type NotificationLogged struct {
	UserID    uuid.UUID `json:"user_id"`
	ContactID uuid.UUID `json:"contact_id"`
	Status    string    `json:"status"`
	SentAt    time.Time `json:"sent_at"`
}

type NotificationEvents interface {
	PublishNotificationLogged(ctx context.Context, ev NotificationLogged) error
}
