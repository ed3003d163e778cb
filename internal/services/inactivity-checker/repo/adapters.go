package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/Deadswitch/internal/domain/kafka"
	"github.com/NordCoder/Deadswitch/internal/domain/notification"
	"github.com/NordCoder/Deadswitch/internal/domain/outbox"
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NotificationLog appends log entries. With an Outbox set, each entry also enqueues
// a notification-logged event in the same transaction.
type NotificationLog struct {
	R      notification.LogRepo
	Outbox outbox.Repository
	Tx     Transactor
}

func (a NotificationLog) ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*notification.LogEntry, error) {
	return a.R.ListSince(ctx, userID, since)
}

func (a NotificationLog) Append(ctx context.Context, e *notification.LogEntry) error {
	if a.Outbox == nil || a.Tx == nil {
		return a.R.Append(ctx, e)
	}
	return a.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := a.R.Append(ctx, e); err != nil {
			return err
		}
		data, err := json.Marshal(kafka.NotificationLogged{
			UserID:    e.UserID,
			ContactID: e.ContactID.UUID,
			Status:    string(e.Status),
			SentAt:    e.SentAt,
		})
		if err != nil {
			return fmt.Errorf("marshal notification-logged: %w", err)
		}
		key := fmt.Sprintf("notification-log:%d", e.ID)
		return a.Outbox.Enqueue(ctx, key, outbox.KindNotificationLogged, data)
	})
}
