package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusSent             Status = "sent"
	StatusFailed           Status = "failed"
	StatusSkippedNoChannel Status = "skipped_no_channel"
)

// LogEntry is one delivery attempt. Only sent and failed attempts are persisted.
type LogEntry struct {
	ID        int64         `json:"id"`
	UserID    uuid.UUID     `json:"user_id"`
	ContactID uuid.NullUUID `json:"contact_id"`
	SentAt    time.Time     `json:"sent_at"`
	Status    Status        `json:"status"`
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Clock interface {
	Now() time.Time
}
