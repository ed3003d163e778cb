package kafka

import (
	"context"

	"github.com/NordCoder/Deadswitch/internal/domain/kafka"
)

const EventNotificationLogged = "notification.logged"

type NotificationEventsKafka struct {
	p *Producer
}

func NewNotificationEventsKafka(p *Producer) *NotificationEventsKafka {
	return &NotificationEventsKafka{p: p}
}

var _ kafka.NotificationEvents = (*NotificationEventsKafka)(nil)

// PublishNotificationLogged keys by user so one user's events stay ordered within a partition.
func (e *NotificationEventsKafka) PublishNotificationLogged(ctx context.Context, ev kafka.NotificationLogged) error {
	return e.p.PublishJSON(ctx, EventNotificationLogged, []byte(ev.UserID.String()), ev)
}
