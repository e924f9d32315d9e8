package mailer

import (
	"context"
	"fmt"

	"github.com/eventdesk/accounts/internal/mq"
)

// Publisher is the part of the message queue the gateway needs.
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, v any, attrs map[string]string) (string, error)
}

// QueueGateway hands messages to the mailer worker through the broker.
type QueueGateway struct {
	queue   Publisher
	channel string
}

func NewQueueGateway(queue Publisher, channel string) *QueueGateway {
	return &QueueGateway{queue: queue, channel: channel}
}

func (g *QueueGateway) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if _, err := g.queue.PublishJSON(ctx, g.channel, msg, map[string]string{mq.AttrKind: string(msg.Kind)}); err != nil {
		return fmt.Errorf("enqueue %s email: %w", msg.Kind, err)
	}
	return nil
}
