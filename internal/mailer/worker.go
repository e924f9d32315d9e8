package mailer

import (
	"context"
	"errors"

	"github.com/eventdesk/accounts/internal/logging"
	"github.com/eventdesk/accounts/internal/mq"
)

// Subscriber is the part of the message queue the worker needs.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Worker drains queued email jobs and delivers them through a gateway.
type Worker struct {
	queue   Subscriber
	channel string
	gateway Gateway
	log     logging.Logger
}

func NewWorker(queue Subscriber, channel string, gateway Gateway, log logging.Logger) *Worker {
	return &Worker{queue: queue, channel: channel, gateway: gateway, log: log}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info(ctx, "mailer worker started", "channel", w.channel)
	err := w.queue.Subscribe(ctx, w.channel, w.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle delivers one job. Malformed jobs are acknowledged and dropped;
// delivery failures are returned so the broker redelivers.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	var job Message
	if err := msg.Decode(&job); err != nil {
		w.log.Error(ctx, "dropping undecodable email job", "message_id", msg.ID, "error", err)
		return nil
	}
	if err := job.Validate(); err != nil {
		w.log.Error(ctx, "dropping invalid email job", "message_id", msg.ID, "error", err)
		return nil
	}

	if err := w.gateway.Send(ctx, job); err != nil {
		w.log.Warn(ctx, "email job failed",
			"message_id", msg.ID, "kind", job.Kind, "identity_id", job.IdentityID,
			"redelivered", msg.Redelivered, "error", err)
		return err
	}
	w.log.Info(ctx, "email sent", "message_id", msg.ID, "kind", job.Kind, "identity_id", job.IdentityID)
	return nil
}
