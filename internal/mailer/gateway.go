package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/eventdesk/accounts/config"
	"github.com/eventdesk/accounts/internal/logging"
)

// NewGateway builds the outbound gateway named by cfg.Transport. The queue
// transport needs a publisher; the others ignore it. Every transport is
// wrapped in Retrying.
func NewGateway(cfg config.MailConfig, queue Publisher, log logging.Logger) (Gateway, error) {
	var base Gateway
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "", "log":
		base = NewLogGateway(cfg.VerifyURL, log)
	case "smtp":
		smtp, err := NewSMTPGateway(cfg)
		if err != nil {
			return nil, err
		}
		base = smtp
	case "queue":
		if queue == nil {
			return nil, fmt.Errorf("mail transport %q needs a message queue", cfg.Transport)
		}
		base = NewQueueGateway(queue, cfg.Channel)
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
	return NewRetrying(base, cfg.MaxAttempts, cfg.RetryBase, log), nil
}

// NewDeliveryGateway builds the gateway the mailer worker delivers through.
// It never routes back into the queue.
func NewDeliveryGateway(cfg config.MailConfig, log logging.Logger) (Gateway, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		log.Warn(context.Background(), "smtp not configured; mailer worker will log emails")
		return NewRetrying(NewLogGateway(cfg.VerifyURL, log), cfg.MaxAttempts, cfg.RetryBase, log), nil
	}
	smtp, err := NewSMTPGateway(cfg)
	if err != nil {
		return nil, err
	}
	return NewRetrying(smtp, cfg.MaxAttempts, cfg.RetryBase, log), nil
}
