package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/eventdesk/accounts/internal/logging"
)

const (
	defaultMaxAttempts = 3
	defaultRetryBase   = 200 * time.Millisecond
)

// Retrying retries a gateway with exponential backoff: base, 2*base, ...
// Validation errors are not retried.
type Retrying struct {
	next        Gateway
	maxAttempts int
	base        time.Duration
	log         logging.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRetrying(next Gateway, maxAttempts int, base time.Duration, log logging.Logger) *Retrying {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if base <= 0 {
		base = defaultRetryBase
	}
	return &Retrying{
		next:        next,
		maxAttempts: maxAttempts,
		base:        base,
		log:         log,
		sleep:       sleepContext,
	}
}

func (r *Retrying) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	var err error
	delay := r.base
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err = r.next.Send(ctx, msg); err == nil {
			return nil
		}
		if attempt == r.maxAttempts {
			break
		}
		r.log.Warn(ctx, "email send failed, retrying",
			"kind", msg.Kind, "identity_id", msg.IdentityID, "attempt", attempt, "backoff", delay, "error", err)
		if serr := r.sleep(ctx, delay); serr != nil {
			return fmt.Errorf("send %s email: %w", msg.Kind, serr)
		}
		delay *= 2
	}
	return fmt.Errorf("send %s email after %d attempts: %w", msg.Kind, r.maxAttempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
