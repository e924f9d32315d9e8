// Package mailer delivers account notification emails: directly over SMTP,
// through the message queue for the mailer worker, or to the log in
// development.
package mailer

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Kind selects the email template.
type Kind string

const (
	KindVerification Kind = "verification"
	KindWelcome      Kind = "welcome"
)

// Message is a request to notify one identity.
type Message struct {
	Kind       Kind      `json:"kind"`
	To         string    `json:"to"`
	IdentityID string    `json:"identity_id"`
	Token      string    `json:"token,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

// Validate rejects messages that cannot be rendered.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("mailer: recipient is required")
	}
	switch m.Kind {
	case KindVerification:
		if m.Token == "" {
			return errors.New("mailer: verification email needs a token")
		}
	case KindWelcome:
	default:
		return errors.New("mailer: unknown message kind " + string(m.Kind))
	}
	return nil
}

// Gateway accepts a message for delivery. A nil error means the message was
// handed off, not that it reached the inbox.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}
