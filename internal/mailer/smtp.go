package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/mail"
	"net/url"

	"github.com/dajohi/goemail"
	"github.com/eventdesk/accounts/config"
)

// SMTPGateway sends rendered messages through an SMTPS relay.
type SMTPGateway struct {
	client      *goemail.SMTP
	mailName    string
	mailAddress string
	renderer    *Renderer
}

// NewSMTPGateway builds the relay client from the mail config.
func NewSMTPGateway(cfg config.MailConfig) (*SMTPGateway, error) {
	if cfg.SMTPHost == "" || cfg.SMTPUser == "" || cfg.SMTPPassword == "" {
		return nil, errors.New("smtp host, user and password are required")
	}

	u := &url.URL{
		Scheme: "smtps",
		User:   url.UserPassword(cfg.SMTPUser, cfg.SMTPPassword),
		Host:   cfg.SMTPHost,
	}

	a, err := mail.ParseAddress(cfg.FromAddress)
	if err != nil {
		return nil, fmt.Errorf("parse from address: %w", err)
	}

	client, err := goemail.NewSMTP(u.String(), &tls.Config{
		InsecureSkipVerify: cfg.SkipVerify,
	})
	if err != nil {
		return nil, err
	}

	return &SMTPGateway{
		client:      client,
		mailName:    a.Name,
		mailAddress: a.Address,
		renderer:    NewRenderer(cfg.VerifyURL),
	}, nil
}

func (g *SMTPGateway) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := g.renderer.Render(msg)
	if err != nil {
		return err
	}

	m := goemail.NewMessage(g.mailAddress, subject, body)
	m.SetName(g.mailName)
	m.AddTo(msg.To)
	return g.client.Send(m)
}
