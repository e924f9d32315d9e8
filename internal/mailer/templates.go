package mailer

import (
	"bytes"
	"fmt"
	"net/url"
	"text/template"
)

const verifyEmailText = `Welcome to EventDesk!

Please confirm your email address by opening the link below:

{{.Link}}

The link expires on {{.ExpiresAt}}. If it has expired you can request a new
one from the sign in page.

You are receiving this email because this address was used to create an
EventDesk account. If that was not you, ignore this message.
`

const welcomeEmailText = `Your email address is confirmed.

You can now sign in to EventDesk and start browsing or organizing events.
`

var (
	verifyEmailTemplate  = template.Must(template.New("verify_email").Parse(verifyEmailText))
	welcomeEmailTemplate = template.Must(template.New("welcome_email").Parse(welcomeEmailText))
)

// Renderer turns a Message into a subject and plain text body.
type Renderer struct {
	verifyURL string
}

func NewRenderer(verifyURL string) *Renderer {
	return &Renderer{verifyURL: verifyURL}
}

func (r *Renderer) Render(msg Message) (string, string, error) {
	if err := msg.Validate(); err != nil {
		return "", "", err
	}

	switch msg.Kind {
	case KindVerification:
		link, err := r.verificationLink(msg.Token)
		if err != nil {
			return "", "", err
		}
		body, err := execute(verifyEmailTemplate, struct {
			Link      string
			ExpiresAt string
		}{
			Link:      link,
			ExpiresAt: msg.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"),
		})
		return "Verify your email address", body, err
	default:
		body, err := execute(welcomeEmailTemplate, nil)
		return "Your EventDesk account is ready", body, err
	}
}

func (r *Renderer) verificationLink(token string) (string, error) {
	u, err := url.Parse(r.verifyURL)
	if err != nil {
		return "", fmt.Errorf("parse verify url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func execute(t *template.Template, data any) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
