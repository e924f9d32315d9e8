package mailer

import (
	"context"

	"github.com/eventdesk/accounts/internal/logging"
)

// LogGateway writes messages to the log instead of sending them. It is the
// development transport.
type LogGateway struct {
	renderer *Renderer
	log      logging.Logger
}

func NewLogGateway(verifyURL string, log logging.Logger) *LogGateway {
	return &LogGateway{renderer: NewRenderer(verifyURL), log: log}
}

func (g *LogGateway) Send(ctx context.Context, msg Message) error {
	subject, body, err := g.renderer.Render(msg)
	if err != nil {
		return err
	}
	g.log.Info(ctx, "email", "to", msg.To, "kind", msg.Kind, "subject", subject, "body", body)
	return nil
}
