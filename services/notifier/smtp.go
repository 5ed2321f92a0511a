package notifier

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"courierd/pkg/mailer"
)

// SMTPSender adapts the SMTP mailer to the delivery contract, for
// deployments that relay straight to an MTA instead of a provider API.
type SMTPSender struct {
	mailer *mailer.Mailer
}

// NewSMTPSender wraps an SMTP mailer as a Sender.
func NewSMTPSender(m *mailer.Mailer) (*SMTPSender, error) {
	if m == nil {
		return nil, errors.New("mailer is required")
	}
	return &SMTPSender{mailer: m}, nil
}

// Send relays the envelope over SMTP. SMTP gives no provider message id, so
// a locally generated one is returned for log correlation. All SMTP
// failures are classified retryable, like network errors.
func (s *SMTPSender) Send(ctx context.Context, env Envelope) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &DeliveryError{Message: err.Error(), Retryable: true}
	}

	if err := s.mailer.SendHTML(env.Sender, env.Recipients, env.Subject, env.HTMLBody); err != nil {
		return "", &DeliveryError{Message: err.Error(), Retryable: true}
	}
	return uuid.NewString(), nil
}
