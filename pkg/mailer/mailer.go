package mailer

import (
	"errors"

	"gopkg.in/gomail.v2"
)

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends HTML mail through an SMTP relay.
type Mailer struct {
	cfg    Config
	dialer *gomail.Dialer
}

// New validates the configuration and returns a Mailer.
func New(cfg Config) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}

	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

// From returns the configured sender address.
func (m *Mailer) From() string {
	return m.cfg.From
}

// SendHTML sends a single HTML message. The dial and send both happen per
// call; the SMTP session is not reused.
func (m *Mailer) SendHTML(from string, to []string, subject, htmlBody string) error {
	if len(to) == 0 {
		return errors.New("no recipients specified")
	}
	if from == "" {
		from = m.cfg.From
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	return m.dialer.DialAndSend(msg)
}
