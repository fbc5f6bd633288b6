package email

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	mail "gopkg.in/gomail.v2"
)

// SMTPConfig describes the relay used by SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     From
}

// dialer is the part of gomail.Dialer SMTPSender uses.
type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPSender delivers mail through an SMTP relay with gomail. It opens one
// connection per message; volumes here never justify a pooled daemon.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer dialer
}

// NewSMTPSender returns a Sender for cfg. TLS is negotiated with STARTTLS
// when the server offers it.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return &SMTPSender{cfg: cfg, dialer: d}
}

// Send builds a MIME message for msg and hands it to the relay. SMTP has no
// provider ID, so the generated Message-ID is returned instead.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	// gomail has no context support; bail early if the caller already gave up.
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: smtp: %w", ErrDelivery, err)
	}

	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.cfg.Host)

	m := mail.NewMessage()
	m.SetAddressHeader("From", s.cfg.From.Addr, s.cfg.From.Name)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", id)
	m.SetBody("text/html", msg.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("%w: smtp %s:%d: %w", ErrDelivery, s.cfg.Host, s.cfg.Port, err)
	}
	return id, nil
}
