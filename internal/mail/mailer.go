package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gomail "github.com/go-mail/mail/v2"
)

// Mailer delivers transactional mail. Delivery is an external collaborator;
// the auth flows only depend on this interface.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, link string, ttl time.Duration) error
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	dialer := gomail.NewDialer(host, port, username, password)
	dialer.Timeout = 30 * time.Second
	switch port {
	case 587:
		dialer.StartTLSPolicy = gomail.MandatoryStartTLS
	case 465:
		dialer.SSL = true
		dialer.StartTLSPolicy = gomail.NoStartTLS
	default:
		dialer.StartTLSPolicy = gomail.OpportunisticStartTLS
	}
	return &SMTPMailer{dialer: dialer, from: from}
}

func (s *SMTPMailer) SendPasswordReset(_ context.Context, to, link string, ttl time.Duration) error {
	minutes := int(ttl.Minutes())
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "[coinwatch] Password reset link")
	m.SetBody("text/plain", fmt.Sprintf("Reset your password with the link below (valid for %d minutes):\n%s\n", minutes, link))
	m.AddAlternative("text/html", fmt.Sprintf("<p>Reset your password with the button below (valid for %d minutes).</p><p><a href=%q>Reset password</a></p>", minutes, link))
	return s.dialer.DialAndSend(m)
}

// LogMailer stands in when SMTP is not configured. It only logs the target
// address, never the reset link itself.
type LogMailer struct {
	Logger *slog.Logger
}

func (l LogMailer) SendPasswordReset(ctx context.Context, to, _ string, ttl time.Duration) error {
	l.Logger.InfoContext(ctx, "password reset mail skipped, smtp not configured", "to", to, "ttl", ttl)
	return nil
}
