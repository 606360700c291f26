package channel

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"focusd/internal/notify"
	"focusd/internal/storage"
)

// UserLookup resolves the recipient address for an envelope.
type UserLookup interface {
	User(ctx context.Context, id string) (storage.User, error)
}

// SMTPConfig configures the email channel. Username may be empty for
// unauthenticated relays (local testing).
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// SMTPEmail delivers notifications by plain-text mail over SMTP.
type SMTPEmail struct {
	cfg   SMTPConfig
	users UserLookup

	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPEmail(cfg SMTPConfig, users UserLookup) *SMTPEmail {
	return &SMTPEmail{cfg: cfg, users: users, send: smtp.SendMail}
}

func (e *SMTPEmail) Send(ctx context.Context, env notify.Envelope) error {
	u, err := e.users.User(ctx, env.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	if u.Email == "" {
		return fmt.Errorf("user %s has no email address", env.UserID)
	}

	title, body := Format(env)
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", u.Email)
	fmt.Fprintf(&msg, "Subject: %s\r\n", title)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	if err := e.send(addr, auth, e.cfg.From, []string{u.Email}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
