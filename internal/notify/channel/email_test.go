package channel

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"focusd/internal/notify"
	"focusd/internal/storage"
)

type staticUsers struct {
	user storage.User
	err  error
}

func (s staticUsers) User(ctx context.Context, id string) (storage.User, error) {
	return s.user, s.err
}

func TestSMTPEmailBuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)
	e := NewSMTPEmail(SMTPConfig{
		Host: "mail.example", Port: 587, From: "focusd@example.com",
	}, staticUsers{user: storage.User{ID: "u1", Email: "user@example.com"}})
	e.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	env := notify.NewEnvelope("u1", notify.DailyCheckPayload{OpenGoals: 3}, notify.ChannelEmail)
	if err := e.Send(context.Background(), env); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "mail.example:587" {
		t.Fatalf("addr = %q", gotAddr)
	}
	if gotFrom != "focusd@example.com" || len(gotTo) != 1 || gotTo[0] != "user@example.com" {
		t.Fatalf("from=%q to=%v", gotFrom, gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: Daily check-in") {
		t.Fatalf("missing subject in %q", gotMsg)
	}
	if !strings.Contains(gotMsg, "3 open goals") {
		t.Fatalf("missing body in %q", gotMsg)
	}
}

func TestSMTPEmailRequiresAddress(t *testing.T) {
	e := NewSMTPEmail(SMTPConfig{Host: "mail.example", Port: 25, From: "x@y"},
		staticUsers{user: storage.User{ID: "u1"}})
	e.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send called without recipient")
		return nil
	}
	env := notify.NewEnvelope("u1", notify.SystemPayload{Message: "x"}, notify.ChannelEmail)
	if err := e.Send(context.Background(), env); err == nil {
		t.Fatal("expected error for user without email")
	}
}
