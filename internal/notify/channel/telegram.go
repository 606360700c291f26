package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"focusd/internal/notify"
)

// Telegram sends notifications to a user's linked telegram chat. It is an
// optional channel: envelopes only request it when the token is configured
// at startup.
type Telegram struct {
	bot   *tele.Bot
	users UserLookup
}

func NewTelegram(token string, users UserLookup) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	// No poller: this bot only sends.
	b, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, users: users}, nil
}

func (t *Telegram) Send(ctx context.Context, env notify.Envelope) error {
	u, err := t.users.User(ctx, env.UserID)
	if err != nil {
		return fmt.Errorf("resolve chat: %w", err)
	}
	if u.TelegramChatID == 0 {
		return fmt.Errorf("user %s has no linked telegram chat", env.UserID)
	}

	title, body := Format(env)
	text := "*" + escapeMarkdown(title) + "*"
	if body != "" {
		text += "\n" + escapeMarkdown(body)
	}

	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(&tele.Chat{ID: u.TelegramChatID}, text, tele.ModeMarkdownV2)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(15 * time.Second):
		return errors.New("telegram send timed out")
	}
}

var markdownEscaper = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }
