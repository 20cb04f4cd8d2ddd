package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"
)

// sender is the part of *tele.Bot used for announcements.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramNotifier posts announcements to a community chat.
type TelegramNotifier struct {
	bot  sender
	chat tele.Recipient
}

// NewTelegramNotifier creates a bot client for token that posts into chatID.
func NewTelegramNotifier(token string, chatID int64, timeout time.Duration) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramNotifier{bot: bot, chat: &tele.Chat{ID: chatID}}, nil
}

// Notify implements Notifier.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := n.bot.Send(n.chat, formatMessage(note), &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func formatMessage(note Notification) string {
	var b strings.Builder
	b.WriteString(note.Title)
	if note.DisplayName != "" {
		b.WriteString("\n👤 ")
		b.WriteString(note.DisplayName)
	}
	if note.Message != "" {
		b.WriteString("\n")
		b.WriteString(note.Message)
	}
	if note.Link != "" {
		b.WriteString("\n")
		b.WriteString(note.Link)
	}
	return b.String()
}
