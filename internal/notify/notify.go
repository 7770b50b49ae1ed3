// Package notify delivers outbound messages to the counterparty through the
// configured messaging provider, normalizing the destination address.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"dimeagent/internal/imessage"
	"dimeagent/internal/source"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// IMessage sends through the Messages app.
type IMessage struct {
	client *imessage.Client
	logger *slog.Logger
}

func NewIMessage(client *imessage.Client, logger *slog.Logger) *IMessage {
	return &IMessage{client: client, logger: logger}
}

func (n *IMessage) Send(ctx context.Context, to, text string) error {
	dest := source.NormalizePhone(to)
	if err := n.client.Send(ctx, dest, text); err != nil {
		return fmt.Errorf("imessage send to %s: %w", dest, err)
	}
	n.logger.Info("message sent", "to", dest, "len", len(text))
	return nil
}

// Telegram sends through the Bot API. The destination is the counterparty's
// numeric chat ID, possibly wrapped in the same +digits canonical form used
// for sender filtering.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

func NewTelegram(bot *tgbotapi.BotAPI, logger *slog.Logger) *Telegram {
	return &Telegram{bot: bot, logger: logger}
}

func (n *Telegram) Send(ctx context.Context, to, text string) error {
	chatID, err := strconv.ParseInt(strings.TrimLeft(to, "+"), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", to, err)
	}
	if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	n.logger.Info("message sent", "chat_id", chatID, "len", len(text))
	return nil
}
