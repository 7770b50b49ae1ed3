package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramFetchTimeout = 30 * time.Second

// TelegramProvider adapts the Telegram Bot API to the Provider contract.
// getUpdates acknowledges consumed updates, so the provider keeps its own
// bounded window of recent messages to preserve re-emission semantics for
// messages the pipeline has not finished with.
type TelegramProvider struct {
	bot    *tgbotapi.BotAPI
	client *http.Client
	logger *slog.Logger

	offset int
	window []RawMessage
}

func NewTelegramProvider(bot *tgbotapi.BotAPI, logger *slog.Logger) *TelegramProvider {
	return &TelegramProvider{
		bot:    bot,
		client: &http.Client{Timeout: telegramFetchTimeout},
		logger: logger,
	}
}

// Recent drains pending updates into the window and returns the most recent
// limit messages, oldest first.
func (p *TelegramProvider) Recent(ctx context.Context, limit int) ([]RawMessage, error) {
	u := tgbotapi.NewUpdate(p.offset)
	u.Limit = 100
	updates, err := p.bot.GetUpdates(u)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}

	for _, update := range updates {
		if update.UpdateID >= p.offset {
			p.offset = update.UpdateID + 1
		}
		if update.Message == nil || update.Message.From == nil {
			continue
		}
		p.window = append(p.window, p.convert(ctx, update.Message))
	}
	if len(p.window) > limit {
		p.window = p.window[len(p.window)-limit:]
	}

	out := make([]RawMessage, len(p.window))
	copy(out, p.window)
	return out, nil
}

func (p *TelegramProvider) convert(ctx context.Context, msg *tgbotapi.Message) RawMessage {
	raw := RawMessage{
		ID:     fmt.Sprintf("tg-%d-%d", msg.Chat.ID, msg.MessageID),
		Sender: strconv.FormatInt(msg.From.ID, 10),
		SentAt: time.Unix(int64(msg.Date), 0),
		Text:   msg.Text,
	}

	if len(msg.Photo) > 0 {
		// Last photo size is the largest rendition.
		ps := msg.Photo[len(msg.Photo)-1]
		if data, err := p.download(ctx, ps.FileID); err != nil {
			p.logger.Warn("photo download failed", "message_id", raw.ID, "err", err)
		} else {
			raw.Attachments = append(raw.Attachments, RawAttachment{
				Filename: "photo.jpg",
				Data:     data,
			})
		}
	}

	if doc := msg.Document; doc != nil && isImageFilename(doc.FileName) {
		if data, err := p.download(ctx, doc.FileID); err != nil {
			p.logger.Warn("document download failed", "message_id", raw.ID, "err", err)
		} else {
			raw.Attachments = append(raw.Attachments, RawAttachment{
				Filename: doc.FileName,
				Data:     data,
			})
		}
	}

	return raw
}

func (p *TelegramProvider) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := p.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch file: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
