// Package source polls an external messaging provider and yields normalized
// inbound events: receipt images and chat text from the monitored
// counterparty.
package source

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"dimeagent/internal/domain"
)

// Source filters and normalizes raw provider messages. The in-memory seen-ID
// cache is a fast pre-filter in front of the durable processed-message
// ledger; it is seeded from the store at startup and fed by the pipeline as
// events finish, so a message that failed terminally in an earlier cycle is
// re-emitted while it remains inside the provider's window.
type Source struct {
	provider  Provider
	monitored string // normalized; empty accepts all senders
	limit     int
	logger    *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

type Config struct {
	Provider       Provider
	MonitoredPhone string
	MessageLimit   int
	Logger         *slog.Logger
}

func New(cfg Config) *Source {
	monitored := ""
	if cfg.MonitoredPhone != "" {
		monitored = NormalizePhone(cfg.MonitoredPhone)
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = 50
	}
	return &Source{
		provider:  cfg.Provider,
		monitored: monitored,
		limit:     cfg.MessageLimit,
		logger:    cfg.Logger,
		seen:      make(map[string]struct{}),
	}
}

// Seed preloads the seen-ID cache, typically from the store's processed
// markers, so a restart does not reprocess history.
func (s *Source) Seed(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.seen[id] = struct{}{}
	}
	s.logger.Info("seeded seen-message cache", "count", len(ids))
}

// MarkSeen records a message ID so later polls skip it.
func (s *Source) MarkSeen(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[messageID] = struct{}{}
}

func (s *Source) isSeen(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[messageID]
	return ok
}

// Poll fetches the provider's recent window and returns inbound events in
// the provider's chronological order. Per-message problems are logged and
// skipped; Poll itself never fails the cycle.
func (s *Source) Poll(ctx context.Context) []domain.InboundEvent {
	msgs, err := s.provider.Recent(ctx, s.limit)
	if err != nil {
		s.logger.Error("provider poll failed", "err", err)
		return nil
	}

	var events []domain.InboundEvent
	for _, msg := range msgs {
		if msg.ID == "" {
			continue
		}
		if s.isSeen(msg.ID) {
			continue
		}
		if !s.senderAllowed(msg.Sender) {
			continue
		}

		imageCount := 0
		for _, att := range msg.Attachments {
			if !isImageFilename(att.Filename) {
				continue
			}
			data := att.Data
			if data == nil {
				data, err = os.ReadFile(att.Path)
				if err != nil {
					s.logger.Warn("attachment unreadable, skipping",
						"message_id", msg.ID, "path", att.Path, "err", err)
					continue
				}
			}
			events = append(events, domain.InboundEvent{
				MessageID:  msg.ID,
				Sender:     msg.Sender,
				ReceivedAt: msg.SentAt,
				Image:      &domain.ImagePayload{Data: data, MIMEType: mimeTypeFor(att.Filename)},
			})
			imageCount++
			s.logger.Info("new receipt image",
				"message_id", msg.ID, "sender", msg.Sender, "file", att.Filename)
		}

		// A message is an image event or a text event, never both.
		if imageCount == 0 && strings.TrimSpace(msg.Text) != "" {
			events = append(events, domain.InboundEvent{
				MessageID:  msg.ID,
				Sender:     msg.Sender,
				ReceivedAt: msg.SentAt,
				Text:       msg.Text,
			})
		}
	}

	return events
}

func (s *Source) senderAllowed(sender string) bool {
	if sender == "" {
		return false
	}
	if s.monitored == "" {
		return true
	}
	return NormalizePhone(sender) == s.monitored
}
