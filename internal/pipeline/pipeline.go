// Package pipeline drives the poll → dedup → extract → persist → convert →
// notify cycle and handles chat turns with the same discipline.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"dimeagent/internal/domain"
	"dimeagent/internal/metrics"
)

// Source is the pipeline's view of the message source: poll a batch, and
// feed the seen-ID cache once an event is finished with.
type Source interface {
	Poll(ctx context.Context) []domain.InboundEvent
	MarkSeen(messageID string)
}

// apologyMessage is sent when the chat backend is unreachable.
const apologyMessage = "I'm sorry, I'm having trouble connecting to the Dime brain right now. Please try again later."

// Pipeline is the single-worker orchestrator: one cycle at a time, events
// strictly sequential within a cycle.
type Pipeline struct {
	source    Source
	store     domain.Store
	extractor domain.Extractor
	ledger    domain.LedgerClient
	chat      domain.ChatService
	notifier  domain.Notifier
	interval  time.Duration
	logger    *slog.Logger

	receiptsSaved      *metrics.Counter
	extractionFailures *metrics.Counter
	chatTurns          *metrics.Counter
	chatFailures       *metrics.Counter
	ledgerFailures     *metrics.Counter
	echoesSuppressed   *metrics.Counter
	duplicatesSkipped  *metrics.Counter
}

type Config struct {
	Source    Source
	Store     domain.Store
	Extractor domain.Extractor
	Ledger    domain.LedgerClient
	Chat      domain.ChatService
	Notifier  domain.Notifier
	Interval  time.Duration
	Collector *metrics.Collector
	Logger    *slog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Collector == nil {
		cfg.Collector = metrics.NewCollector()
	}
	return &Pipeline{
		source:    cfg.Source,
		store:     cfg.Store,
		extractor: cfg.Extractor,
		ledger:    cfg.Ledger,
		chat:      cfg.Chat,
		notifier:  cfg.Notifier,
		interval:  cfg.Interval,
		logger:    cfg.Logger,

		receiptsSaved:      cfg.Collector.Counter("dimeagent_receipts_saved_total", "Receipts persisted as transactions"),
		extractionFailures: cfg.Collector.Counter("dimeagent_extraction_failures_total", "Terminal extraction failures"),
		chatTurns:          cfg.Collector.Counter("dimeagent_chat_turns_total", "Chat questions answered"),
		chatFailures:       cfg.Collector.Counter("dimeagent_chat_failures_total", "Chat backend failures"),
		ledgerFailures:     cfg.Collector.Counter("dimeagent_ledger_failures_total", "Failed ledger deliveries"),
		echoesSuppressed:   cfg.Collector.Counter("dimeagent_echoes_suppressed_total", "Own replies detected as inbound"),
		duplicatesSkipped:  cfg.Collector.Counter("dimeagent_duplicates_skipped_total", "Events skipped by the processed ledger"),
	}
}

// Run polls on a fixed interval until ctx is cancelled. The in-flight cycle
// always finishes: shutdown is checked only between cycles, never mid-batch.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("pipeline started", "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.RunCycle(context.WithoutCancel(ctx))
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunCycle processes one poll batch. A panic is confined to the cycle: it is
// logged and the next tick proceeds on schedule.
func (p *Pipeline) RunCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("cycle failed unexpectedly", "panic", r)
		}
	}()

	for _, ev := range p.source.Poll(ctx) {
		p.processEvent(ctx, ev)
	}
}

func (p *Pipeline) processEvent(ctx context.Context, ev domain.InboundEvent) {
	processed, err := p.store.IsProcessed(ctx, ev.MessageID)
	if err != nil {
		p.logger.Error("processed lookup failed", "message_id", ev.MessageID, "err", err)
		return
	}
	if processed {
		p.duplicatesSkipped.Inc()
		p.source.MarkSeen(ev.MessageID)
		return
	}

	if ev.IsImage() {
		p.handleReceipt(ctx, ev)
		return
	}
	p.handleChat(ctx, ev)
}

func (p *Pipeline) handleReceipt(ctx context.Context, ev domain.InboundEvent) {
	receipt, err := p.extractor.Extract(ctx, ev.Image.Data, ev.Image.MIMEType)
	if err != nil {
		// Terminal for this image. The message keeps no processed marker,
		// so a restart can retry it while it remains in the provider
		// window; the seen cache stops a hot retry loop meanwhile.
		p.extractionFailures.Inc()
		p.logger.Warn("extraction failed", "message_id", ev.MessageID, "err", err)
		if derr := p.store.RecordFailure(ctx, ev.MessageID, "extraction: "+err.Error()); derr != nil {
			p.logger.Error("dead-letter write failed", "message_id", ev.MessageID, "err", derr)
		}
		p.source.MarkSeen(ev.MessageID)
		return
	}

	tx := domain.NewTransaction(receipt, ev.MessageID, ev.Sender, ev.ReceivedAt)
	saved, err := p.store.SaveTransaction(ctx, tx)
	if err != nil {
		p.logger.Error("transaction save failed", "message_id", ev.MessageID, "err", err)
		return
	}
	p.source.MarkSeen(ev.MessageID)
	if !saved {
		// Another event with the same message ID already persisted this
		// receipt; a duplicate is a success no-op.
		p.logger.Info("duplicate receipt skipped", "message_id", ev.MessageID)
		return
	}

	p.receiptsSaved.Inc()
	p.logger.Info("receipt processed",
		"id", tx.ID,
		"merchant", tx.Merchant.Name,
		"category", tx.Merchant.Category,
		"total", tx.Details.Total,
		"items", len(tx.Items),
		"payment", tx.Details.PaymentMethod,
		"confidence", tx.ConfidenceScore,
		"sender", tx.Sender)

	if err := p.ledger.Submit(ctx, tx); err != nil {
		p.ledgerFailures.Inc()
		p.logger.Warn("ledger delivery failed", "id", tx.ID, "err", err)
	}

	confirmation := confirmationMessage(tx)
	if err := p.notifier.Send(ctx, ev.Sender, confirmation); err != nil {
		p.logger.Warn("confirmation send failed", "message_id", ev.MessageID, "err", err)
		return
	}
	p.store.MarkSent(confirmation)
}

func (p *Pipeline) handleChat(ctx context.Context, ev domain.InboundEvent) {
	if p.store.IsBotResponse(ev.Text) {
		// The provider reflected our own reply back as inbound.
		p.echoesSuppressed.Inc()
		p.logger.Info("ignoring echoed bot response", "message_id", ev.MessageID)
		if err := p.store.MarkProcessed(ctx, ev.MessageID, domain.KindChat); err != nil {
			p.logger.Error("mark processed failed", "message_id", ev.MessageID, "err", err)
		}
		p.source.MarkSeen(ev.MessageID)
		return
	}

	p.logger.Info("chat question received", "message_id", ev.MessageID, "len", len(ev.Text))
	reply, err := p.chat.Ask(ctx, ev.Text)
	if err != nil {
		p.chatFailures.Inc()
		p.logger.Error("chat backend failed", "message_id", ev.MessageID, "err", err)
		if derr := p.store.RecordFailure(ctx, ev.MessageID, "chat: "+err.Error()); derr != nil {
			p.logger.Error("dead-letter write failed", "message_id", ev.MessageID, "err", derr)
		}
		if serr := p.notifier.Send(ctx, ev.Sender, apologyMessage); serr != nil {
			p.logger.Warn("apology send failed", "message_id", ev.MessageID, "err", serr)
		}
		p.store.MarkSent(apologyMessage)
		// Deliberately not marked processed: an operator restart with a
		// healthy backend can still answer this while it is in the window.
		p.source.MarkSeen(ev.MessageID)
		return
	}

	if err := p.notifier.Send(ctx, ev.Sender, reply); err != nil {
		// An answered question the user never saw is still a failure.
		// Leave it unmarked so a later run can answer it.
		p.chatFailures.Inc()
		p.logger.Warn("chat reply send failed", "message_id", ev.MessageID, "err", err)
		if derr := p.store.RecordFailure(ctx, ev.MessageID, "deliver: "+err.Error()); derr != nil {
			p.logger.Error("dead-letter write failed", "message_id", ev.MessageID, "err", derr)
		}
		p.source.MarkSeen(ev.MessageID)
		return
	}

	p.chatTurns.Inc()
	p.store.MarkSent(reply)
	if err := p.store.MarkProcessed(ctx, ev.MessageID, domain.KindChat); err != nil {
		p.logger.Error("mark processed failed", "message_id", ev.MessageID, "err", err)
	}
	p.source.MarkSeen(ev.MessageID)
}
