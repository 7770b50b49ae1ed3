package domain

import "context"

// Marker kinds recorded in the processed-messages ledger.
const (
	KindChat    = "chat"
	KindReceipt = "receipt"
)

// Source yields normalized inbound events, one batch per poll cycle.
// Implementations never fail the whole batch for a per-message problem.
type Source interface {
	Poll(ctx context.Context) []InboundEvent
}

// Extractor turns a receipt image into structured purchase data. A nil
// receipt with a non-nil error is a terminal failure for that image.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) (*ExtractedReceipt, error)
}

// Store is the durable, idempotent record of processed messages and derived
// transactions. It is the sole arbiter of "has this already been handled".
type Store interface {
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID, kind string) error
	// SaveTransaction inserts tx and its receipt marker atomically. A
	// duplicate SourceMessageID returns (false, nil), not an error.
	SaveTransaction(ctx context.Context, tx Transaction) (bool, error)
	// RecordFailure writes a dead-letter row so terminally failed messages
	// do not vanish without an operator signal.
	RecordFailure(ctx context.Context, messageID, reason string) error

	// MarkSent / IsBotResponse maintain the bounded set of the agent's own
	// recent outbound text, used to ignore provider echoes.
	MarkSent(text string)
	IsBotResponse(text string) bool
}

// Notifier delivers an outbound message to the counterparty.
type Notifier interface {
	Send(ctx context.Context, to, text string) error
}

// ChatService answers free-text questions via the downstream backend.
type ChatService interface {
	Ask(ctx context.Context, body string) (string, error)
}

// LedgerClient relays an accepted receipt to the downstream ledger.
// Delivery is best-effort; failures are logged and never retried.
type LedgerClient interface {
	Submit(ctx context.Context, tx Transaction) error
}
