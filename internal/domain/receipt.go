package domain

import (
	"time"

	"github.com/google/uuid"
)

// Merchant identifies where a receipt came from.
type Merchant struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Address  string `json:"address,omitempty"`
}

// TransactionDetails are the money fields read off a receipt. Total is the
// only required field; the extractor guarantees it is always populated.
type TransactionDetails struct {
	Date          string  `json:"date,omitempty"` // YYYY-MM-DD
	Subtotal      float64 `json:"subtotal,omitempty"`
	Tax           float64 `json:"tax,omitempty"`
	Total         float64 `json:"total"`
	PaymentMethod string  `json:"paymentMethod,omitempty"`
}

// LineItem is one purchased item on a receipt.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
}

// ExtractedReceipt is the validated result of asking the vision model to
// interpret one receipt image.
type ExtractedReceipt struct {
	Merchant        Merchant
	Details         TransactionDetails
	Items           []LineItem
	ConfidenceScore float64 // model's self-reported legibility estimate, 0..1
}

// StatusProcessed is the only transaction status written today; the column
// is an extension point for future states (disputed, voided).
const StatusProcessed = "processed"

// Transaction is the durable unit of record, created once after a successful
// extraction and never updated in place. SourceMessageID is unique and is
// the idempotency boundary for the pipeline.
type Transaction struct {
	ID              string
	SourceMessageID string
	Sender          string
	ReceivedAt      time.Time
	ProcessedAt     time.Time
	Merchant        Merchant
	Details         TransactionDetails
	Items           []LineItem
	ConfidenceScore float64
	Status          string
}

// NewTransaction builds a Transaction from an extracted receipt and the
// inbound event that produced it.
func NewTransaction(r *ExtractedReceipt, messageID, sender string, receivedAt time.Time) Transaction {
	return Transaction{
		ID:              uuid.NewString(),
		SourceMessageID: messageID,
		Sender:          sender,
		ReceivedAt:      receivedAt,
		ProcessedAt:     time.Now(),
		Merchant:        r.Merchant,
		Details:         r.Details,
		Items:           r.Items,
		ConfidenceScore: r.ConfidenceScore,
		Status:          StatusProcessed,
	}
}
