package source

import (
	"context"
	"time"
)

// RawAttachment is one provider attachment before image filtering. Data is
// set when the provider already holds the bytes (telegram downloads);
// otherwise Path points at a local file read lazily at poll time.
type RawAttachment struct {
	Filename string
	Path     string
	Data     []byte
}

// RawMessage is one provider message before normalization.
type RawMessage struct {
	ID          string // stable provider id; empty means unidentifiable
	Sender      string
	SentAt      time.Time
	Text        string
	Attachments []RawAttachment
}

// Provider fetches the most recent messages from an external messaging
// service, oldest first, excluding messages the agent itself authored.
// The window is bounded: this is not a durable queue.
type Provider interface {
	Recent(ctx context.Context, limit int) ([]RawMessage, error)
}
