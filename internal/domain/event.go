package domain

import "time"

// ImagePayload carries the raw bytes of one inbound image attachment.
type ImagePayload struct {
	Data     []byte
	MIMEType string
}

// InboundEvent is one unit of polled work from the message source: either a
// receipt image or a free-text chat turn from the monitored counterparty.
// Exactly one of Image and Text is set. Events are built fresh each poll
// cycle and discarded after one pipeline pass.
type InboundEvent struct {
	MessageID  string // provider-assigned, stable; primary dedup key
	Sender     string // raw sender address as reported by the provider
	ReceivedAt time.Time
	Image      *ImagePayload
	Text       string
}

// IsImage reports whether the event carries a receipt image.
func (e InboundEvent) IsImage() bool { return e.Image != nil }
