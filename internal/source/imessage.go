package source

import (
	"context"
	"strconv"

	"dimeagent/internal/imessage"
)

// IMessageProvider adapts the chat.db client to the Provider contract.
type IMessageProvider struct {
	client *imessage.Client
}

func NewIMessageProvider(client *imessage.Client) *IMessageProvider {
	return &IMessageProvider{client: client}
}

// Recent returns the newest messages oldest-first. chat.db yields newest
// first, so the batch is reversed to the chronological order the pipeline
// processes in.
func (p *IMessageProvider) Recent(ctx context.Context, limit int) ([]RawMessage, error) {
	msgs, err := p.client.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]RawMessage, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		id := m.GUID
		if id == "" {
			id = strconv.FormatInt(m.RowID, 10)
		}
		raw := RawMessage{
			ID:     id,
			Sender: m.Sender,
			SentAt: m.SentAt,
			Text:   m.Text,
		}
		for _, a := range m.Attachments {
			raw.Attachments = append(raw.Attachments, RawAttachment{
				Filename: a.Name,
				Path:     a.Path,
			})
		}
		out = append(out, raw)
	}
	return out, nil
}
