package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"dimeagent/internal/domain"
)

const clientTimeout = 30 * time.Second

// Client POSTs ledger records. Delivery is best-effort: the caller logs a
// failure and moves on, the persisted transaction is never rolled back.
type Client struct {
	url     string
	builder *Builder
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(url string, builder *Builder, logger *slog.Logger) *Client {
	return &Client{
		url:     url,
		builder: builder,
		client:  &http.Client{Timeout: clientTimeout},
		logger:  logger,
	}
}

func (c *Client) Submit(ctx context.Context, tx domain.Transaction) error {
	payload := c.builder.Build(tx)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ledger %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Info("ledger record delivered",
		"id", payload.ID, "merchant_id", payload.MerchantID, "total", payload.TotalAmount)
	return nil
}
