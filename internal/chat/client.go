// Package chat forwards free-text questions to the downstream backend's
// chat endpoint.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const clientTimeout = 60 * time.Second

// Client calls POST {backend}/api/chat on behalf of one fixed user.
type Client struct {
	baseURL string
	userID  string
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL, userID string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		client:  &http.Client{Timeout: clientTimeout},
		logger:  logger,
	}
}

type chatRequest struct {
	Body   string `json:"body"`
	UserID string `json:"user_id"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Ask returns the backend's answer; a non-2xx status or an empty response
// field is a failure.
func (c *Client) Ask(ctx context.Context, body string) (string, error) {
	jsonBody, err := json.Marshal(chatRequest{Body: body, UserID: c.userID})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat backend %d: %s", resp.StatusCode, string(respBody))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if cr.Response == "" {
		return "", fmt.Errorf("chat backend returned no response text")
	}
	return cr.Response, nil
}
