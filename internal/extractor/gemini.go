// Package extractor asks a vision-capable model to read a receipt image and
// returns validated structured purchase data.
package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"dimeagent/internal/domain"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta/models"
	geminiDefaultModel = "gemini-2.5-flash"
	defaultHTTPTimeout = 120 * time.Second
)

// receiptPrompt fixes the extraction contract: output schema, closed
// category enumeration, ISO dates, bare-number money fields, total always
// populated even if estimated.
const receiptPrompt = `Extract ALL data from this receipt as JSON. IMPORTANT: Look carefully for the PAYMENT METHOD (card type, last 4 digits, Apple Pay, Cash, etc.) - it's usually at the bottom.

Return ONLY valid JSON:
{"merchant":{"name":"str","category":"grocery|restaurant|retail|gas|pharmacy|entertainment|travel|utilities|other","address":"str|null"},"transaction":{"date":"YYYY-MM-DD|null","subtotal":num|null,"tax":num|null,"total":num},"payment_method":"str|null (e.g. 'Visa ****1234', 'Apple Pay', 'Cash')","items":[{"description":"str","quantity":num,"price":num}],"confidence_score":0-1}
The total field is REQUIRED: estimate it from the items if it is not legible.`

// ErrRateLimited marks a transient provider rejection; the extractor retries
// it within the policy budget.
var ErrRateLimited = errors.New("extractor: rate limited")

// Gemini calls the Gemini generateContent API.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	policy  RetryPolicy
	client  *http.Client
	logger  *slog.Logger
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // overridable for tests
	Policy  RetryPolicy
	Logger  *slog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiBaseURL
	}
	if cfg.Policy == (RetryPolicy{}) {
		cfg.Policy = DefaultRetryPolicy()
	}
	return &Gemini{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		policy:  cfg.Policy,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:  cfg.Logger,
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Extract sends the image once per attempt, retrying only rate limits and
// only within the policy budget. Any other failure is terminal for this
// image; the caller must not mark the message processed.
func (g *Gemini) Extract(ctx context.Context, image []byte, mimeType string) (*domain.ExtractedReceipt, error) {
	var lastErr error
	for attempt := 0; attempt <= g.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("rate limited, retrying extraction",
				"attempt", attempt, "max", g.policy.MaxRetries, "delay", g.policy.Delay)
			if err := g.policy.Wait(ctx); err != nil {
				return nil, err
			}
		}

		text, err := g.generate(ctx, image, mimeType)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				lastErr = err
				continue
			}
			return nil, err
		}

		receipt, totalMissing, err := parseReceipt(text)
		if err != nil {
			if errors.Is(err, ErrBadJSON) {
				g.logger.Error("model returned unparseable JSON", "err", err)
			}
			return nil, err
		}
		if totalMissing {
			// The prompt mandates total; a miss here is a quality signal.
			g.logger.Warn("model omitted required total, defaulting to 0",
				"merchant", receipt.Merchant.Name)
		}
		g.logger.Info("receipt extracted",
			"merchant", receipt.Merchant.Name,
			"total", receipt.Details.Total,
			"confidence", receipt.ConfidenceScore)
		return receipt, nil
	}

	return nil, fmt.Errorf("retry budget exhausted after %d attempts: %w", g.policy.MaxRetries+1, lastErr)
}

func (g *Gemini) generate(ctx context.Context, image []byte, mimeType string) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{
					MIMEType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
				{Text: receiptPrompt},
			},
		}},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gemini %d: %s", resp.StatusCode, string(respBody))
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	var text string
	for _, cand := range gr.Candidates {
		for _, part := range cand.Content.Parts {
			text += part.Text
		}
		break
	}
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
