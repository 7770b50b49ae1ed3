package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dimeagent/internal/domain"
)

// Failure taxonomy. Both are terminal for the image: an empty response is a
// model miss, a parse failure signals prompt/schema drift.
var (
	ErrEmptyResponse = errors.New("extractor: empty model response")
	ErrBadJSON       = errors.New("extractor: unparseable model response")
)

// Wire shape of the model's JSON output. Nullable fields are pointers so
// absence is distinguishable from zero.
type wireReceipt struct {
	Merchant struct {
		Name     string `json:"name"`
		Category string `json:"category"`
		Address  string `json:"address"`
	} `json:"merchant"`
	Transaction struct {
		Date     string   `json:"date"`
		Subtotal *float64 `json:"subtotal"`
		Tax      *float64 `json:"tax"`
		Total    *float64 `json:"total"`
	} `json:"transaction"`
	PaymentMethod string `json:"payment_method"`
	Items         []struct {
		Description string   `json:"description"`
		Quantity    *float64 `json:"quantity"`
		Price       *float64 `json:"price"`
	} `json:"items"`
	ConfidenceScore *float64 `json:"confidence_score"`
}

// stripFences removes a leading/trailing triple-backtick code fence, with or
// without a language tag, from the model's response text.
func stripFences(text string) string {
	clean := strings.TrimSpace(text)
	if strings.HasPrefix(clean, "```") {
		clean = clean[3:]
		if nl := strings.IndexByte(clean, '\n'); nl >= 0 {
			// Drop a language tag like "json" on the fence line.
			if tag := strings.TrimSpace(clean[:nl]); tag == "" || !strings.ContainsAny(tag, "{}") {
				clean = clean[nl+1:]
			}
		}
	}
	clean = strings.TrimSpace(clean)
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}

// parseReceipt validates the model output and applies documented fallbacks.
// totalMissing reports that the required total field was absent and had to
// be defaulted; callers log it as a quality signal.
func parseReceipt(text string) (*domain.ExtractedReceipt, bool, error) {
	clean := stripFences(text)
	if clean == "" {
		return nil, false, ErrEmptyResponse
	}

	var w wireReceipt
	if err := json.Unmarshal([]byte(clean), &w); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}

	r := &domain.ExtractedReceipt{
		Merchant: domain.Merchant{
			Name:     w.Merchant.Name,
			Category: w.Merchant.Category,
			Address:  w.Merchant.Address,
		},
		Details: domain.TransactionDetails{
			Date:          w.Transaction.Date,
			PaymentMethod: w.PaymentMethod,
		},
		ConfidenceScore: 0.5,
	}
	if r.Merchant.Name == "" {
		r.Merchant.Name = "Unknown"
	}
	if w.Transaction.Subtotal != nil {
		r.Details.Subtotal = *w.Transaction.Subtotal
	}
	if w.Transaction.Tax != nil {
		r.Details.Tax = *w.Transaction.Tax
	}
	if w.ConfidenceScore != nil {
		r.ConfidenceScore = *w.ConfidenceScore
	}

	totalMissing := w.Transaction.Total == nil
	if !totalMissing {
		r.Details.Total = *w.Transaction.Total
	}

	for _, it := range w.Items {
		item := domain.LineItem{Description: it.Description, Quantity: 1}
		if item.Description == "" {
			item.Description = "Item"
		}
		if it.Quantity != nil && *it.Quantity >= 1 {
			item.Quantity = *it.Quantity
		}
		if it.Price != nil {
			item.Price = *it.Price
		}
		r.Items = append(r.Items, item)
	}

	return r, totalMissing, nil
}
