// Package ledger converts transactions to the downstream ledger's wire
// shape and delivers them best-effort.
package ledger

import (
	"strconv"
	"time"

	"dimeagent/internal/domain"
)

// Payload is one ledger ingestion record.
type Payload struct {
	ID              string         `json:"id"`
	ExternalID      string         `json:"external_id"`
	Datetime        string         `json:"datetime"`
	MerchantID      int            `json:"merchant_id"`
	MerchantName    string         `json:"merchant_name"`
	OrderStatus     string         `json:"order_status"`
	PaymentMethod   string         `json:"payment_method"`
	PaymentMethods  []PaymentEntry `json:"payment_methods"`
	Price           Price          `json:"price"`
	Products        []Product      `json:"products"`
	TotalAmount     float64        `json:"total_amount"`
	ConfidenceScore float64        `json:"confidence_score"`
}

type PaymentEntry struct {
	Type              string  `json:"type"`
	Brand             string  `json:"brand"`
	LastFour          *string `json:"last_four"` // null when not printed on the receipt
	TransactionAmount float64 `json:"transaction_amount"`
}

type Price struct {
	Currency    string       `json:"currency"`
	SubTotal    float64      `json:"sub_total"`
	Total       float64      `json:"total"`
	Adjustments []Adjustment `json:"adjustments"`
}

type Adjustment struct {
	Type   string `json:"type"`
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

type Product struct {
	Name     string       `json:"name"`
	Quantity float64      `json:"quantity"`
	Price    ProductPrice `json:"price"`
}

type ProductPrice struct {
	UnitPrice float64 `json:"unit_price"`
	Total     float64 `json:"total"`
}

// Builder converts transactions to payloads. The category table is fixed at
// construction so conversion stays a pure function.
type Builder struct {
	categories map[string]int
}

func NewBuilder(categories map[string]int) *Builder {
	if categories == nil {
		categories = DefaultCategoryMap()
	}
	return &Builder{categories: categories}
}

// Build derives the ledger record for one accepted receipt.
func (b *Builder) Build(tx domain.Transaction) Payload {
	payment := ParsePaymentMethod(tx.Details.PaymentMethod)

	p := Payload{
		ID:            tx.ID,
		ExternalID:    tx.SourceMessageID,
		Datetime:      datetimeFor(tx),
		MerchantID:    b.MerchantIDFor(tx.Merchant.Category),
		MerchantName:  tx.Merchant.Name,
		OrderStatus:   "COMPLETED",
		PaymentMethod: payment.Type,
		PaymentMethods: []PaymentEntry{{
			Type:              payment.Type,
			Brand:             payment.Brand,
			LastFour:          payment.LastFour,
			TransactionAmount: tx.Details.Total,
		}},
		Price: Price{
			Currency:    "USD",
			SubTotal:    tx.Details.Subtotal,
			Total:       tx.Details.Total,
			Adjustments: []Adjustment{},
		},
		Products:        []Product{},
		TotalAmount:     tx.Details.Total,
		ConfidenceScore: tx.ConfidenceScore,
	}

	if tx.Details.Tax > 0 {
		p.Price.Adjustments = append(p.Price.Adjustments, Adjustment{
			Type:   "TAX",
			Label:  "Tax",
			Amount: formatAmount(tx.Details.Tax),
		})
	}

	for _, item := range tx.Items {
		p.Products = append(p.Products, Product{
			Name:     item.Description,
			Quantity: item.Quantity,
			Price: ProductPrice{
				UnitPrice: item.Price,
				Total:     item.Price * item.Quantity,
			},
		})
	}

	return p
}

// formatAmount renders a money value as a minimal decimal string, e.g. 3.1.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// datetimeFor prefers the receipt's own date, falling back to when the
// message arrived.
func datetimeFor(tx domain.Transaction) string {
	if tx.Details.Date != "" {
		if d, err := time.Parse("2006-01-02", tx.Details.Date); err == nil {
			return d.UTC().Format(time.RFC3339)
		}
	}
	return tx.ReceivedAt.UTC().Format(time.RFC3339)
}
