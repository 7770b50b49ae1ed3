package pipeline

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"dimeagent/internal/domain"
)

func TestConfirmationTruncatesItems(t *testing.T) {
	r := sampleReceipt()
	r.Items = nil
	for i := 0; i < 14; i++ {
		r.Items = append(r.Items, domain.LineItem{
			Description: fmt.Sprintf("Item %02d", i),
			Quantity:    1,
			Price:       1.00,
		})
	}
	tx := domain.NewTransaction(r, "msg-1", "+15551234567", time.Now())

	msg := confirmationMessage(tx)
	if got := strings.Count(msg, "- Item"); got != maxConfirmationItems {
		t.Errorf("listed %d items, want %d", got, maxConfirmationItems)
	}
	if !strings.Contains(msg, "...and 4 more") {
		t.Errorf("missing truncation note:\n%s", msg)
	}
}

func TestConfirmationUnknownCategory(t *testing.T) {
	r := sampleReceipt()
	r.Merchant.Category = ""
	r.Details.PaymentMethod = ""
	tx := domain.NewTransaction(r, "msg-1", "+15551234567", time.Now())

	msg := confirmationMessage(tx)
	if !strings.Contains(msg, "Category: Other") {
		t.Errorf("missing fallback category:\n%s", msg)
	}
	if strings.Contains(msg, "Payment:") {
		t.Errorf("payment line present without a payment method:\n%s", msg)
	}
}
