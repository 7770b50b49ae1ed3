package pipeline

import (
	"fmt"
	"strings"

	"dimeagent/internal/domain"
)

const maxConfirmationItems = 10

// confirmationMessage renders the reply sent back after a receipt is saved.
// The exact text is also recorded in the echo set, so composition has to be
// deterministic for a given transaction.
func confirmationMessage(tx domain.Transaction) string {
	var b strings.Builder
	b.WriteString("✅ Receipt processed!\n\n")
	fmt.Fprintf(&b, "Merchant: %s\n", tx.Merchant.Name)
	fmt.Fprintf(&b, "Total: $%.2f\n", tx.Details.Total)

	category := tx.Merchant.Category
	if category == "" {
		category = "Other"
	}
	fmt.Fprintf(&b, "Category: %s\n", category)

	if tx.Details.PaymentMethod != "" {
		fmt.Fprintf(&b, "Payment: %s\n", tx.Details.PaymentMethod)
	}

	if len(tx.Items) > 0 {
		b.WriteString("\nItems:\n")
		shown := tx.Items
		if len(shown) > maxConfirmationItems {
			shown = shown[:maxConfirmationItems]
		}
		for _, item := range shown {
			fmt.Fprintf(&b, "- %s: $%.2f\n", item.Description, item.Price)
		}
		if extra := len(tx.Items) - len(shown); extra > 0 {
			fmt.Fprintf(&b, "...and %d more\n", extra)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
