package ledger

import (
	"regexp"
	"strings"
)

// Wire payment types. Apple Pay is deliberately carried as PAYPAL — the
// downstream ledger has no separate wallet type and this mapping is what it
// expects.
const (
	PaymentTypeCard   = "CARD"
	PaymentTypePayPal = "PAYPAL"
)

// PaymentMethod is the parsed form of a receipt's free-text payment line.
type PaymentMethod struct {
	Type     string
	Brand    string
	LastFour *string
}

var lastFourPattern = regexp.MustCompile(`\d{4}`)

// ParsePaymentMethod interprets strings like "Visa ****1234", "Apple Pay"
// or "PayPal".
func ParsePaymentMethod(raw string) PaymentMethod {
	raw = strings.TrimSpace(raw)
	upper := strings.ToUpper(raw)

	switch {
	case strings.Contains(upper, "PAYPAL"):
		return PaymentMethod{Type: PaymentTypePayPal, Brand: "PayPal"}
	case strings.Contains(upper, "APPLE PAY"):
		return PaymentMethod{Type: PaymentTypePayPal, Brand: "Apple Pay"}
	}

	pm := PaymentMethod{Type: PaymentTypeCard}
	if fields := strings.Fields(raw); len(fields) > 0 {
		pm.Brand = fields[0]
	}
	if m := lastFourPattern.FindString(raw); m != "" {
		pm.LastFour = &m
	}
	return pm
}
