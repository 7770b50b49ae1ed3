package extractor

import (
	"errors"
	"testing"
)

const sampleJSON = `{"merchant":{"name":"Trader Joe's","category":"grocery","address":"123 Main St"},"transaction":{"date":"2025-01-15","subtotal":39.07,"tax":3.10,"total":42.17},"payment_method":"Visa ****1234","items":[{"description":"Bananas","quantity":2,"price":1.5}],"confidence_score":0.93}`

func TestParseReceipt_FullResponse(t *testing.T) {
	r, totalMissing, err := parseReceipt(sampleJSON)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if totalMissing {
		t.Fatal("total is present")
	}
	if r.Merchant.Name != "Trader Joe's" || r.Merchant.Category != "grocery" {
		t.Fatalf("merchant: %+v", r.Merchant)
	}
	if r.Details.Total != 42.17 || r.Details.Tax != 3.10 {
		t.Fatalf("details: %+v", r.Details)
	}
	if r.Details.PaymentMethod != "Visa ****1234" {
		t.Fatalf("payment method: %q", r.Details.PaymentMethod)
	}
	if len(r.Items) != 1 || r.Items[0].Quantity != 2 || r.Items[0].Price != 1.5 {
		t.Fatalf("items: %+v", r.Items)
	}
	if r.ConfidenceScore != 0.93 {
		t.Fatalf("confidence: %v", r.ConfidenceScore)
	}
}

func TestParseReceipt_FencedWithLanguageTag(t *testing.T) {
	r, _, err := parseReceipt("```json\n" + sampleJSON + "\n```")
	if err != nil {
		t.Fatalf("parse fenced: %v", err)
	}
	if r.Merchant.Name != "Trader Joe's" {
		t.Fatalf("merchant: %q", r.Merchant.Name)
	}
}

func TestParseReceipt_FencedWithoutTag(t *testing.T) {
	r, _, err := parseReceipt("```\n" + sampleJSON + "\n```")
	if err != nil {
		t.Fatalf("parse fenced: %v", err)
	}
	if r.Details.Total != 42.17 {
		t.Fatalf("total: %v", r.Details.Total)
	}
}

func TestParseReceipt_Defaults(t *testing.T) {
	r, totalMissing, err := parseReceipt(`{"items":[{"description":"","price":null}]}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !totalMissing {
		t.Fatal("total is absent and must be reported")
	}
	// The required total must never propagate as null; a numeric fallback
	// is always present.
	if r.Details.Total != 0 {
		t.Fatalf("total fallback: %v", r.Details.Total)
	}
	if r.Merchant.Name != "Unknown" {
		t.Fatalf("merchant name fallback: %q", r.Merchant.Name)
	}
	if r.ConfidenceScore != 0.5 {
		t.Fatalf("confidence fallback: %v", r.ConfidenceScore)
	}
	if len(r.Items) != 1 {
		t.Fatalf("items: %+v", r.Items)
	}
	if r.Items[0].Description != "Item" || r.Items[0].Quantity != 1 || r.Items[0].Price != 0 {
		t.Fatalf("item fallbacks: %+v", r.Items[0])
	}
}

func TestParseReceipt_QuantityBelowOneDefaulted(t *testing.T) {
	r, _, err := parseReceipt(`{"transaction":{"total":5},"items":[{"description":"Gum","quantity":0,"price":1}]}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Items[0].Quantity != 1 {
		t.Fatalf("quantity should default to 1, got %v", r.Items[0].Quantity)
	}
}

func TestParseReceipt_EmptyText(t *testing.T) {
	if _, _, err := parseReceipt("   "); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestParseReceipt_BadJSON(t *testing.T) {
	if _, _, err := parseReceipt("not json at all"); !errors.Is(err, ErrBadJSON) {
		t.Fatalf("expected ErrBadJSON, got %v", err)
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```json\n{}\n```", "{}"},
		{"```\n{}\n```", "{}"},
		{"{}", "{}"},
		{"  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := stripFences(tc.in); got != tc.want {
			t.Errorf("stripFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
