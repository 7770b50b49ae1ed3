package ledger

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// unmappedMerchantID is used for unknown or "other" categories.
const unmappedMerchantID = 99

// DefaultCategoryMap is the fixed category → downstream merchant ID table.
func DefaultCategoryMap() map[string]int {
	return map[string]int{
		"grocery":       43,
		"restaurant":    56,
		"retail":        44,
		"gas":           47,
		"pharmacy":      51,
		"entertainment": 13,
		"travel":        10,
		"utilities":     99,
		"hotel":         10,
		"bar":           56,
	}
}

// MerchantIDFor resolves a receipt category to a merchant ID,
// deterministically; anything unmapped gets unmappedMerchantID.
func (b *Builder) MerchantIDFor(category string) int {
	if id, ok := b.categories[strings.ToLower(strings.TrimSpace(category))]; ok {
		return id
	}
	return unmappedMerchantID
}

// LoadCategoryMap reads a YAML category → merchant ID mapping and merges it
// over the defaults, so an override file only needs to list changes.
func LoadCategoryMap(path string) (map[string]int, error) {
	m := DefaultCategoryMap()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category map %s: %w", path, err)
	}

	overrides := map[string]int{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse category map %s: %w", path, err)
	}

	for k, v := range overrides {
		m[strings.ToLower(k)] = v
	}
	return m, nil
}
