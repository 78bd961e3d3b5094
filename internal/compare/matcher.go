package compare

import (
	"strings"

	"competitor-intel/internal/domain"
)

// Matcher resolves product identity across competitors. Observations with
// the same non-empty key are treated as the same product; an empty key
// excludes the observation from comparison.
//
// Matching is inherently fuzzy in scraped catalogs, so the rule is injected
// rather than hardcoded: callers with richer signals (SKU registries,
// embeddings) can plug in their own.
type Matcher interface {
	Key(o *domain.Observation) string
}

// NormalizedNameMatcher matches products by lower-cased,
// whitespace-collapsed name.
type NormalizedNameMatcher struct{}

// Key returns the normalized product name.
func (NormalizedNameMatcher) Key(o *domain.Observation) string {
	return strings.Join(strings.Fields(strings.ToLower(o.Name)), " ")
}
