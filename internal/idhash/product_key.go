package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeProductKey computes a deterministic product_key using SHA256.
// Formula: SHA256(competitor_id|normalized_name|sku|url)
// Returns hex-encoded hash (64 characters).
//
// The key is stable across scans: repeated observations of the same listing
// hash to the same key, so the append-only history for a product forms a
// single totally ordered series.
func ComputeProductKey(
	competitorID string,
	name string,
	sku string,
	url string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		competitorID,
		normalize(name),
		strings.TrimSpace(sku),
		strings.TrimSpace(url),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputePromotionKey computes a deterministic promotion_key using SHA256.
// Formula: SHA256(competitor_id|normalized_title|promotion_type)
// Returns hex-encoded hash (64 characters).
func ComputePromotionKey(
	competitorID string,
	title string,
	promotionType string,
) string {
	data := fmt.Sprintf("%s|%s|%s",
		competitorID,
		normalize(title),
		promotionType,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// normalize lower-cases and collapses interior whitespace so cosmetic
// scrape differences do not fork a product's history.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
