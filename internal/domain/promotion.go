package domain

// PromotionType represents the mechanism of a promotion.
type PromotionType string

const (
	PromotionPercentage  PromotionType = "percentage"
	PromotionFixedAmount PromotionType = "fixed_amount"
	PromotionBundle      PromotionType = "bundle"
	PromotionOther       PromotionType = "other"
)

// String returns the string representation of PromotionType.
func (p PromotionType) String() string {
	return string(p)
}

// IsValid checks if the promotion type is a valid value.
func (p PromotionType) IsValid() bool {
	switch p {
	case PromotionPercentage, PromotionFixedAmount, PromotionBundle, PromotionOther:
		return true
	}
	return false
}

// PromotionObservation is one scraped fact about a promotion run by a
// competitor. Like product observations it is append-only: each scan that
// sees the promotion writes a new row.
// Corresponds to promotion_observations table in PostgreSQL.
type PromotionObservation struct {
	Seq           int64         // surrogate insertion order, assigned by the store
	CompetitorID  string        // owning competitor
	PromotionKey  string        // deterministic hash, see idhash
	Title         string        // promotion title as scraped
	PromotionType PromotionType // percentage | fixed_amount | bundle | other
	DiscountValue float64       // percent for percentage type, amount otherwise
	DiscountType  string        // raw discount type string as scraped
	ObservedAt    int64         // Unix timestamp in milliseconds
}
