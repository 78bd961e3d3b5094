package domain

// Observation is one scraped fact about a product's price/stock state
// for a competitor at a point in time.
// Corresponds to observations table in PostgreSQL (archived in ClickHouse).
type Observation struct {
	Seq          int64   // surrogate insertion order, assigned by the store
	CompetitorID string  // owning competitor
	ProductKey   string  // deterministic hash, see idhash
	Name         string  // product name as scraped
	SKU          string  // vendor SKU, may be empty
	URL          string  // product page URL
	Category     string  // category as scraped
	Price        float64 // price at observation time
	Currency     string  // ISO currency code
	InStock      bool    // stock status at observation time
	PromotionRef string  // promotion_key of the active promotion, empty if none
	ObservedAt   int64   // Unix timestamp in milliseconds
}
