package domain

// PriceGap is the derived price spread for one equivalence group of
// products sold by two or more competitors.
type PriceGap struct {
	ProductKey                string  // equivalence key produced by the matcher
	ProductName               string  // representative product name
	Category                  string  // category of the group
	MinPrice                  float64 // cheapest current price in the group
	MaxPrice                  float64 // most expensive current price in the group
	PriceDifference           float64 // max - min
	PriceDifferencePercent    float64 // (max - min) / min * 100
	CheapestCompetitorID      string
	MostExpensiveCompetitorID string
	CompetitorCount           int // distinct competitors in the group
}

// CompetitorPriceStats aggregates one competitor's current prices across
// the compared catalog.
type CompetitorPriceStats struct {
	CompetitorID string
	ProductCount int
	MinPrice     float64
	MaxPrice     float64
	AveragePrice float64
}

// PriceComparison is the result of a cross-competitor price comparison.
// Gaps is sorted by PriceDifferencePercent descending, product key ascending
// on ties. CompetitorStats is sorted by competitor ID ascending.
type PriceComparison struct {
	Category              string // filter applied, empty if none
	Gaps                  []PriceGap
	CompetitorStats       []CompetitorPriceStats
	TotalProductsCompared int // equivalence groups considered
	AnalyzedAt            int64
}
