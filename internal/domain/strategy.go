package domain

// Strategy is a coarse label summarizing a competitor's pricing behavior.
type Strategy string

const (
	StrategyAggressiveDiscounting Strategy = "aggressive_discounting"
	StrategyModerateDiscounting   Strategy = "moderate_discounting"
	StrategyLowPriceLeader        Strategy = "low_price_leader"
	StrategyPremiumPricing        Strategy = "premium_pricing"
	StrategyMarketBasedPricing    Strategy = "market_based_pricing"
)

// String returns the string representation of Strategy.
func (s Strategy) String() string {
	return string(s)
}

// IsValid checks if the strategy is a valid value.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyAggressiveDiscounting, StrategyModerateDiscounting,
		StrategyLowPriceLeader, StrategyPremiumPricing, StrategyMarketBasedPricing:
		return true
	}
	return false
}

// StrategyStatistics holds the supporting numbers behind a strategy label.
type StrategyStatistics struct {
	TotalProducts           int
	AveragePrice            float64
	MedianPrice             float64
	MinPrice                float64
	MaxPrice                float64
	ProductsWithDiscount    int
	DiscountRatePercent     float64 // fraction of products under an active promotion * 100
	AvgDiscountDepthPercent float64 // mean discount percentage among discounted products
	PricePosition           float64 // median normalized price rank in [0,1], 0 = cheapest
	PricePositionSamples    int     // equivalence groups contributing to PricePosition
}

// StrategyProfile is the derived pricing-strategy classification for one
// competitor.
type StrategyProfile struct {
	CompetitorID      string
	Strategy          Strategy
	ConfidencePercent float64 // 0-100, scales with sample size
	Statistics        StrategyStatistics
	AnalyzedAt        int64
}
