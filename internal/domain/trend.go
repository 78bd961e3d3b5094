package domain

// TrendDirection classifies a product's price trajectory over a window.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
	TrendVolatile   TrendDirection = "volatile"
)

// String returns the string representation of TrendDirection.
func (d TrendDirection) String() string {
	return string(d)
}

// Trend is the derived trajectory for one product over a window.
type Trend struct {
	ProductKey        string         // product identity
	Name              string         // product name from the latest observation
	Category          string         // category from the latest observation
	Direction         TrendDirection // increasing | decreasing | stable | volatile
	FirstPrice        float64        // chronologically first in-window price
	LastPrice         float64        // chronologically last in-window price
	MagnitudePercent  float64        // (last - first) / first * 100
	VolatilityPercent float64        // coefficient of variation * 100
	SampleCount       int            // observations contributing to this trend
}

// TrendSummary holds per-direction counts across all products in a report.
type TrendSummary struct {
	IncreasingCount int
	DecreasingCount int
	StableCount     int
	VolatileCount   int
}

// Total returns the number of distinct products covered by the summary.
func (s TrendSummary) Total() int {
	return s.IncreasingCount + s.DecreasingCount + s.StableCount + s.VolatileCount
}

// TrendReport is the result of classifying one competitor's trends.
// Products is sorted by |MagnitudePercent| descending, product key ascending
// on ties, so repeated runs over the same data serialize identically.
type TrendReport struct {
	CompetitorID string
	WindowDays   int
	Products     []Trend
	Summary      TrendSummary
	AnalyzedAt   int64 // Unix timestamp in milliseconds
}

// TrendFor returns the trend for a product key, if present.
func (r *TrendReport) TrendFor(productKey string) (Trend, bool) {
	for _, t := range r.Products {
		if t.ProductKey == productKey {
			return t, true
		}
	}
	return Trend{}, false
}
