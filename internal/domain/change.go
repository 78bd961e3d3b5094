package domain

// NewProduct is a product first seen inside the analysis window.
type NewProduct struct {
	CompetitorID string
	ProductKey   string
	Name         string
	Category     string
	URL          string
	Price        float64
	Currency     string
	InStock      bool
	FirstSeenAt  int64 // Unix timestamp in milliseconds
}

// NewPromotion is a promotion first seen inside the analysis window.
type NewPromotion struct {
	CompetitorID  string
	PromotionKey  string
	Title         string
	PromotionType PromotionType
	DiscountValue float64
	DiscountType  string
	FirstSeenAt   int64
}

// PriceChange is a baseline-vs-current price move above the detection
// threshold. ChangePercent is positive for increases, negative for decreases.
type PriceChange struct {
	CompetitorID   string
	ProductKey     string
	Name           string
	Category       string
	URL            string
	OldPrice       float64 // latest price before the window start
	NewPrice       float64 // latest price inside the window
	ChangePercent  float64
	ChangeAbsolute float64
	DetectedAt     int64 // timestamp of the current observation
}

// StockChange is a baseline-vs-current stock transition.
type StockChange struct {
	CompetitorID string
	ProductKey   string
	Name         string
	Category     string
	Price        float64
	InStock      bool // state after the transition
	DetectedAt   int64
}

// DiscontinuedProduct is a product that has not been observed for longer
// than the staleness cutoff.
type DiscontinuedProduct struct {
	CompetitorID string
	ProductKey   string
	Name         string
	Category     string
	LastPrice    float64
	Currency     string
	LastSeenAt   int64
	DaysInactive int
}

// ChangeSet groups all discrete events detected for one competitor over
// one window. Each slice is deterministically ordered; see the change
// package for per-kind sort rules.
type ChangeSet struct {
	CompetitorID   string
	WindowHours    int
	NewProducts    []NewProduct
	NewPromotions  []NewPromotion
	PriceIncreases []PriceChange
	PriceDecreases []PriceChange
	BackInStock    []StockChange
	OutOfStock     []StockChange
}

// Counts returns per-kind totals for the set.
func (c *ChangeSet) Counts() ChangeCounts {
	return ChangeCounts{
		TotalNewProducts:    len(c.NewProducts),
		TotalNewPromotions:  len(c.NewPromotions),
		TotalPriceIncreases: len(c.PriceIncreases),
		TotalPriceDecreases: len(c.PriceDecreases),
		TotalBackInStock:    len(c.BackInStock),
		TotalOutOfStock:     len(c.OutOfStock),
	}
}

// ChangeCounts holds per-kind event totals for one competitor.
type ChangeCounts struct {
	TotalNewProducts    int
	TotalNewPromotions  int
	TotalPriceIncreases int
	TotalPriceDecreases int
	TotalBackInStock    int
	TotalOutOfStock     int
}

// CompetitorChanges is one competitor's row in a change summary.
// DataError is set (and counts zeroed) when detection for this competitor
// degraded instead of failing the whole summary.
type CompetitorChanges struct {
	CompetitorID   string
	CompetitorName string
	Changes        ChangeSet
	Counts         ChangeCounts
	DataError      string
}

// ChangeSummary is the fan-out result over one or all competitors.
// Competitors is sorted by competitor ID ascending.
type ChangeSummary struct {
	PeriodHours         int
	CompetitorsAnalyzed int
	Competitors         []CompetitorChanges
	AnalyzedAt          int64
}
