// Package recommend maps a competitor's strategy profile, trend report and
// change summary to ranked action items through a fixed rule table.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"competitor-intel/internal/analysis"
	"competitor-intel/internal/change"
	"competitor-intel/internal/compare"
	"competitor-intel/internal/domain"
	"competitor-intel/internal/strategy"
	"competitor-intel/internal/trend"
)

// Config holds the rule thresholds.
type Config struct {
	// TrendWindowDays bounds the trend analysis feeding the rules.
	TrendWindowDays int

	// ChangeWindowHours bounds the change detection feeding the rules.
	ChangeWindowHours int

	// VolatileProductsAlert is the volatile-product count above which the
	// volatility rule fires.
	VolatileProductsAlert int

	// GapAlertPercent is the minimum price-gap percent counted by the
	// price-gap rule.
	GapAlertPercent float64
}

// DefaultConfig returns the default rule thresholds.
func DefaultConfig() Config {
	return Config{
		TrendWindowDays:       30,
		ChangeWindowHours:     24,
		VolatileProductsAlert: 5,
		GapAlertPercent:       10.0,
	}
}

// Inputs is the immutable snapshot a rule evaluation runs over. Profile is
// nil when the strategy detector had insufficient data; rules that need it
// simply do not fire.
type Inputs struct {
	Profile    *domain.StrategyProfile
	Trends     *domain.TrendReport
	Changes    *domain.ChangeSet
	Comparison *domain.PriceComparison
	Now        int64 // unix ms, stamped on rules with no triggering event
}

// rule is one row of the rule table. It returns a recommendation and true
// when its condition holds over the inputs.
type rule struct {
	name     string
	evaluate func(cfg Config, in Inputs) (domain.Recommendation, bool)
}

// ruleTable enumerates every recommendation the engine can emit. Adding a
// rule means adding a row; Evaluate never generates free-form output.
var ruleTable = []rule{
	{name: "pricing_trend_rising", evaluate: risingPrices},
	{name: "price_volatility", evaluate: priceVolatility},
	{name: "price_gaps", evaluate: priceGaps},
	{name: "aggressive_discounting", evaluate: aggressiveDiscounting},
	{name: "matching_low_price_risk", evaluate: matchingLowPriceRisk},
	{name: "premium_monitor", evaluate: premiumMonitor},
	{name: "catalog_expansion", evaluate: catalogExpansion},
}

func risingPrices(_ Config, in Inputs) (domain.Recommendation, bool) {
	if in.Trends == nil || in.Trends.Summary.IncreasingCount <= in.Trends.Summary.DecreasingCount {
		return domain.Recommendation{}, false
	}
	n := in.Trends.Summary.IncreasingCount
	return domain.Recommendation{
		Type:     "pricing_trend_rising",
		Priority: domain.PriorityHigh,
		Title:    "Competitor is raising prices",
		Description: fmt.Sprintf("%d products show rising prices over the analysis window. "+
			"Consider raising your own prices or emphasizing value in positioning.", n),
		AffectedProducts: n,
		TriggeredAt:      in.Trends.AnalyzedAt,
	}, true
}

func priceVolatility(cfg Config, in Inputs) (domain.Recommendation, bool) {
	if in.Trends == nil || in.Trends.Summary.VolatileCount <= cfg.VolatileProductsAlert {
		return domain.Recommendation{}, false
	}
	n := in.Trends.Summary.VolatileCount
	return domain.Recommendation{
		Type:     "price_volatility",
		Priority: domain.PriorityMedium,
		Title:    "High price volatility detected",
		Description: fmt.Sprintf("%d products have unstable prices. "+
			"This can indicate price testing or supply problems on the competitor's side.", n),
		AffectedProducts: n,
		TriggeredAt:      in.Trends.AnalyzedAt,
	}, true
}

func priceGaps(cfg Config, in Inputs) (domain.Recommendation, bool) {
	if in.Comparison == nil {
		return domain.Recommendation{}, false
	}
	var n int
	for _, g := range in.Comparison.Gaps {
		if g.PriceDifferencePercent > cfg.GapAlertPercent {
			n++
		}
	}
	if n == 0 {
		return domain.Recommendation{}, false
	}
	return domain.Recommendation{
		Type:     "price_gaps",
		Priority: domain.PriorityHigh,
		Title:    "Significant cross-competitor price gaps",
		Description: fmt.Sprintf("%d products have a price gap above %.0f%% across competitors. "+
			"Consider adjusting prices on these products.", n, cfg.GapAlertPercent),
		AffectedProducts: n,
		TriggeredAt:      in.Comparison.AnalyzedAt,
	}, true
}

func aggressiveDiscounting(_ Config, in Inputs) (domain.Recommendation, bool) {
	if in.Profile == nil || in.Profile.Strategy != domain.StrategyAggressiveDiscounting {
		return domain.Recommendation{}, false
	}
	st := in.Profile.Statistics
	return domain.Recommendation{
		Type:     "aggressive_discounting",
		Priority: domain.PriorityHigh,
		Title:    "Competitor runs an aggressive discounting strategy",
		Description: fmt.Sprintf("%.1f%% of products carry a promotion (average depth %.1f%%). "+
			"Consider launching your own promotions.", st.DiscountRatePercent, st.AvgDiscountDepthPercent),
		AffectedProducts: st.ProductsWithDiscount,
		TriggeredAt:      in.Profile.AnalyzedAt,
	}, true
}

func matchingLowPriceRisk(_ Config, in Inputs) (domain.Recommendation, bool) {
	if in.Profile == nil || in.Profile.Strategy != domain.StrategyAggressiveDiscounting {
		return domain.Recommendation{}, false
	}
	if in.Changes == nil || len(in.Changes.PriceDecreases) == 0 {
		return domain.Recommendation{}, false
	}
	latest := in.Changes.PriceDecreases[0].DetectedAt
	for _, pc := range in.Changes.PriceDecreases[1:] {
		if pc.DetectedAt > latest {
			latest = pc.DetectedAt
		}
	}
	return domain.Recommendation{
		Type:     "matching_low_price_risk",
		Priority: domain.PriorityHigh,
		Title:    "Review matching-low-price risk",
		Description: fmt.Sprintf("Sustained aggressive discounting with %d fresh price decreases. "+
			"Matching these prices may start a margin-destroying race; review before reacting.",
			len(in.Changes.PriceDecreases)),
		AffectedProducts: len(in.Changes.PriceDecreases),
		TriggeredAt:      latest,
	}, true
}

func premiumMonitor(_ Config, in Inputs) (domain.Recommendation, bool) {
	if in.Profile == nil || in.Profile.Strategy != domain.StrategyPremiumPricing {
		return domain.Recommendation{}, false
	}
	if in.Trends == nil || in.Trends.Summary.StableCount < in.Trends.Summary.Total()-in.Trends.Summary.StableCount {
		return domain.Recommendation{}, false
	}
	return domain.Recommendation{
		Type:             "premium_monitor",
		Priority:         domain.PriorityLow,
		Title:            "Premium competitor with stable prices: monitor only",
		Description:      "Pricing is premium and stable. No action needed; keep the competitor on the watch list.",
		AffectedProducts: in.Trends.Summary.StableCount,
		TriggeredAt:      in.Trends.AnalyzedAt,
	}, true
}

func catalogExpansion(_ Config, in Inputs) (domain.Recommendation, bool) {
	if in.Changes == nil || len(in.Changes.NewProducts) == 0 {
		return domain.Recommendation{}, false
	}
	latest := in.Changes.NewProducts[0].FirstSeenAt
	for _, np := range in.Changes.NewProducts[1:] {
		if np.FirstSeenAt > latest {
			latest = np.FirstSeenAt
		}
	}
	return domain.Recommendation{
		Type:     "catalog_expansion",
		Priority: domain.PriorityMedium,
		Title:    "Competitor is expanding its catalog",
		Description: fmt.Sprintf("%d new products appeared in the analysis window. "+
			"Check coverage of these categories in your own assortment.", len(in.Changes.NewProducts)),
		AffectedProducts: len(in.Changes.NewProducts),
		TriggeredAt:      latest,
	}, true
}

// Evaluate runs the rule table over one immutable input snapshot. Output is
// ordered by priority, then most recently triggered, then rule name, so the
// same inputs always serialize identically.
func Evaluate(cfg Config, in Inputs) []domain.Recommendation {
	recommendations := make([]domain.Recommendation, 0, len(ruleTable))
	for _, r := range ruleTable {
		if rec, ok := r.evaluate(cfg, in); ok {
			recommendations = append(recommendations, rec)
		}
	}

	sort.Slice(recommendations, func(i, j int) bool {
		ri, rj := recommendations[i], recommendations[j]
		if ri.Priority.Rank() != rj.Priority.Rank() {
			return ri.Priority.Rank() < rj.Priority.Rank()
		}
		if ri.TriggeredAt != rj.TriggeredAt {
			return ri.TriggeredAt > rj.TriggeredAt
		}
		return ri.Type < rj.Type
	})

	return recommendations
}

// Engine gathers analysis results for a competitor and evaluates the rule
// table over them.
type Engine struct {
	trends     *trend.Classifier
	comparator *compare.Comparator
	strategies *strategy.Detector
	changes    *change.Detector
	cfg        Config
	now        func() time.Time
}

// NewEngine creates a recommendation engine over the analysis components.
func NewEngine(trends *trend.Classifier, comparator *compare.Comparator, strategies *strategy.Detector, changes *change.Detector, cfg Config) *Engine {
	return &Engine{
		trends:     trends,
		comparator: comparator,
		strategies: strategies,
		changes:    changes,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Recommend runs every analysis component for one competitor and returns the
// ranked recommendations. A strategy with insufficient data degrades to the
// strategy rules not firing; no observations at all is an error.
func (e *Engine) Recommend(ctx context.Context, competitorID string) ([]domain.Recommendation, error) {
	if competitorID == "" {
		return nil, fmt.Errorf("%w: competitor id is required", analysis.ErrInvalidArgument)
	}

	trendReport, err := e.trends.ClassifyTrends(ctx, competitorID, e.cfg.TrendWindowDays, trend.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("classify trends: %w", err)
	}

	profile, err := e.strategies.DetectStrategy(ctx, competitorID, strategy.DefaultConfig())
	if err != nil && !errors.Is(err, analysis.ErrInsufficientData) {
		return nil, fmt.Errorf("detect strategy: %w", err)
	}

	changeSet, err := e.changes.DetectChanges(ctx, competitorID, e.cfg.ChangeWindowHours, change.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("detect changes: %w", err)
	}

	comparison, err := e.comparator.ComparePrices(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("compare prices: %w", err)
	}

	return Evaluate(e.cfg, Inputs{
		Profile:    profile,
		Trends:     trendReport,
		Changes:    changeSet,
		Comparison: comparison,
		Now:        e.now().UnixMilli(),
	}), nil
}
