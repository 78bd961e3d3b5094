// Package strategy derives a pricing-strategy label for a competitor from
// its current catalog snapshot.
package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"competitor-intel/internal/analysis"
	"competitor-intel/internal/compare"
	"competitor-intel/internal/domain"
	"competitor-intel/internal/storage"
)

// Config holds the classification thresholds.
type Config struct {
	// AggressiveDiscountRate is the discount-rate floor (percent of catalog
	// under promotion) for aggressive_discounting.
	AggressiveDiscountRate float64

	// AggressiveDiscountDepth is the mean-discount floor (percent) for
	// aggressive_discounting.
	AggressiveDiscountDepth float64

	// ModerateDiscountRate is the discount-rate floor for moderate_discounting.
	ModerateDiscountRate float64
}

// DefaultConfig returns the default classification thresholds.
func DefaultConfig() Config {
	return Config{
		AggressiveDiscountRate:  50,
		AggressiveDiscountDepth: 20,
		ModerateDiscountRate:    20,
	}
}

// Confidence interpolation bounds: 40% at 5 or fewer contributing products,
// 95% at 50 or more.
const (
	confidenceFloor      = 40.0
	confidenceCeiling    = 95.0
	confidenceMinSamples = 5
	confidenceMaxSamples = 50
)

// Detector classifies competitor pricing strategies.
type Detector struct {
	observations storage.ObservationStore
	promotions   storage.PromotionStore
	matcher      compare.Matcher
	now          func() time.Time
}

// NewDetector creates a new strategy detector. A nil matcher falls back to
// compare.NormalizedNameMatcher.
func NewDetector(observations storage.ObservationStore, promotions storage.PromotionStore, matcher compare.Matcher) *Detector {
	if matcher == nil {
		matcher = compare.NormalizedNameMatcher{}
	}
	return &Detector{
		observations: observations,
		promotions:   promotions,
		matcher:      matcher,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// DetectStrategy classifies the competitor's pricing strategy over its most
// recent catalog snapshot. The rules are evaluated in priority order, first
// match wins:
//
//  1. discount rate >= 50% and mean depth >= 20%  → aggressive_discounting
//  2. discount rate >= 20%                        → moderate_discounting
//  3. price position in the bottom tercile        → low_price_leader
//  4. price position in the top tercile           → premium_pricing
//  5. otherwise                                   → market_based_pricing
//
// Returns ErrInsufficientData when the competitor has no products; callers
// should render "unknown" rather than fail.
func (d *Detector) DetectStrategy(ctx context.Context, competitorID string, cfg Config) (*domain.StrategyProfile, error) {
	if competitorID == "" {
		return nil, fmt.Errorf("%w: competitor id is required", analysis.ErrInvalidArgument)
	}
	if cfg.AggressiveDiscountRate < 0 || cfg.AggressiveDiscountDepth < 0 || cfg.ModerateDiscountRate < 0 {
		return nil, fmt.Errorf("%w: thresholds must not be negative", analysis.ErrInvalidArgument)
	}

	now := d.now().UnixMilli()

	snapshot, err := d.observations.GetLatestPerProduct(ctx, competitorID, 0, now)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog snapshot: %w", err)
	}
	if len(snapshot) == 0 {
		return nil, fmt.Errorf("%w: competitor %s has no products", analysis.ErrInsufficientData, competitorID)
	}

	promos, err := d.promotions.GetLatestPerPromotion(ctx, competitorID, 0, now)
	if err != nil {
		return nil, fmt.Errorf("fetch promotions: %w", err)
	}
	promoByKey := make(map[string]*domain.PromotionObservation, len(promos))
	for _, p := range promos {
		promoByKey[p.PromotionKey] = p
	}

	stats := computeStatistics(snapshot, promoByKey)

	position, samples, err := d.pricePosition(ctx, competitorID, now)
	if err != nil {
		return nil, err
	}
	stats.PricePosition = position
	stats.PricePositionSamples = samples

	profile := &domain.StrategyProfile{
		CompetitorID:      competitorID,
		Strategy:          classify(stats, cfg),
		ConfidencePercent: confidence(stats.TotalProducts),
		Statistics:        stats,
		AnalyzedAt:        now,
	}
	return profile, nil
}

// computeStatistics derives the discount and price statistics behind the
// classification.
func computeStatistics(snapshot []*domain.Observation, promos map[string]*domain.PromotionObservation) domain.StrategyStatistics {
	stats := domain.StrategyStatistics{
		TotalProducts: len(snapshot),
	}

	var prices []float64
	var depths []float64
	for _, o := range snapshot {
		if o.Price > 0 {
			prices = append(prices, o.Price)
		}
		if o.PromotionRef == "" {
			continue
		}
		stats.ProductsWithDiscount++
		if depth, ok := discountDepth(o, promos[o.PromotionRef]); ok {
			depths = append(depths, depth)
		}
	}

	if len(prices) > 0 {
		sort.Float64s(prices)
		stats.MinPrice = prices[0]
		stats.MaxPrice = prices[len(prices)-1]
		stats.AveragePrice = round2(mean(prices))
		stats.MedianPrice = round2(median(prices))
	}

	stats.DiscountRatePercent = round2(float64(stats.ProductsWithDiscount) / float64(stats.TotalProducts) * 100)
	if len(depths) > 0 {
		stats.AvgDiscountDepthPercent = round2(mean(depths))
	}

	return stats
}

// discountDepth resolves an observation's promotion into a percentage
// discount. Bundle/other promotions count toward the discount rate but
// contribute no depth, as do dangling promotion refs.
func discountDepth(o *domain.Observation, promo *domain.PromotionObservation) (float64, bool) {
	if promo == nil {
		return 0, false
	}
	switch promo.PromotionType {
	case domain.PromotionPercentage:
		return promo.DiscountValue, true
	case domain.PromotionFixedAmount:
		if o.Price <= 0 {
			return 0, false
		}
		// Depth relative to the pre-discount price.
		original := o.Price + promo.DiscountValue
		return promo.DiscountValue / original * 100, true
	default:
		return 0, false
	}
}

// pricePosition computes the competitor's median normalized price rank
// across equivalence groups shared with other competitors. 0 means cheapest
// in every group, 1 most expensive.
func (d *Detector) pricePosition(ctx context.Context, competitorID string, now int64) (float64, int, error) {
	catalog, err := d.observations.GetLatestPerProduct(ctx, "", 0, now)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch cross-competitor catalog: %w", err)
	}

	// One representative per (equivalence key, competitor), latest wins.
	type groupKey struct {
		equiv      string
		competitor string
	}
	reps := make(map[groupKey]*domain.Observation)
	for _, o := range catalog {
		if o.Price <= 0 {
			continue
		}
		key := d.matcher.Key(o)
		if key == "" {
			continue
		}
		gk := groupKey{equiv: key, competitor: o.CompetitorID}
		cur, ok := reps[gk]
		if !ok || o.ObservedAt > cur.ObservedAt ||
			(o.ObservedAt == cur.ObservedAt && o.Seq > cur.Seq) {
			reps[gk] = o
		}
	}

	groups := make(map[string][]*domain.Observation)
	for gk, o := range reps {
		groups[gk.equiv] = append(groups[gk.equiv], o)
	}

	var positions []float64
	for _, items := range groups {
		if len(items) < 2 {
			continue
		}
		var mine *domain.Observation
		for _, o := range items {
			if o.CompetitorID == competitorID {
				mine = o
				break
			}
		}
		if mine == nil {
			continue
		}

		// Rank deterministically by (price, competitor ID).
		sort.Slice(items, func(i, j int) bool {
			if items[i].Price != items[j].Price {
				return items[i].Price < items[j].Price
			}
			return items[i].CompetitorID < items[j].CompetitorID
		})
		rank := 0
		for i, o := range items {
			if o.CompetitorID == competitorID {
				rank = i
				break
			}
		}
		positions = append(positions, float64(rank)/float64(len(items)-1))
	}

	if len(positions) == 0 {
		// No overlap with other competitors: neutral position.
		return 0.5, 0, nil
	}
	sort.Float64s(positions)
	return median(positions), len(positions), nil
}

// classify applies the priority-ordered rule table.
func classify(stats domain.StrategyStatistics, cfg Config) domain.Strategy {
	switch {
	case stats.DiscountRatePercent >= cfg.AggressiveDiscountRate &&
		stats.AvgDiscountDepthPercent >= cfg.AggressiveDiscountDepth:
		return domain.StrategyAggressiveDiscounting
	case stats.DiscountRatePercent >= cfg.ModerateDiscountRate:
		return domain.StrategyModerateDiscounting
	case stats.PricePositionSamples > 0 && stats.PricePosition <= 1.0/3.0:
		return domain.StrategyLowPriceLeader
	case stats.PricePositionSamples > 0 && stats.PricePosition >= 2.0/3.0:
		return domain.StrategyPremiumPricing
	default:
		return domain.StrategyMarketBasedPricing
	}
}

// confidence interpolates linearly from 40% at <=5 products to 95% at >=50.
func confidence(sampleCount int) float64 {
	if sampleCount <= confidenceMinSamples {
		return confidenceFloor
	}
	if sampleCount >= confidenceMaxSamples {
		return confidenceCeiling
	}
	span := confidenceCeiling - confidenceFloor
	frac := float64(sampleCount-confidenceMinSamples) / float64(confidenceMaxSamples-confidenceMinSamples)
	return round2(confidenceFloor + span*frac)
}

// mean calculates arithmetic mean. values must be non-empty.
func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// median returns the middle value. values must be pre-sorted and non-empty.
func median(values []float64) float64 {
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// round2 rounds to two decimal places for report-facing numbers.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
