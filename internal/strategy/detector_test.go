package strategy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"competitor-intel/internal/analysis"
	"competitor-intel/internal/domain"
	"competitor-intel/internal/storage/memory"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ts(hoursAgo int) int64 {
	return testNow.Add(-time.Duration(hoursAgo) * time.Hour).UnixMilli()
}

type fixture struct {
	observations *memory.ObservationStore
	promotions   *memory.PromotionStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		observations: memory.NewObservationStore(),
		promotions:   memory.NewPromotionStore(),
	}
}

func (f *fixture) detector() *Detector {
	return NewDetector(f.observations, f.promotions, nil).
		WithClock(func() time.Time { return testNow })
}

// addCatalog inserts n products for a competitor, the first `discounted` of
// them tied to a 25%-off percentage promotion.
func (f *fixture) addCatalog(t *testing.T, competitorID string, n, discounted int) {
	t.Helper()
	ctx := context.Background()

	promoKey := competitorID + "-promo"
	if discounted > 0 {
		promo := &domain.PromotionObservation{
			CompetitorID:  competitorID,
			PromotionKey:  promoKey,
			Title:         "Sale",
			PromotionType: domain.PromotionPercentage,
			DiscountValue: 25,
			ObservedAt:    ts(1),
		}
		if err := f.promotions.Insert(ctx, promo); err != nil {
			t.Fatalf("insert promotion: %v", err)
		}
	}

	var obs []*domain.Observation
	for i := 0; i < n; i++ {
		o := &domain.Observation{
			CompetitorID: competitorID,
			ProductKey:   fmt.Sprintf("%s-p%03d", competitorID, i),
			Name:         fmt.Sprintf("Product %03d", i),
			Price:        100 + float64(i),
			ObservedAt:   ts(1),
		}
		if i < discounted {
			o.PromotionRef = promoKey
		}
		obs = append(obs, o)
	}
	if err := f.observations.InsertBulk(ctx, obs); err != nil {
		t.Fatalf("insert observations: %v", err)
	}
}

func TestDetectStrategy_AggressiveDiscounting(t *testing.T) {
	f := newFixture(t)
	f.addCatalog(t, "c1", 10, 6) // 60% discounted at 25% depth

	profile, err := f.detector().DetectStrategy(context.Background(), "c1", DefaultConfig())
	if err != nil {
		t.Fatalf("DetectStrategy failed: %v", err)
	}

	if profile.Strategy != domain.StrategyAggressiveDiscounting {
		t.Errorf("expected aggressive_discounting, got %s", profile.Strategy)
	}
	if profile.Statistics.DiscountRatePercent != 60 {
		t.Errorf("expected 60%% discount rate, got %v", profile.Statistics.DiscountRatePercent)
	}
	if profile.Statistics.AvgDiscountDepthPercent != 25 {
		t.Errorf("expected 25%% depth, got %v", profile.Statistics.AvgDiscountDepthPercent)
	}
}

func TestDetectStrategy_ModerateDiscounting(t *testing.T) {
	f := newFixture(t)
	f.addCatalog(t, "c1", 10, 3) // 30% discounted

	profile, err := f.detector().DetectStrategy(context.Background(), "c1", DefaultConfig())
	if err != nil {
		t.Fatalf("DetectStrategy failed: %v", err)
	}

	if profile.Strategy != domain.StrategyModerateDiscounting {
		t.Errorf("expected moderate_discounting, got %s", profile.Strategy)
	}
}

func TestDetectStrategy_LowPriceLeader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// c1 always cheapest on shared products, no promotions.
	obs := []*domain.Observation{
		{CompetitorID: "c1", ProductKey: "c1-a", Name: "Alpha", Price: 80, ObservedAt: ts(1)},
		{CompetitorID: "c2", ProductKey: "c2-a", Name: "Alpha", Price: 100, ObservedAt: ts(1)},
		{CompetitorID: "c3", ProductKey: "c3-a", Name: "Alpha", Price: 110, ObservedAt: ts(1)},
		{CompetitorID: "c1", ProductKey: "c1-b", Name: "Beta", Price: 45, ObservedAt: ts(1)},
		{CompetitorID: "c2", ProductKey: "c2-b", Name: "Beta", Price: 60, ObservedAt: ts(1)},
	}
	if err := f.observations.InsertBulk(ctx, obs); err != nil {
		t.Fatalf("insert observations: %v", err)
	}

	profile, err := f.detector().DetectStrategy(ctx, "c1", DefaultConfig())
	if err != nil {
		t.Fatalf("DetectStrategy failed: %v", err)
	}

	if profile.Strategy != domain.StrategyLowPriceLeader {
		t.Errorf("expected low_price_leader, got %s", profile.Strategy)
	}
	if profile.Statistics.PricePosition != 0 {
		t.Errorf("expected price position 0, got %v", profile.Statistics.PricePosition)
	}
}

func TestDetectStrategy_PremiumPricing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	obs := []*domain.Observation{
		{CompetitorID: "c1", ProductKey: "c1-a", Name: "Alpha", Price: 150, ObservedAt: ts(1)},
		{CompetitorID: "c2", ProductKey: "c2-a", Name: "Alpha", Price: 100, ObservedAt: ts(1)},
		{CompetitorID: "c3", ProductKey: "c3-a", Name: "Alpha", Price: 90, ObservedAt: ts(1)},
	}
	if err := f.observations.InsertBulk(ctx, obs); err != nil {
		t.Fatalf("insert observations: %v", err)
	}

	profile, err := f.detector().DetectStrategy(ctx, "c1", DefaultConfig())
	if err != nil {
		t.Fatalf("DetectStrategy failed: %v", err)
	}

	if profile.Strategy != domain.StrategyPremiumPricing {
		t.Errorf("expected premium_pricing, got %s", profile.Strategy)
	}
}

func TestDetectStrategy_MarketBasedFallback(t *testing.T) {
	f := newFixture(t)
	f.addCatalog(t, "c1", 10, 0) // no promotions, no overlap

	profile, err := f.detector().DetectStrategy(context.Background(), "c1", DefaultConfig())
	if err != nil {
		t.Fatalf("DetectStrategy failed: %v", err)
	}

	if profile.Strategy != domain.StrategyMarketBasedPricing {
		t.Errorf("expected market_based_pricing, got %s", profile.Strategy)
	}
	if profile.Statistics.PricePositionSamples != 0 {
		t.Errorf("expected no position samples without overlap, got %d",
			profile.Statistics.PricePositionSamples)
	}
}

func TestDetectStrategy_InsufficientData(t *testing.T) {
	f := newFixture(t)

	_, err := f.detector().DetectStrategy(context.Background(), "empty", DefaultConfig())
	if !errors.Is(err, analysis.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestDetectStrategy_InvalidArgument(t *testing.T) {
	f := newFixture(t)

	_, err := f.detector().DetectStrategy(context.Background(), "", DefaultConfig())
	if !errors.Is(err, analysis.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestDetectStrategy_ConfidenceMonotonic(t *testing.T) {
	// Same aggressive profile, growing catalog: confidence must not
	// decrease as sample size grows from 5 to 50.
	prev := 0.0
	for _, n := range []int{5, 10, 20, 35, 50, 80} {
		f := newFixture(t)
		f.addCatalog(t, "c1", n, (n*6+9)/10) // ~60% discounted

		profile, err := f.detector().DetectStrategy(context.Background(), "c1", DefaultConfig())
		if err != nil {
			t.Fatalf("DetectStrategy failed at n=%d: %v", n, err)
		}
		if profile.Strategy != domain.StrategyAggressiveDiscounting {
			t.Fatalf("expected aggressive_discounting at n=%d, got %s", n, profile.Strategy)
		}
		if profile.ConfidencePercent < prev {
			t.Errorf("confidence decreased at n=%d: %v < %v", n, profile.ConfidencePercent, prev)
		}
		prev = profile.ConfidencePercent
	}
	if prev != 95 {
		t.Errorf("expected confidence capped at 95, got %v", prev)
	}
}

func TestConfidence_Bounds(t *testing.T) {
	if got := confidence(1); got != 40 {
		t.Errorf("expected floor 40, got %v", got)
	}
	if got := confidence(5); got != 40 {
		t.Errorf("expected 40 at 5 samples, got %v", got)
	}
	if got := confidence(50); got != 95 {
		t.Errorf("expected 95 at 50 samples, got %v", got)
	}
	if got := confidence(500); got != 95 {
		t.Errorf("expected cap 95, got %v", got)
	}

	mid := confidence(27) // roughly halfway
	if mid <= 40 || mid >= 95 {
		t.Errorf("expected interpolated confidence, got %v", mid)
	}
}

func TestDiscountDepth_FixedAmount(t *testing.T) {
	o := &domain.Observation{Price: 75}
	promo := &domain.PromotionObservation{
		PromotionType: domain.PromotionFixedAmount,
		DiscountValue: 25,
	}

	depth, ok := discountDepth(o, promo)
	if !ok {
		t.Fatalf("expected depth for fixed-amount promotion")
	}
	// 25 off an original 100 is a 25% discount.
	if depth != 25 {
		t.Errorf("expected depth 25, got %v", depth)
	}
}

func TestDiscountDepth_BundleExcluded(t *testing.T) {
	o := &domain.Observation{Price: 75}
	promo := &domain.PromotionObservation{PromotionType: domain.PromotionBundle, DiscountValue: 1}

	if _, ok := discountDepth(o, promo); ok {
		t.Errorf("bundle promotions must not contribute depth")
	}
}
