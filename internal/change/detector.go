// Package change diffs baseline vs. current snapshot state to surface
// discrete events: new products, new promotions, price moves and stock
// transitions.
package change

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"competitor-intel/internal/analysis"
	"competitor-intel/internal/domain"
	"competitor-intel/internal/storage"
)

// Config holds the detection thresholds.
type Config struct {
	// MinChangePercent is the |percent| floor below which a price move is
	// not reported.
	MinChangePercent float64

	// DiscontinuedAfterDays is the staleness cutoff for discontinued
	// product detection.
	DiscontinuedAfterDays int
}

// DefaultConfig returns the default detection thresholds.
func DefaultConfig() Config {
	return Config{
		MinChangePercent:      5.0,
		DiscontinuedAfterDays: 7,
	}
}

// DefaultWindowHours is the default lookback window.
const DefaultWindowHours = 24

// Detector surfaces discrete change events from stored observations.
//
// All detectors compare a baseline (the latest observation strictly before
// the window start) against the current state (the latest observation
// inside the window). Identical-timestamp ties resolve to the last-written
// row, so repeated runs against unchanged data are byte-identical.
type Detector struct {
	observations storage.ObservationStore
	promotions   storage.PromotionStore
	competitors  storage.CompetitorStore
	now          func() time.Time
}

// NewDetector creates a new change detector.
func NewDetector(observations storage.ObservationStore, promotions storage.PromotionStore, competitors storage.CompetitorStore) *Detector {
	return &Detector{
		observations: observations,
		promotions:   promotions,
		competitors:  competitors,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// window converts an hours lookback into [start, now] unix-ms bounds.
func (d *Detector) window(hours int) (start, now int64) {
	nowMs := d.now().UnixMilli()
	return nowMs - int64(hours)*int64(time.Hour/time.Millisecond), nowMs
}

func validateWindow(competitorID string, hours int) error {
	if competitorID == "" {
		return fmt.Errorf("%w: competitor id is required", analysis.ErrInvalidArgument)
	}
	if hours <= 0 {
		return fmt.Errorf("%w: window hours must be positive, got %d", analysis.ErrInvalidArgument, hours)
	}
	return nil
}

// DetectNewProducts returns products first seen inside the window: they
// have an observation in range and none before the window start.
// Results are ordered by first-seen descending, product key ascending on ties.
func (d *Detector) DetectNewProducts(ctx context.Context, competitorID string, hours int) ([]domain.NewProduct, error) {
	if err := validateWindow(competitorID, hours); err != nil {
		return nil, err
	}
	start, now := d.window(hours)

	baseline, err := d.observations.GetLatestPerProduct(ctx, competitorID, 0, start-1)
	if err != nil {
		return nil, fmt.Errorf("fetch baseline: %w", err)
	}
	known := make(map[string]struct{}, len(baseline))
	for _, o := range baseline {
		known[o.ProductKey] = struct{}{}
	}

	inWindow, err := d.observations.GetByTimeRange(ctx, competitorID, start, now)
	if err != nil {
		return nil, fmt.Errorf("fetch window: %w", err)
	}

	// First in-window observation per key; input is chronologically ordered.
	firstSeen := make(map[string]*domain.Observation)
	for _, o := range inWindow {
		if _, ok := known[o.ProductKey]; ok {
			continue
		}
		if _, ok := firstSeen[o.ProductKey]; !ok {
			firstSeen[o.ProductKey] = o
		}
	}

	result := make([]domain.NewProduct, 0, len(firstSeen))
	for _, o := range firstSeen {
		result = append(result, domain.NewProduct{
			CompetitorID: o.CompetitorID,
			ProductKey:   o.ProductKey,
			Name:         o.Name,
			Category:     o.Category,
			URL:          o.URL,
			Price:        o.Price,
			Currency:     o.Currency,
			InStock:      o.InStock,
			FirstSeenAt:  o.ObservedAt,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].FirstSeenAt != result[j].FirstSeenAt {
			return result[i].FirstSeenAt > result[j].FirstSeenAt
		}
		return result[i].ProductKey < result[j].ProductKey
	})

	return result, nil
}

// DetectNewPromotions applies the first-seen-inside-window rule to
// promotion observations.
func (d *Detector) DetectNewPromotions(ctx context.Context, competitorID string, hours int) ([]domain.NewPromotion, error) {
	if err := validateWindow(competitorID, hours); err != nil {
		return nil, err
	}
	start, now := d.window(hours)

	baseline, err := d.promotions.GetLatestPerPromotion(ctx, competitorID, 0, start-1)
	if err != nil {
		return nil, fmt.Errorf("fetch baseline: %w", err)
	}
	known := make(map[string]struct{}, len(baseline))
	for _, p := range baseline {
		known[p.PromotionKey] = struct{}{}
	}

	inWindow, err := d.promotions.GetByTimeRange(ctx, competitorID, start, now)
	if err != nil {
		return nil, fmt.Errorf("fetch window: %w", err)
	}

	firstSeen := make(map[string]*domain.PromotionObservation)
	for _, p := range inWindow {
		if _, ok := known[p.PromotionKey]; ok {
			continue
		}
		if _, ok := firstSeen[p.PromotionKey]; !ok {
			firstSeen[p.PromotionKey] = p
		}
	}

	result := make([]domain.NewPromotion, 0, len(firstSeen))
	for _, p := range firstSeen {
		result = append(result, domain.NewPromotion{
			CompetitorID:  p.CompetitorID,
			PromotionKey:  p.PromotionKey,
			Title:         p.Title,
			PromotionType: p.PromotionType,
			DiscountValue: p.DiscountValue,
			DiscountType:  p.DiscountType,
			FirstSeenAt:   p.ObservedAt,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].FirstSeenAt != result[j].FirstSeenAt {
			return result[i].FirstSeenAt > result[j].FirstSeenAt
		}
		return result[i].PromotionKey < result[j].PromotionKey
	})

	return result, nil
}

// DetectPriceChanges compares each product's baseline price to its current
// in-window price and reports moves of at least minChangePercent. Products
// with no baseline are new, not changed, and are excluded; so are zero
// baseline prices. Both slices are sorted by |change| descending.
func (d *Detector) DetectPriceChanges(ctx context.Context, competitorID string, hours int, minChangePercent float64) (increases, decreases []domain.PriceChange, err error) {
	if err := validateWindow(competitorID, hours); err != nil {
		return nil, nil, err
	}
	if minChangePercent < 0 {
		return nil, nil, fmt.Errorf("%w: min change percent must not be negative", analysis.ErrInvalidArgument)
	}
	start, now := d.window(hours)

	baseline, current, err := d.baselineAndCurrent(ctx, competitorID, start, now)
	if err != nil {
		return nil, nil, err
	}

	for key, cur := range current {
		base, ok := baseline[key]
		if !ok {
			continue // first seen in window: new, not changed
		}
		if base.Price == 0 {
			continue // undefined percent change; degrade per-item
		}
		changePercent := round2((cur.Price - base.Price) / base.Price * 100)
		if math.Abs(changePercent) < minChangePercent || changePercent == 0 {
			continue
		}

		pc := domain.PriceChange{
			CompetitorID:   cur.CompetitorID,
			ProductKey:     key,
			Name:           cur.Name,
			Category:       cur.Category,
			URL:            cur.URL,
			OldPrice:       base.Price,
			NewPrice:       cur.Price,
			ChangePercent:  changePercent,
			ChangeAbsolute: round2(cur.Price - base.Price),
			DetectedAt:     cur.ObservedAt,
		}
		if changePercent > 0 {
			increases = append(increases, pc)
		} else {
			decreases = append(decreases, pc)
		}
	}

	byMagnitude := func(s []domain.PriceChange) {
		sort.Slice(s, func(i, j int) bool {
			mi := math.Abs(s[i].ChangePercent)
			mj := math.Abs(s[j].ChangePercent)
			if mi != mj {
				return mi > mj
			}
			return s[i].ProductKey < s[j].ProductKey
		})
	}
	byMagnitude(increases)
	byMagnitude(decreases)

	return increases, decreases, nil
}

// DetectStockChanges compares baseline vs. current stock status per product.
// false→true emits BackInStock, true→false emits OutOfStock. Products with
// no baseline are excluded.
func (d *Detector) DetectStockChanges(ctx context.Context, competitorID string, hours int) (backInStock, outOfStock []domain.StockChange, err error) {
	if err := validateWindow(competitorID, hours); err != nil {
		return nil, nil, err
	}
	start, now := d.window(hours)

	baseline, current, err := d.baselineAndCurrent(ctx, competitorID, start, now)
	if err != nil {
		return nil, nil, err
	}

	for key, cur := range current {
		base, ok := baseline[key]
		if !ok || base.InStock == cur.InStock {
			continue
		}

		sc := domain.StockChange{
			CompetitorID: cur.CompetitorID,
			ProductKey:   key,
			Name:         cur.Name,
			Category:     cur.Category,
			Price:        cur.Price,
			InStock:      cur.InStock,
			DetectedAt:   cur.ObservedAt,
		}
		if cur.InStock {
			backInStock = append(backInStock, sc)
		} else {
			outOfStock = append(outOfStock, sc)
		}
	}

	byDetected := func(s []domain.StockChange) {
		sort.Slice(s, func(i, j int) bool {
			if s[i].DetectedAt != s[j].DetectedAt {
				return s[i].DetectedAt > s[j].DetectedAt
			}
			return s[i].ProductKey < s[j].ProductKey
		})
	}
	byDetected(backInStock)
	byDetected(outOfStock)

	return backInStock, outOfStock, nil
}

// DetectDiscontinued returns active products whose last observation is older
// than the staleness cutoff, ordered by last-seen ascending (stalest first).
func (d *Detector) DetectDiscontinued(ctx context.Context, competitorID string, days int) ([]domain.DiscontinuedProduct, error) {
	if competitorID == "" {
		return nil, fmt.Errorf("%w: competitor id is required", analysis.ErrInvalidArgument)
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: staleness days must be positive, got %d", analysis.ErrInvalidArgument, days)
	}

	now := d.now().UnixMilli()
	cutoff := now - int64(days)*24*int64(time.Hour/time.Millisecond)

	latest, err := d.observations.GetLatestPerProduct(ctx, competitorID, 0, now)
	if err != nil {
		return nil, fmt.Errorf("fetch latest per product: %w", err)
	}

	var result []domain.DiscontinuedProduct
	for _, o := range latest {
		if o.ObservedAt >= cutoff {
			continue
		}
		result = append(result, domain.DiscontinuedProduct{
			CompetitorID: o.CompetitorID,
			ProductKey:   o.ProductKey,
			Name:         o.Name,
			Category:     o.Category,
			LastPrice:    o.Price,
			Currency:     o.Currency,
			LastSeenAt:   o.ObservedAt,
			DaysInactive: int((now - o.ObservedAt) / (24 * int64(time.Hour/time.Millisecond))),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].LastSeenAt != result[j].LastSeenAt {
			return result[i].LastSeenAt < result[j].LastSeenAt
		}
		return result[i].ProductKey < result[j].ProductKey
	})

	return result, nil
}

// baselineAndCurrent loads the latest observation per product before the
// window start and inside the window, keyed by product.
func (d *Detector) baselineAndCurrent(ctx context.Context, competitorID string, start, now int64) (baseline, current map[string]*domain.Observation, err error) {
	base, err := d.observations.GetLatestPerProduct(ctx, competitorID, 0, start-1)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch baseline: %w", err)
	}
	cur, err := d.observations.GetLatestPerProduct(ctx, competitorID, start, now)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch current: %w", err)
	}

	baseline = make(map[string]*domain.Observation, len(base))
	for _, o := range base {
		baseline[o.ProductKey] = o
	}
	current = make(map[string]*domain.Observation, len(cur))
	for _, o := range cur {
		current[o.ProductKey] = o
	}
	return baseline, current, nil
}

// round2 rounds to two decimal places for report-facing percentages.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
