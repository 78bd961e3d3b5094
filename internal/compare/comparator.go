// Package compare aligns equivalent products across competitors and
// computes price gaps.
package compare

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"competitor-intel/internal/domain"
	"competitor-intel/internal/storage"
)

// Comparator computes cross-competitor price comparisons.
type Comparator struct {
	observations storage.ObservationStore
	matcher      Matcher
	now          func() time.Time
}

// NewComparator creates a new comparator. A nil matcher falls back to
// NormalizedNameMatcher.
func NewComparator(observations storage.ObservationStore, matcher Matcher) *Comparator {
	if matcher == nil {
		matcher = NormalizedNameMatcher{}
	}
	return &Comparator{
		observations: observations,
		matcher:      matcher,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (c *Comparator) WithClock(now func() time.Time) *Comparator {
	c.now = now
	return c
}

// ComparePrices groups the current catalog by equivalence key and computes
// a PriceGap per group represented by two or more competitors. An empty
// category means no filter. Groups with fewer than two competitors
// contribute nothing; that is not an error.
func (c *Comparator) ComparePrices(ctx context.Context, category string) (*domain.PriceComparison, error) {
	now := c.now().UnixMilli()

	current, err := c.observations.GetLatestPerProduct(ctx, "", 0, now)
	if err != nil {
		return nil, fmt.Errorf("fetch current catalog: %w", err)
	}

	// One representative per (equivalence key, competitor): the latest
	// observation, so a competitor listing the same product twice cannot
	// hold both extremes of a group.
	type groupKey struct {
		equiv      string
		competitor string
	}
	reps := make(map[groupKey]*domain.Observation)
	for _, o := range current {
		if category != "" && o.Category != category {
			continue
		}
		if o.Price <= 0 {
			// Unpriced or bad scrape; skip the row, not the report.
			continue
		}
		key := c.matcher.Key(o)
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

	result := &domain.PriceComparison{
		Category:              category,
		TotalProductsCompared: len(groups),
		AnalyzedAt:            now,
	}

	statsByCompetitor := make(map[string]*domain.CompetitorPriceStats)
	sums := make(map[string]float64)

	for equiv, items := range groups {
		for _, o := range items {
			st, ok := statsByCompetitor[o.CompetitorID]
			if !ok {
				st = &domain.CompetitorPriceStats{
					CompetitorID: o.CompetitorID,
					MinPrice:     math.Inf(1),
				}
				statsByCompetitor[o.CompetitorID] = st
			}
			st.ProductCount++
			sums[o.CompetitorID] += o.Price
			if o.Price < st.MinPrice {
				st.MinPrice = o.Price
			}
			if o.Price > st.MaxPrice {
				st.MaxPrice = o.Price
			}
		}

		if len(items) < 2 {
			continue
		}

		gap := buildGap(equiv, items)
		result.Gaps = append(result.Gaps, gap)
	}

	for id, st := range statsByCompetitor {
		st.AveragePrice = round2(sums[id] / float64(st.ProductCount))
		result.CompetitorStats = append(result.CompetitorStats, *st)
	}
	sort.Slice(result.CompetitorStats, func(i, j int) bool {
		return result.CompetitorStats[i].CompetitorID < result.CompetitorStats[j].CompetitorID
	})

	sort.Slice(result.Gaps, func(i, j int) bool {
		if result.Gaps[i].PriceDifferencePercent != result.Gaps[j].PriceDifferencePercent {
			return result.Gaps[i].PriceDifferencePercent > result.Gaps[j].PriceDifferencePercent
		}
		return result.Gaps[i].ProductKey < result.Gaps[j].ProductKey
	})

	return result, nil
}

// buildGap computes the price spread for one equivalence group. items holds
// one observation per competitor and has at least two entries.
func buildGap(equiv string, items []*domain.Observation) domain.PriceGap {
	// Deterministic extreme selection: price, then competitor ID.
	cheapest := items[0]
	dearest := items[0]
	for _, o := range items[1:] {
		if o.Price < cheapest.Price ||
			(o.Price == cheapest.Price && o.CompetitorID < cheapest.CompetitorID) {
			cheapest = o
		}
		if o.Price > dearest.Price ||
			(o.Price == dearest.Price && o.CompetitorID > dearest.CompetitorID) {
			dearest = o
		}
	}

	diff := dearest.Price - cheapest.Price
	return domain.PriceGap{
		ProductKey:                equiv,
		ProductName:               cheapest.Name,
		Category:                  cheapest.Category,
		MinPrice:                  cheapest.Price,
		MaxPrice:                  dearest.Price,
		PriceDifference:           round2(diff),
		PriceDifferencePercent:    round2(diff / cheapest.Price * 100),
		CheapestCompetitorID:      cheapest.CompetitorID,
		MostExpensiveCompetitorID: dearest.CompetitorID,
		CompetitorCount:           len(items),
	}
}

// round2 rounds to two decimal places for report-facing numbers.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
