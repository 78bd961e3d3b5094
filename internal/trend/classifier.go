// Package trend classifies per-product price trajectories over a window.
package trend

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

// Config holds the classification thresholds. Passed explicitly per call so
// the same store can be analyzed under different policies concurrently.
type Config struct {
	// StableBandPercent is the net change band (±) inside which a product
	// counts as stable.
	StableBandPercent float64

	// VolatilityThreshold is the coefficient-of-variation ratio above which
	// a product counts as volatile regardless of net change sign.
	VolatilityThreshold float64
}

// DefaultConfig returns the default classification thresholds.
func DefaultConfig() Config {
	return Config{
		StableBandPercent:   2.0,
		VolatilityThreshold: 0.10,
	}
}

// Classifier computes price trend reports from stored observations.
type Classifier struct {
	observations storage.ObservationStore
	now          func() time.Time // injectable clock for deterministic output
}

// NewClassifier creates a new trend classifier.
func NewClassifier(observations storage.ObservationStore) *Classifier {
	return &Classifier{
		observations: observations,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

// ClassifyTrends classifies every product observed for the competitor within
// the last windowDays. Every distinct product key in range lands in exactly
// one direction bucket, so the summary counts add up to the product count.
//
// Returns ErrInvalidArgument on malformed input and ErrNoObservations when
// the competitor has no observations in range.
func (c *Classifier) ClassifyTrends(ctx context.Context, competitorID string, windowDays int, cfg Config) (*domain.TrendReport, error) {
	if competitorID == "" {
		return nil, fmt.Errorf("%w: competitor id is required", analysis.ErrInvalidArgument)
	}
	if windowDays <= 0 {
		return nil, fmt.Errorf("%w: window days must be positive, got %d", analysis.ErrInvalidArgument, windowDays)
	}
	if cfg.StableBandPercent < 0 {
		return nil, fmt.Errorf("%w: stable band must not be negative", analysis.ErrInvalidArgument)
	}
	if cfg.VolatilityThreshold < 0 {
		return nil, fmt.Errorf("%w: volatility threshold must not be negative", analysis.ErrInvalidArgument)
	}

	now := c.now().UnixMilli()
	start := now - int64(windowDays)*24*int64(time.Hour/time.Millisecond)

	obs, err := c.observations.GetByTimeRange(ctx, competitorID, start, now)
	if err != nil {
		return nil, fmt.Errorf("fetch observations: %w", err)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: competitor %s, window %dd", analysis.ErrNoObservations, competitorID, windowDays)
	}

	// Group by product key; input is already observed_at ASC, Seq ASC.
	byProduct := make(map[string][]*domain.Observation)
	for _, o := range obs {
		byProduct[o.ProductKey] = append(byProduct[o.ProductKey], o)
	}

	report := &domain.TrendReport{
		CompetitorID: competitorID,
		WindowDays:   windowDays,
		Products:     make([]domain.Trend, 0, len(byProduct)),
		AnalyzedAt:   now,
	}

	for key, history := range byProduct {
		report.Products = append(report.Products, classifyProduct(key, history, cfg))
	}

	sort.Slice(report.Products, func(i, j int) bool {
		mi := math.Abs(report.Products[i].MagnitudePercent)
		mj := math.Abs(report.Products[j].MagnitudePercent)
		if mi != mj {
			return mi > mj
		}
		return report.Products[i].ProductKey < report.Products[j].ProductKey
	})

	for _, t := range report.Products {
		switch t.Direction {
		case domain.TrendIncreasing:
			report.Summary.IncreasingCount++
		case domain.TrendDecreasing:
			report.Summary.DecreasingCount++
		case domain.TrendVolatile:
			report.Summary.VolatileCount++
		default:
			report.Summary.StableCount++
		}
	}

	return report, nil
}

// classifyProduct derives one product's trend from its in-window history.
// history must be non-empty and chronologically ordered.
func classifyProduct(key string, history []*domain.Observation, cfg Config) domain.Trend {
	first := history[0]
	last := history[len(history)-1]

	t := domain.Trend{
		ProductKey:  key,
		Name:        last.Name,
		Category:    last.Category,
		FirstPrice:  first.Price,
		LastPrice:   last.Price,
		SampleCount: len(history),
	}

	if first.Price == 0 {
		// Zero baseline: percent change is undefined. Resolve to stable and
		// keep the product out of volatility scoring.
		t.Direction = domain.TrendStable
		return t
	}

	t.MagnitudePercent = round2((last.Price - first.Price) / first.Price * 100)

	prices := make([]float64, len(history))
	for i, o := range history {
		prices[i] = o.Price
	}
	cv := coefficientOfVariation(prices)
	t.VolatilityPercent = round2(cv * 100)

	switch {
	case cv > cfg.VolatilityThreshold:
		t.Direction = domain.TrendVolatile
	case t.MagnitudePercent > cfg.StableBandPercent:
		t.Direction = domain.TrendIncreasing
	case t.MagnitudePercent < -cfg.StableBandPercent:
		t.Direction = domain.TrendDecreasing
	default:
		t.Direction = domain.TrendStable
	}

	return t
}
