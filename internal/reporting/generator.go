package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"competitor-intel/internal/analysis"
	"competitor-intel/internal/change"
	"competitor-intel/internal/compare"
	"competitor-intel/internal/recommend"
	"competitor-intel/internal/storage"
	"competitor-intel/internal/strategy"
	"competitor-intel/internal/trend"
)

// Config bounds the analysis windows feeding the report.
type Config struct {
	TrendWindowDays   int
	ChangeWindowHours int
}

// DefaultConfig returns the default report windows.
func DefaultConfig() Config {
	return Config{
		TrendWindowDays:   30,
		ChangeWindowHours: 24,
	}
}

// Generator produces intelligence reports from stored observations.
type Generator struct {
	competitors storage.CompetitorStore
	trends      *trend.Classifier
	comparator  *compare.Comparator
	strategies  *strategy.Detector
	changes     *change.Detector
	engine      *recommend.Engine
	cfg         Config
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	competitors storage.CompetitorStore,
	trends *trend.Classifier,
	comparator *compare.Comparator,
	strategies *strategy.Detector,
	changes *change.Detector,
	engine *recommend.Engine,
	cfg Config,
) *Generator {
	return &Generator{
		competitors: competitors,
		trends:      trends,
		comparator:  comparator,
		strategies:  strategies,
		changes:     changes,
		engine:      engine,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete report over all enabled competitors.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	enabled, err := g.competitors.GetEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch competitors: %w", err)
	}

	sections := make([]CompetitorSection, 0, len(enabled))
	for _, c := range enabled {
		sections = append(sections, g.buildSection(ctx, c.CompetitorID, c.Name))
	}
	sort.Slice(sections, func(i, j int) bool {
		return sections[i].CompetitorID < sections[j].CompetitorID
	})

	comparison, err := g.comparator.ComparePrices(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("compare prices: %w", err)
	}

	return &Report{
		GeneratedAt:       g.now(),
		TrendWindowDays:   g.cfg.TrendWindowDays,
		ChangeWindowHours: g.cfg.ChangeWindowHours,
		Competitors:       sections,
		Comparison:        comparison,
	}, nil
}

// buildSection runs every analysis for one competitor, degrading failures
// into the section's DataError.
func (g *Generator) buildSection(ctx context.Context, competitorID, name string) CompetitorSection {
	section := CompetitorSection{
		CompetitorID: competitorID,
		Name:         name,
	}

	trendReport, err := g.trends.ClassifyTrends(ctx, competitorID, g.cfg.TrendWindowDays, trend.DefaultConfig())
	switch {
	case errors.Is(err, analysis.ErrNoObservations):
		section.DataError = "no observations in range"
		return section
	case err != nil:
		section.DataError = err.Error()
		return section
	}
	section.Trends = trendReport

	profile, err := g.strategies.DetectStrategy(ctx, competitorID, strategy.DefaultConfig())
	if err != nil && !errors.Is(err, analysis.ErrInsufficientData) {
		section.DataError = err.Error()
		return section
	}
	section.Profile = profile // nil renders as "unknown"

	changeSet, err := g.changes.DetectChanges(ctx, competitorID, g.cfg.ChangeWindowHours, change.DefaultConfig())
	if err != nil {
		section.DataError = err.Error()
		return section
	}
	section.Changes = changeSet
	section.ChangeCounts = changeSet.Counts()

	recs, err := g.engine.Recommend(ctx, competitorID)
	if err != nil {
		section.DataError = err.Error()
		return section
	}
	section.Recommendations = recs

	return section
}
