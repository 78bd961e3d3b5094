package change

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"competitor-intel/internal/analysis"
	"competitor-intel/internal/domain"
	"competitor-intel/internal/storage"
)

// DetectChanges runs every detector for one competitor over one window and
// returns the combined set.
func (d *Detector) DetectChanges(ctx context.Context, competitorID string, hours int, cfg Config) (*domain.ChangeSet, error) {
	if err := validateWindow(competitorID, hours); err != nil {
		return nil, err
	}

	newProducts, err := d.DetectNewProducts(ctx, competitorID, hours)
	if err != nil {
		return nil, fmt.Errorf("detect new products: %w", err)
	}
	newPromotions, err := d.DetectNewPromotions(ctx, competitorID, hours)
	if err != nil {
		return nil, fmt.Errorf("detect new promotions: %w", err)
	}
	increases, decreases, err := d.DetectPriceChanges(ctx, competitorID, hours, cfg.MinChangePercent)
	if err != nil {
		return nil, fmt.Errorf("detect price changes: %w", err)
	}
	backInStock, outOfStock, err := d.DetectStockChanges(ctx, competitorID, hours)
	if err != nil {
		return nil, fmt.Errorf("detect stock changes: %w", err)
	}

	return &domain.ChangeSet{
		CompetitorID:   competitorID,
		WindowHours:    hours,
		NewProducts:    newProducts,
		NewPromotions:  newPromotions,
		PriceIncreases: increases,
		PriceDecreases: decreases,
		BackInStock:    backInStock,
		OutOfStock:     outOfStock,
	}, nil
}

// GetChangesSummary fans detection out over one competitor (competitorID set)
// or every enabled competitor (competitorID empty). A failure for one
// competitor degrades to a zero-count row with DataError set instead of
// failing the summary. Rows are ordered by competitor ID ascending.
func (d *Detector) GetChangesSummary(ctx context.Context, competitorID string, hours int, cfg Config) (*domain.ChangeSummary, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("%w: window hours must be positive, got %d", analysis.ErrInvalidArgument, hours)
	}

	var targets []*domain.Competitor
	if competitorID != "" {
		c, err := d.competitors.GetByID(ctx, competitorID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("%w: competitor %q not found", analysis.ErrNoObservations, competitorID)
		case err != nil:
			return nil, fmt.Errorf("fetch competitor: %w", err)
		}
		targets = []*domain.Competitor{c}
	} else {
		all, err := d.competitors.GetEnabled(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch competitors: %w", err)
		}
		targets = all
	}

	rows := make([]domain.CompetitorChanges, 0, len(targets))
	for _, c := range targets {
		row := domain.CompetitorChanges{
			CompetitorID:   c.CompetitorID,
			CompetitorName: c.Name,
		}
		set, err := d.DetectChanges(ctx, c.CompetitorID, hours, cfg)
		if err != nil {
			row.DataError = err.Error()
			row.Changes = domain.ChangeSet{CompetitorID: c.CompetitorID, WindowHours: hours}
		} else {
			row.Changes = *set
			row.Counts = set.Counts()
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CompetitorID < rows[j].CompetitorID
	})

	return &domain.ChangeSummary{
		PeriodHours:         hours,
		CompetitorsAnalyzed: len(rows),
		Competitors:         rows,
		AnalyzedAt:          d.now().UnixMilli(),
	}, nil
}
