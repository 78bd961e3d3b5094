package storage

import (
	"context"

	"competitor-intel/internal/domain"
)

// ObservationStore provides access to observations storage.
//
// Observations are append-only. The store assigns a monotonically increasing
// Seq on insert; all reads order by observed_at ASC with Seq ASC as a stable
// tie-break, so "latest" lookups resolve identical timestamps to the
// last-written row on every run.
type ObservationStore interface {
	// Insert adds a new observation and assigns its Seq.
	// Returns ErrDuplicateKey if (product_key, observed_at) exists.
	Insert(ctx context.Context, o *domain.Observation) error

	// InsertBulk adds multiple observations atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, obs []*domain.Observation) error

	// GetByTimeRange retrieves observations for a competitor within [start, end]
	// (inclusive, unix ms), ordered by observed_at ASC, Seq ASC.
	GetByTimeRange(ctx context.Context, competitorID string, start, end int64) ([]*domain.Observation, error)

	// GetLatestPerProduct retrieves, for each product key, the latest
	// observation with observed_at in [start, end]. Timestamp ties resolve to
	// the highest Seq. An empty competitorID spans all competitors.
	// Results are ordered by product_key ASC.
	GetLatestPerProduct(ctx context.Context, competitorID string, start, end int64) ([]*domain.Observation, error)
}

// PromotionStore provides access to promotion_observations storage.
type PromotionStore interface {
	// Insert adds a new promotion observation and assigns its Seq.
	// Returns ErrDuplicateKey if (promotion_key, observed_at) exists.
	Insert(ctx context.Context, p *domain.PromotionObservation) error

	// InsertBulk adds multiple observations atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, obs []*domain.PromotionObservation) error

	// GetByTimeRange retrieves promotion observations for a competitor within
	// [start, end] (inclusive, unix ms), ordered by observed_at ASC, Seq ASC.
	GetByTimeRange(ctx context.Context, competitorID string, start, end int64) ([]*domain.PromotionObservation, error)

	// GetLatestPerPromotion retrieves, for each promotion key, the latest
	// observation with observed_at in [start, end]. Timestamp ties resolve to
	// the highest Seq. Results are ordered by promotion_key ASC.
	GetLatestPerPromotion(ctx context.Context, competitorID string, start, end int64) ([]*domain.PromotionObservation, error)
}

// ObservationArchive provides access to the long-horizon observation
// archive. The archive is written behind the hot store and serves historical
// exports; the analysis components never read it.
type ObservationArchive interface {
	// InsertBulk appends observations to the archive.
	InsertBulk(ctx context.Context, obs []*domain.Observation) error

	// GetByProductKey retrieves archived observations for a product within
	// [start, end] (inclusive, unix ms), ordered by observed_at ASC.
	GetByProductKey(ctx context.Context, productKey string, start, end int64) ([]*domain.Observation, error)

	// CountByCompetitor returns the number of archived observations for a
	// competitor within [start, end].
	CountByCompetitor(ctx context.Context, competitorID string, start, end int64) (uint64, error)
}

// CompetitorStore provides access to competitors storage.
type CompetitorStore interface {
	// Insert adds a new competitor. Returns ErrDuplicateKey if competitor_id exists.
	Insert(ctx context.Context, c *domain.Competitor) error

	// GetByID retrieves a competitor by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, competitorID string) (*domain.Competitor, error)

	// GetAll retrieves all competitors, ordered by competitor_id ASC.
	GetAll(ctx context.Context) ([]*domain.Competitor, error)

	// GetEnabled retrieves enabled competitors, ordered by competitor_id ASC.
	GetEnabled(ctx context.Context) ([]*domain.Competitor, error)
}
