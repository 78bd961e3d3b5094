package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"competitor-intel/internal/domain"
	"competitor-intel/internal/storage"
)

// PromotionStore implements storage.PromotionStore using PostgreSQL.
type PromotionStore struct {
	pool *Pool
}

// NewPromotionStore creates a new PromotionStore.
func NewPromotionStore(pool *Pool) *PromotionStore {
	return &PromotionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PromotionStore = (*PromotionStore)(nil)

const insertPromotionQuery = `
	INSERT INTO promotion_observations (
		competitor_id, promotion_key, title, promotion_type,
		discount_value, discount_type, observed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING seq
`

// Insert adds a new promotion observation and assigns its Seq.
// Returns ErrDuplicateKey if (promotion_key, observed_at) exists.
func (s *PromotionStore) Insert(ctx context.Context, p *domain.PromotionObservation) error {
	err := s.pool.QueryRow(ctx, insertPromotionQuery,
		p.CompetitorID,
		p.PromotionKey,
		p.Title,
		string(p.PromotionType),
		p.DiscountValue,
		p.DiscountType,
		p.ObservedAt,
	).Scan(&p.Seq)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert promotion observation: %w", err)
	}
	return nil
}

// InsertBulk adds multiple observations atomically. Fails entire batch on any duplicate.
func (s *PromotionStore) InsertBulk(ctx context.Context, obs []*domain.PromotionObservation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range obs {
		err := tx.QueryRow(ctx, insertPromotionQuery,
			p.CompetitorID,
			p.PromotionKey,
			p.Title,
			string(p.PromotionType),
			p.DiscountValue,
			p.DiscountType,
			p.ObservedAt,
		).Scan(&p.Seq)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert promotion observation in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

const promotionColumns = `
	seq, competitor_id, promotion_key, title, promotion_type,
	discount_value, discount_type, observed_at
`

// GetByTimeRange retrieves promotion observations for a competitor within
// [start, end] (inclusive, unix ms), ordered by observed_at ASC, seq ASC.
func (s *PromotionStore) GetByTimeRange(ctx context.Context, competitorID string, start, end int64) ([]*domain.PromotionObservation, error) {
	query := `
		SELECT ` + promotionColumns + `
		FROM promotion_observations
		WHERE competitor_id = $1 AND observed_at >= $2 AND observed_at <= $3
		ORDER BY observed_at ASC, seq ASC
	`

	rows, err := s.pool.Query(ctx, query, competitorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get promotion observations by time range: %w", err)
	}
	defer rows.Close()

	return scanPromotionObservations(rows)
}

// GetLatestPerPromotion retrieves, for each promotion key, the latest
// observation with observed_at in [start, end]. Timestamp ties resolve to the
// highest seq. Ordered by promotion_key ASC.
func (s *PromotionStore) GetLatestPerPromotion(ctx context.Context, competitorID string, start, end int64) ([]*domain.PromotionObservation, error) {
	query := `
		SELECT DISTINCT ON (promotion_key) ` + promotionColumns + `
		FROM promotion_observations
		WHERE ($1 = '' OR competitor_id = $1)
		  AND observed_at >= $2 AND observed_at <= $3
		ORDER BY promotion_key ASC, observed_at DESC, seq DESC
	`

	rows, err := s.pool.Query(ctx, query, competitorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get latest observations per promotion: %w", err)
	}
	defer rows.Close()

	return scanPromotionObservations(rows)
}

// scanPromotionObservations scans multiple rows into a slice of PromotionObservation.
func scanPromotionObservations(rows pgx.Rows) ([]*domain.PromotionObservation, error) {
	var obs []*domain.PromotionObservation

	for rows.Next() {
		var p domain.PromotionObservation
		var promotionType string

		err := rows.Scan(
			&p.Seq,
			&p.CompetitorID,
			&p.PromotionKey,
			&p.Title,
			&promotionType,
			&p.DiscountValue,
			&p.DiscountType,
			&p.ObservedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan promotion observation row: %w", err)
		}

		p.PromotionType = domain.PromotionType(promotionType)
		obs = append(obs, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotion observation rows: %w", err)
	}

	return obs, nil
}
