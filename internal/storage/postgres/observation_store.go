package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"competitor-intel/internal/domain"
	"competitor-intel/internal/storage"
)

// ObservationStore implements storage.ObservationStore using PostgreSQL.
// Seq is the observations table's bigserial primary key, so insertion order
// is assigned by the database and survives restarts.
type ObservationStore struct {
	pool *Pool
}

// NewObservationStore creates a new ObservationStore.
func NewObservationStore(pool *Pool) *ObservationStore {
	return &ObservationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*ObservationStore)(nil)

const insertObservationQuery = `
	INSERT INTO observations (
		competitor_id, product_key, name, sku, url, category,
		price, currency, in_stock, promotion_ref, observed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING seq
`

// Insert adds a new observation and assigns its Seq.
// Returns ErrDuplicateKey if (product_key, observed_at) exists.
func (s *ObservationStore) Insert(ctx context.Context, o *domain.Observation) error {
	err := s.pool.QueryRow(ctx, insertObservationQuery,
		o.CompetitorID,
		o.ProductKey,
		o.Name,
		o.SKU,
		o.URL,
		o.Category,
		o.Price,
		o.Currency,
		o.InStock,
		o.PromotionRef,
		o.ObservedAt,
	).Scan(&o.Seq)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// InsertBulk adds multiple observations atomically. Fails entire batch on any duplicate.
func (s *ObservationStore) InsertBulk(ctx context.Context, obs []*domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, o := range obs {
		err := tx.QueryRow(ctx, insertObservationQuery,
			o.CompetitorID,
			o.ProductKey,
			o.Name,
			o.SKU,
			o.URL,
			o.Category,
			o.Price,
			o.Currency,
			o.InStock,
			o.PromotionRef,
			o.ObservedAt,
		).Scan(&o.Seq)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert observation in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

const observationColumns = `
	seq, competitor_id, product_key, name, sku, url, category,
	price, currency, in_stock, promotion_ref, observed_at
`

// GetByTimeRange retrieves observations for a competitor within [start, end]
// (inclusive, unix ms), ordered by observed_at ASC, seq ASC.
func (s *ObservationStore) GetByTimeRange(ctx context.Context, competitorID string, start, end int64) ([]*domain.Observation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM observations
		WHERE competitor_id = $1 AND observed_at >= $2 AND observed_at <= $3
		ORDER BY observed_at ASC, seq ASC
	`

	rows, err := s.pool.Query(ctx, query, competitorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get observations by time range: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// GetLatestPerProduct retrieves, for each product key, the latest observation
// with observed_at in [start, end]. Timestamp ties resolve to the highest seq.
// An empty competitorID spans all competitors. Ordered by product_key ASC.
func (s *ObservationStore) GetLatestPerProduct(ctx context.Context, competitorID string, start, end int64) ([]*domain.Observation, error) {
	query := `
		SELECT DISTINCT ON (product_key) ` + observationColumns + `
		FROM observations
		WHERE ($1 = '' OR competitor_id = $1)
		  AND observed_at >= $2 AND observed_at <= $3
		ORDER BY product_key ASC, observed_at DESC, seq DESC
	`

	rows, err := s.pool.Query(ctx, query, competitorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get latest observations per product: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// scanObservations scans multiple rows into a slice of Observation.
func scanObservations(rows pgx.Rows) ([]*domain.Observation, error) {
	var obs []*domain.Observation

	for rows.Next() {
		var o domain.Observation

		err := rows.Scan(
			&o.Seq,
			&o.CompetitorID,
			&o.ProductKey,
			&o.Name,
			&o.SKU,
			&o.URL,
			&o.Category,
			&o.Price,
			&o.Currency,
			&o.InStock,
			&o.PromotionRef,
			&o.ObservedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}

		obs = append(obs, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observation rows: %w", err)
	}

	return obs, nil
}
