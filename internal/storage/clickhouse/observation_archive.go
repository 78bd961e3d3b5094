package clickhouse

import (
	"context"
	"fmt"

	"competitor-intel/internal/domain"
	"competitor-intel/internal/storage"
)

// ObservationArchive implements storage.ObservationArchive using ClickHouse.
// The archive keeps columns needed for historical price analytics; ingestion
// metadata (sku, url, promotion_ref, seq) stays in the hot store only.
type ObservationArchive struct {
	conn *Conn
}

// NewObservationArchive creates a new ObservationArchive.
func NewObservationArchive(conn *Conn) *ObservationArchive {
	return &ObservationArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.ObservationArchive = (*ObservationArchive)(nil)

// InsertBulk appends observations to the archive.
func (s *ObservationArchive) InsertBulk(ctx context.Context, obs []*domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO observation_archive (
			competitor_id, product_key, name, category,
			price, currency, in_stock, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range obs {
		inStock := uint8(0)
		if o.InStock {
			inStock = 1
		}
		err = batch.Append(
			o.CompetitorID, o.ProductKey, o.Name, o.Category,
			o.Price, o.Currency, inStock, uint64(o.ObservedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByProductKey retrieves archived observations for a product within
// [start, end], ordered by observed_at ASC.
func (s *ObservationArchive) GetByProductKey(ctx context.Context, productKey string, start, end int64) ([]*domain.Observation, error) {
	query := `
		SELECT competitor_id, product_key, name, category,
		       price, currency, in_stock, observed_at
		FROM observation_archive
		WHERE product_key = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, productKey, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("get archived observations: %w", err)
	}
	defer rows.Close()

	var obs []*domain.Observation
	for rows.Next() {
		var (
			o          domain.Observation
			inStock    uint8
			observedAt uint64
		)
		err := rows.Scan(
			&o.CompetitorID, &o.ProductKey, &o.Name, &o.Category,
			&o.Price, &o.Currency, &inStock, &observedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan archived observation row: %w", err)
		}
		o.InStock = inStock == 1
		o.ObservedAt = int64(observedAt)
		obs = append(obs, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived observation rows: %w", err)
	}

	return obs, nil
}

// CountByCompetitor returns the number of archived observations for a
// competitor within [start, end].
func (s *ObservationArchive) CountByCompetitor(ctx context.Context, competitorID string, start, end int64) (uint64, error) {
	query := `
		SELECT count()
		FROM observation_archive
		WHERE competitor_id = ? AND observed_at >= ? AND observed_at <= ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, competitorID, uint64(start), uint64(end)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count archived observations: %w", err)
	}
	return count, nil
}
