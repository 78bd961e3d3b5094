package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"competitor-intel/internal/domain"
	"competitor-intel/internal/storage"
)

// CompetitorStore implements storage.CompetitorStore using PostgreSQL.
type CompetitorStore struct {
	pool *Pool
}

// NewCompetitorStore creates a new CompetitorStore.
func NewCompetitorStore(pool *Pool) *CompetitorStore {
	return &CompetitorStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CompetitorStore = (*CompetitorStore)(nil)

// Insert adds a new competitor. Returns ErrDuplicateKey if competitor_id exists.
func (s *CompetitorStore) Insert(ctx context.Context, c *domain.Competitor) error {
	query := `
		INSERT INTO competitors (competitor_id, name, url, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		c.CompetitorID,
		c.Name,
		c.URL,
		c.Enabled,
		c.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert competitor: %w", err)
	}
	return nil
}

// GetByID retrieves a competitor by its ID. Returns ErrNotFound if not exists.
func (s *CompetitorStore) GetByID(ctx context.Context, competitorID string) (*domain.Competitor, error) {
	query := `
		SELECT competitor_id, name, url, enabled, created_at
		FROM competitors
		WHERE competitor_id = $1
	`

	var c domain.Competitor
	err := s.pool.QueryRow(ctx, query, competitorID).Scan(
		&c.CompetitorID,
		&c.Name,
		&c.URL,
		&c.Enabled,
		&c.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get competitor by id: %w", err)
	}
	return &c, nil
}

// GetAll retrieves all competitors, ordered by competitor_id ASC.
func (s *CompetitorStore) GetAll(ctx context.Context) ([]*domain.Competitor, error) {
	query := `
		SELECT competitor_id, name, url, enabled, created_at
		FROM competitors
		ORDER BY competitor_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all competitors: %w", err)
	}
	defer rows.Close()

	return scanCompetitors(rows)
}

// GetEnabled retrieves enabled competitors, ordered by competitor_id ASC.
func (s *CompetitorStore) GetEnabled(ctx context.Context) ([]*domain.Competitor, error) {
	query := `
		SELECT competitor_id, name, url, enabled, created_at
		FROM competitors
		WHERE enabled
		ORDER BY competitor_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get enabled competitors: %w", err)
	}
	defer rows.Close()

	return scanCompetitors(rows)
}

// scanCompetitors scans multiple rows into a slice of Competitor.
func scanCompetitors(rows pgx.Rows) ([]*domain.Competitor, error) {
	var competitors []*domain.Competitor

	for rows.Next() {
		var c domain.Competitor

		err := rows.Scan(
			&c.CompetitorID,
			&c.Name,
			&c.URL,
			&c.Enabled,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan competitor row: %w", err)
		}

		competitors = append(competitors, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate competitor rows: %w", err)
	}

	return competitors, nil
}
