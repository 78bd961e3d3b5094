package memory

import (
	"context"
	"sort"
	"sync"

	"competitor-intel/internal/domain"
	"competitor-intel/internal/storage"
)

// CompetitorStore is an in-memory implementation of storage.CompetitorStore.
type CompetitorStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Competitor // keyed by competitor_id
}

// NewCompetitorStore creates a new in-memory competitor store.
func NewCompetitorStore() *CompetitorStore {
	return &CompetitorStore{
		data: make(map[string]*domain.Competitor),
	}
}

// Insert adds a new competitor. Returns ErrDuplicateKey if competitor_id exists.
func (s *CompetitorStore) Insert(_ context.Context, c *domain.Competitor) error {
	if c == nil || c.CompetitorID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.CompetitorID]; exists {
		return storage.ErrDuplicateKey
	}

	compCopy := *c
	s.data[c.CompetitorID] = &compCopy
	return nil
}

// GetByID retrieves a competitor by its ID. Returns ErrNotFound if not exists.
func (s *CompetitorStore) GetByID(_ context.Context, competitorID string) (*domain.Competitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[competitorID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	compCopy := *c
	return &compCopy, nil
}

// GetAll retrieves all competitors, ordered by competitor_id ASC.
func (s *CompetitorStore) GetAll(_ context.Context) ([]*domain.Competitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Competitor, 0, len(s.data))
	for _, c := range s.data {
		compCopy := *c
		result = append(result, &compCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CompetitorID < result[j].CompetitorID
	})

	return result, nil
}

// GetEnabled retrieves enabled competitors, ordered by competitor_id ASC.
func (s *CompetitorStore) GetEnabled(ctx context.Context) ([]*domain.Competitor, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	result := all[:0]
	for _, c := range all {
		if c.Enabled {
			result = append(result, c)
		}
	}

	return result, nil
}

var _ storage.CompetitorStore = (*CompetitorStore)(nil)
