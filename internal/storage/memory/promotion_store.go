package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"competitor-intel/internal/domain"
	"competitor-intel/internal/storage"
)

// PromotionStore is an in-memory implementation of storage.PromotionStore.
type PromotionStore struct {
	mu      sync.RWMutex
	data    map[string]*domain.PromotionObservation // keyed by (promotion_key, observed_at)
	nextSeq int64
}

// NewPromotionStore creates a new in-memory promotion store.
func NewPromotionStore() *PromotionStore {
	return &PromotionStore{
		data:    make(map[string]*domain.PromotionObservation),
		nextSeq: 1,
	}
}

// promotionKey generates a unique key for a promotion observation.
func promotionKey(promoKey string, observedAt int64) string {
	return fmt.Sprintf("%s|%d", promoKey, observedAt)
}

// Insert adds a new promotion observation and assigns its Seq.
func (s *PromotionStore) Insert(ctx context.Context, p *domain.PromotionObservation) error {
	return s.InsertBulk(ctx, []*domain.PromotionObservation{p})
}

// InsertBulk adds multiple observations atomically. Fails entire batch on any duplicate.
func (s *PromotionStore) InsertBulk(_ context.Context, obs []*domain.PromotionObservation) error {
	if len(obs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(obs))

	for _, p := range obs {
		if p == nil || p.CompetitorID == "" || p.PromotionKey == "" {
			return storage.ErrInvalidInput
		}
		key := promotionKey(p.PromotionKey, p.ObservedAt)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range obs {
		obsCopy := *p
		obsCopy.Seq = s.nextSeq
		s.nextSeq++
		p.Seq = obsCopy.Seq
		s.data[promotionKey(p.PromotionKey, p.ObservedAt)] = &obsCopy
	}

	return nil
}

// GetByTimeRange retrieves promotion observations for a competitor within
// [start, end] (inclusive), ordered by observed_at ASC, Seq ASC.
func (s *PromotionStore) GetByTimeRange(_ context.Context, competitorID string, start, end int64) ([]*domain.PromotionObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PromotionObservation
	for _, p := range s.data {
		if p.CompetitorID == competitorID && p.ObservedAt >= start && p.ObservedAt <= end {
			obsCopy := *p
			result = append(result, &obsCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ObservedAt != result[j].ObservedAt {
			return result[i].ObservedAt < result[j].ObservedAt
		}
		return result[i].Seq < result[j].Seq
	})

	return result, nil
}

// GetLatestPerPromotion retrieves the latest in-range observation per
// promotion key. Timestamp ties resolve to the highest Seq. Results are
// ordered by promotion_key ASC.
func (s *PromotionStore) GetLatestPerPromotion(_ context.Context, competitorID string, start, end int64) ([]*domain.PromotionObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*domain.PromotionObservation)
	for _, p := range s.data {
		if competitorID != "" && p.CompetitorID != competitorID {
			continue
		}
		if p.ObservedAt < start || p.ObservedAt > end {
			continue
		}
		cur, ok := latest[p.PromotionKey]
		if !ok || p.ObservedAt > cur.ObservedAt ||
			(p.ObservedAt == cur.ObservedAt && p.Seq > cur.Seq) {
			latest[p.PromotionKey] = p
		}
	}

	result := make([]*domain.PromotionObservation, 0, len(latest))
	for _, p := range latest {
		obsCopy := *p
		result = append(result, &obsCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PromotionKey < result[j].PromotionKey
	})

	return result, nil
}

var _ storage.PromotionStore = (*PromotionStore)(nil)
