package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"competitor-intel/internal/domain"
	"competitor-intel/internal/storage"
)

// ObservationStore is an in-memory implementation of storage.ObservationStore.
type ObservationStore struct {
	mu      sync.RWMutex
	data    map[string]*domain.Observation // keyed by (product_key, observed_at)
	nextSeq int64
}

// NewObservationStore creates a new in-memory observation store.
func NewObservationStore() *ObservationStore {
	return &ObservationStore{
		data:    make(map[string]*domain.Observation),
		nextSeq: 1,
	}
}

// observationKey generates a unique key for an observation.
func observationKey(productKey string, observedAt int64) string {
	return fmt.Sprintf("%s|%d", productKey, observedAt)
}

// Insert adds a new observation and assigns its Seq.
func (s *ObservationStore) Insert(ctx context.Context, o *domain.Observation) error {
	return s.InsertBulk(ctx, []*domain.Observation{o})
}

// InsertBulk adds multiple observations atomically. Fails entire batch on any duplicate.
func (s *ObservationStore) InsertBulk(_ context.Context, obs []*domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(obs))

	// First pass: check for duplicates (existing + intra-batch)
	for _, o := range obs {
		if o == nil || o.CompetitorID == "" || o.ProductKey == "" {
			return storage.ErrInvalidInput
		}
		key := observationKey(o.ProductKey, o.ObservedAt)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all, assigning insertion order
	for _, o := range obs {
		obsCopy := *o
		obsCopy.Seq = s.nextSeq
		s.nextSeq++
		o.Seq = obsCopy.Seq
		s.data[observationKey(o.ProductKey, o.ObservedAt)] = &obsCopy
	}

	return nil
}

// GetByTimeRange retrieves observations for a competitor within [start, end]
// (inclusive), ordered by observed_at ASC, Seq ASC.
func (s *ObservationStore) GetByTimeRange(_ context.Context, competitorID string, start, end int64) ([]*domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Observation
	for _, o := range s.data {
		if o.CompetitorID == competitorID && o.ObservedAt >= start && o.ObservedAt <= end {
			obsCopy := *o
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

// GetLatestPerProduct retrieves the latest in-range observation per product
// key. Timestamp ties resolve to the highest Seq. An empty competitorID
// spans all competitors. Results are ordered by product_key ASC.
func (s *ObservationStore) GetLatestPerProduct(_ context.Context, competitorID string, start, end int64) ([]*domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]*domain.Observation)
	for _, o := range s.data {
		if competitorID != "" && o.CompetitorID != competitorID {
			continue
		}
		if o.ObservedAt < start || o.ObservedAt > end {
			continue
		}
		cur, ok := latest[o.ProductKey]
		if !ok || o.ObservedAt > cur.ObservedAt ||
			(o.ObservedAt == cur.ObservedAt && o.Seq > cur.Seq) {
			latest[o.ProductKey] = o
		}
	}

	result := make([]*domain.Observation, 0, len(latest))
	for _, o := range latest {
		obsCopy := *o
		result = append(result, &obsCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ProductKey < result[j].ProductKey
	})

	return result, nil
}

var _ storage.ObservationStore = (*ObservationStore)(nil)
