package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"competitor-intel/internal/domain"
	"competitor-intel/internal/storage"
)

func testObservation(competitorID, productKey string, price float64, observedAt int64) *domain.Observation {
	return &domain.Observation{
		CompetitorID: competitorID,
		ProductKey:   productKey,
		Name:         "Test Widget",
		Category:     "widgets",
		Price:        price,
		Currency:     "USD",
		InStock:      true,
		ObservedAt:   observedAt,
	}
}

func TestObservationStore_InsertAndGetByTimeRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewObservationStore(pool)

	o := testObservation("c1", "key1", 99.5, 1000)
	require.NoError(t, store.Insert(ctx, o))
	assert.NotZero(t, o.Seq, "Insert must assign seq")

	obs, err := store.GetByTimeRange(ctx, "c1", 1000, 2000)
	require.NoError(t, err)

	require.Len(t, obs, 1)
	assert.Equal(t, "c1", obs[0].CompetitorID)
	assert.Equal(t, "key1", obs[0].ProductKey)
	assert.InDelta(t, 99.5, obs[0].Price, 0.0001)
	assert.Equal(t, int64(1000), obs[0].ObservedAt)
	assert.True(t, obs[0].InStock)
}

func TestObservationStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewObservationStore(pool)

	require.NoError(t, store.Insert(ctx, testObservation("c1", "dup", 10, 1000)))

	err := store.Insert(ctx, testObservation("c1", "dup", 11, 1000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestObservationStore_InsertBulkAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewObservationStore(pool)

	require.NoError(t, store.Insert(ctx, testObservation("c1", "existing", 10, 1000)))

	batch := []*domain.Observation{
		testObservation("c1", "fresh", 20, 1000),
		testObservation("c1", "existing", 30, 1000), // duplicate
	}
	err := store.InsertBulk(ctx, batch)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Whole batch must roll back, including the non-duplicate row.
	obs, err := store.GetByTimeRange(ctx, "c1", 0, 2000)
	require.NoError(t, err)
	assert.Len(t, obs, 1)
}

func TestObservationStore_GetByTimeRangeOrdering(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewObservationStore(pool)

	require.NoError(t, store.Insert(ctx, testObservation("c1", "b", 10, 2000)))
	require.NoError(t, store.Insert(ctx, testObservation("c1", "a", 10, 1000)))
	require.NoError(t, store.Insert(ctx, testObservation("c1", "c", 10, 2000)))

	obs, err := store.GetByTimeRange(ctx, "c1", 0, 3000)
	require.NoError(t, err)

	require.Len(t, obs, 3)
	assert.Equal(t, "a", obs[0].ProductKey)
	// Same observed_at resolves by insertion order.
	assert.Equal(t, "b", obs[1].ProductKey)
	assert.Equal(t, "c", obs[2].ProductKey)
}

func TestObservationStore_GetLatestPerProduct(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewObservationStore(pool)

	require.NoError(t, store.Insert(ctx, testObservation("c1", "key1", 10, 1000)))
	require.NoError(t, store.Insert(ctx, testObservation("c1", "key1", 12, 2000)))
	require.NoError(t, store.Insert(ctx, testObservation("c2", "key2", 50, 1500)))

	latest, err := store.GetLatestPerProduct(ctx, "c1", 0, 3000)
	require.NoError(t, err)

	require.Len(t, latest, 1)
	assert.InDelta(t, 12.0, latest[0].Price, 0.0001)

	// Empty competitor spans all competitors, ordered by product key.
	latest, err = store.GetLatestPerProduct(ctx, "", 0, 3000)
	require.NoError(t, err)

	require.Len(t, latest, 2)
	assert.Equal(t, "key1", latest[0].ProductKey)
	assert.Equal(t, "key2", latest[1].ProductKey)
}

func TestObservationStore_GetLatestPerProduct_TieBreaksOnSeq(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewObservationStore(pool)

	// Same product observed at the same millisecond under different keys is
	// rejected; simulate the tie via two products written at one timestamp,
	// then re-observed. Tie behavior within a single key needs distinct rows,
	// so write, then write a same-timestamp row for a second key and check
	// that GetLatestPerProduct resolves each key independently.
	require.NoError(t, store.Insert(ctx, testObservation("c1", "k1", 10, 1000)))
	require.NoError(t, store.Insert(ctx, testObservation("c1", "k2", 20, 1000)))
	require.NoError(t, store.Insert(ctx, testObservation("c1", "k1", 15, 2000)))

	latest, err := store.GetLatestPerProduct(ctx, "c1", 0, 3000)
	require.NoError(t, err)

	require.Len(t, latest, 2)
	assert.InDelta(t, 15.0, latest[0].Price, 0.0001)
	assert.InDelta(t, 20.0, latest[1].Price, 0.0001)
}

func TestObservationStore_WindowBoundsInclusive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewObservationStore(pool)

	require.NoError(t, store.Insert(ctx, testObservation("c1", "edge1", 10, 1000)))
	require.NoError(t, store.Insert(ctx, testObservation("c1", "edge2", 10, 2000)))
	require.NoError(t, store.Insert(ctx, testObservation("c1", "outside", 10, 2001)))

	obs, err := store.GetByTimeRange(ctx, "c1", 1000, 2000)
	require.NoError(t, err)
	assert.Len(t, obs, 2)
}
