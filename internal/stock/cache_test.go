package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*SnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSnapshotCache(client, time.Minute), mr
}

func TestSnapshotCacheLoadsOnceAndServesFromRedis(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (Snapshot, error) {
		calls++
		return Snapshot{ItemID: 1, SKU: "SKU-1", QtyOnHand: 42}, nil
	}

	snap, err := cache.Get(ctx, 1, loader)
	require.NoError(t, err)
	require.Equal(t, int64(42), snap.QtyOnHand)
	require.Equal(t, 1, calls)

	snap, err = cache.Get(ctx, 1, loader)
	require.NoError(t, err)
	require.Equal(t, int64(42), snap.QtyOnHand)
	require.Equal(t, 1, calls)
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	qty := int64(10)
	loader := func(ctx context.Context) (Snapshot, error) {
		return Snapshot{ItemID: 2, QtyOnHand: qty}, nil
	}

	snap, err := cache.Get(ctx, 2, loader)
	require.NoError(t, err)
	require.Equal(t, int64(10), snap.QtyOnHand)

	qty = 25
	require.NoError(t, cache.Invalidate(ctx, 2))

	snap, err = cache.Get(ctx, 2, loader)
	require.NoError(t, err)
	require.Equal(t, int64(25), snap.QtyOnHand)
}

func TestSnapshotCacheLoaderError(t *testing.T) {
	cache, _ := newTestCache(t)

	wantErr := errors.New("boom")
	_, err := cache.Get(context.Background(), 3, func(ctx context.Context) (Snapshot, error) {
		return Snapshot{}, wantErr
	})
	require.ErrorIs(t, err, wantErr)
}
