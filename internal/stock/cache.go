package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// SnapshotCache keeps current-stock views in Redis so list screens do not
// hit the items table on every request. Writers invalidate after commit;
// the singleflight group collapses concurrent misses for the same item.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewSnapshotCache constructs the cache.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(itemID int64) string {
	return fmt.Sprintf("stock:snapshot:%d", itemID)
}

// Get returns the cached snapshot, loading and storing it on a miss.
func (c *SnapshotCache) Get(ctx context.Context, itemID int64, loader func(context.Context) (Snapshot, error)) (Snapshot, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := snapshotKey(itemID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			return snap, nil
		}
		// Corrupt entry, fall through to reload.
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		snap, err := loader(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		payload, err := json.Marshal(snap)
		if err != nil {
			return Snapshot{}, err
		}
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			return Snapshot{}, err
		}
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return result.(Snapshot), nil
}

// Invalidate drops cached snapshots for the given items.
func (c *SnapshotCache) Invalidate(ctx context.Context, itemIDs ...int64) error {
	if c == nil || c.client == nil || len(itemIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		keys = append(keys, snapshotKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}
