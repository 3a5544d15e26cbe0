package cache

import (
	"context"
	"testing"

	"github.com/hupe1980/bkdgo/internal/resource"
	"github.com/hupe1980/bkdgo/model"
	"github.com/stretchr/testify/assert"
)

func pageKey(seg model.SegmentID, addr uint64) Key {
	return Key{Kind: KindPage, SegmentID: seg, Offset: addr}
}

func TestLRUBlockCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(100, nil)

	c.Set(ctx, pageKey(1, 0), []byte("page"))

	b, ok := c.Get(ctx, pageKey(1, 0))
	assert.True(t, ok)
	assert.Equal(t, "page", string(b))

	_, ok = c.Get(ctx, pageKey(1, 1))
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLRUBlockCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(10, nil)

	c.Set(ctx, pageKey(1, 0), make([]byte, 4))
	c.Set(ctx, pageKey(1, 1), make([]byte, 4))
	_, _ = c.Get(ctx, pageKey(1, 0)) // 0 becomes most recent
	c.Set(ctx, pageKey(1, 2), make([]byte, 4))

	_, ok := c.Get(ctx, pageKey(1, 1))
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get(ctx, pageKey(1, 0))
	assert.True(t, ok)
	assert.Equal(t, int64(8), c.Size())

	c.Set(ctx, pageKey(1, 3), make([]byte, 11))
	_, ok = c.Get(ctx, pageKey(1, 3))
	assert.False(t, ok, "oversized blocks are not cached")
}

func TestLRUBlockCache_InvalidateAndAccounting(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 10})
	c := NewLRUBlockCache(1<<10, rc)

	c.Set(ctx, pageKey(1, 0), make([]byte, 16))
	c.Set(ctx, pageKey(2, 0), make([]byte, 16))
	assert.Equal(t, int64(32), rc.MemoryUsage())

	c.Invalidate(func(k Key) bool { return k.SegmentID == 1 })

	_, ok := c.Get(ctx, pageKey(1, 0))
	assert.False(t, ok)
	_, ok = c.Get(ctx, pageKey(2, 0))
	assert.True(t, ok)
	assert.Equal(t, int64(16), rc.MemoryUsage())
}
