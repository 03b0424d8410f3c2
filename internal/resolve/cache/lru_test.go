package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLRUExpiresByTTL(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	c := NewLRU(10, time.Minute, WithClock(clk.Now))

	require.NoError(t, c.Set(ctx, "epic_goal", "Ship v2"))
	clk.Advance(59 * time.Second)
	v, ok, err := c.Get(ctx, "epic_goal")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ship v2", v)

	clk.Advance(time.Second)
	_, ok, err = c.Get(ctx, "epic_goal")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, time.Hour)

	require.NoError(t, c.Set(ctx, "a", "1"))
	require.NoError(t, c.Set(ctx, "b", "2"))
	_, ok, _ := c.Get(ctx, "a")
	require.True(t, ok)
	require.NoError(t, c.Set(ctx, "c", "3"))

	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Evictions())
}

func TestLRUSetRefreshesAndDelete(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	c := NewLRU(2, time.Minute, WithClock(clk.Now))

	require.NoError(t, c.Set(ctx, "k", "old"))
	clk.Advance(50 * time.Second)
	require.NoError(t, c.Set(ctx, "k", "new"))
	clk.Advance(50 * time.Second)
	v, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "new", v)

	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "absent"))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLRUConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(16, time.Hour)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 200 {
				key := fmt.Sprintf("k%d", (i*j)%32)
				_ = c.Set(ctx, key, key)
				if v, ok, _ := c.Get(ctx, key); ok && v != key {
					t.Errorf("got %q for %q", v, key)
				}
				if j%10 == 0 {
					_ = c.Delete(ctx, key)
				}
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}
