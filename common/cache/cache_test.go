package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsLeastRecent(t *testing.T) {
	c := NewLRU[int](3)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	require.Equal(t, 3, c.Size())

	// Touch "a" so "b" becomes the least recent
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4)
	assert.Equal(t, 3, c.Size())

	_, ok = c.Get("b")
	assert.False(t, ok, "least recent entry should have been evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "key %s should survive", key)
	}
}

func TestLRUUpdatePromotes(t *testing.T) {
	c := NewLRU[string](2)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("a", "updated")
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "updated", v)
}

func TestLRUBoundedAtExactlyMaxSize(t *testing.T) {
	const n = 1000
	c := NewLRU[int](n)
	for i := 0; i < n; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}
	require.Equal(t, n, c.Size())

	c.Set("one-more", n)
	assert.Equal(t, n, c.Size())

	_, ok := c.Get("key-0")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("key-1")
	assert.True(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	now := time.Now()
	c := NewTTL[string](time.Minute)
	c.now = func() time.Time { return now }

	c.SetWithTTL("k", "v", 10*time.Second)

	now = now.Add(10*time.Second - time.Millisecond)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(2 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry should be expired")
	assert.Equal(t, 0, c.Size(), "expired entry is deleted lazily on Get")
}

func TestTTLCleanupExpired(t *testing.T) {
	now := time.Now()
	c := NewTTL[int](time.Second)
	c.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	c.SetWithTTL("long", 99, time.Hour)

	now = now.Add(2 * time.Second)
	removed := c.CleanupExpired()
	assert.Equal(t, 5, removed)
	assert.Equal(t, 1, c.Size())

	v, ok := c.Get("long")
	require.True(t, ok)
	assert.Equal(t, 99, v)
}

func TestLRUTTLCombined(t *testing.T) {
	now := time.Now()
	c := NewLRUTTL[int](1000, time.Hour)
	c.now = func() time.Time { return now }

	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("conv-%d", i), i)
	}
	require.Equal(t, 1000, c.Size())

	// The 1001st insert evicts the oldest, size stays bounded
	c.Set("conv-1000", 1000)
	assert.Equal(t, 1000, c.Size())
	_, ok := c.Get("conv-0")
	assert.False(t, ok)

	// Advance past the TTL: cleanup purges everything
	now = now.Add(time.Hour + time.Second)
	removed := c.CleanupExpired()
	assert.Equal(t, 1000, removed)
	assert.Equal(t, 0, c.Size())
}

func TestLRUTTLGetChecksTTLBeforePromoting(t *testing.T) {
	now := time.Now()
	c := NewLRUTTL[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestLRUConcurrentAccess(t *testing.T) {
	c := NewLRU[int](100)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k-%d", i%150)
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 100)
}
