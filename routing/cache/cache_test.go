// SPDX-License-Identifier: jobmesh License 1.0

package cache

import (
	"fmt"
	"testing"
	stdlibtime "time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUBoundAndEvictionOrder(t *testing.T) {
	t.Parallel()
	lru := NewLRU(2, 0, false)

	lru.Set("a", "1")
	lru.Set("b", "2")
	require.Equal(t, 2, lru.Len())

	lru.Set("c", "3")
	require.Equal(t, 2, lru.Len())
	_, found := lru.Get("a")
	assert.False(t, found, "the least recently used entry has to go first")

	_, found = lru.Get("b")
	require.True(t, found)
	lru.Set("d", "4")
	_, found = lru.Get("c")
	assert.False(t, found, "refreshing `b` has to make `c` the eviction candidate")
	_, found = lru.Get("b")
	assert.True(t, found)

	stats := lru.Stats()
	assert.EqualValues(t, 2, stats.Evictions)
	assert.Equal(t, 2, stats.Size)
}

func TestLRUNeverExceedsMaxSize(t *testing.T) {
	t.Parallel()
	const maxSize = 10
	lru := NewLRU(maxSize, 0, false)

	for ix := range maxSize * 10 {
		lru.Set(fmt.Sprintf("key%v", ix), fmt.Sprintf("value%v", ix))
		require.LessOrEqual(t, lru.Len(), maxSize)
	}
	assert.Equal(t, maxSize, lru.Len())
	assert.EqualValues(t, maxSize*10-maxSize, lru.Stats().Evictions)
}

func TestLRUTTLExpiry(t *testing.T) {
	t.Parallel()
	lru := NewLRU(10, 100*stdlibtime.Millisecond, false)

	lru.Set("a", "1")
	value, found := lru.Get("a")
	require.True(t, found)
	assert.Equal(t, "1", value)

	stdlibtime.Sleep(200 * stdlibtime.Millisecond)
	_, found = lru.Get("a")
	assert.False(t, found)
	assert.Equal(t, 0, lru.Len(), "expired entries are dropped on read")
}

func TestLRUUpdateAgeOnGetKeepsEntriesAlive(t *testing.T) {
	t.Parallel()
	lru := NewLRU(10, 200*stdlibtime.Millisecond, true)

	lru.Set("a", "1")
	for range 3 {
		stdlibtime.Sleep(100 * stdlibtime.Millisecond)
		_, found := lru.Get("a")
		require.True(t, found, "every read has to reset the entry's age")
	}
	stdlibtime.Sleep(300 * stdlibtime.Millisecond)
	_, found := lru.Get("a")
	assert.False(t, found)
}

func TestLRUOverwriteDoesNotEvict(t *testing.T) {
	t.Parallel()
	lru := NewLRU(2, 0, false)

	lru.Set("a", "1")
	lru.Set("b", "2")
	lru.Set("a", "11")
	require.Equal(t, 2, lru.Len())
	value, found := lru.Get("a")
	require.True(t, found)
	assert.Equal(t, "11", value)
	assert.EqualValues(t, 0, lru.Stats().Evictions)
}

func TestLRUStats(t *testing.T) {
	t.Parallel()
	lru := NewLRU(10, 0, false)

	lru.Set("a", "1")
	_, _ = lru.Get("a")
	_, _ = lru.Get("a")
	_, _ = lru.Get("bogus")

	stats := lru.Stats()
	assert.EqualValues(t, 2, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestLRUClear(t *testing.T) {
	t.Parallel()
	lru := NewLRU(10, 0, false)

	lru.Set("a", "1")
	lru.Set("b", "2")
	lru.Clear()
	assert.Equal(t, 0, lru.Len())
	_, found := lru.Get("a")
	assert.False(t, found)
	require.NoError(t, lru.Close())
}
