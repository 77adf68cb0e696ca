package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtavana/kvtier/pkg/chunk"
	"github.com/mtavana/kvtier/pkg/utils"
)

// newTestMemoryBackend builds a memory backend closed at test cleanup.
func newTestMemoryBackend(t *testing.T, limit CapacityLimit) *MemoryBackend {
	t.Helper()
	backend := NewMemoryBackend(Config{Capacity: limit}, nil /*evictor*/)
	t.Cleanup(func() { require.NoError(t, backend.Close()) })
	return backend
}

func TestMemoryBackend_PutGetContains(t *testing.T) {
	backend := newTestMemoryBackend(t, CapacityLimit{})
	payload := chunk.Chunk("kv chunk payload")
	require.NoError(t, backend.Put(testKey(1), payload, true /*blocking*/))

	assert.True(t, backend.Contains(testKey(1)))
	assert.False(t, backend.Contains(testKey(2)))

	got, found, err := backend.Get(testKey(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Equal(payload), "Get must return content equal to the put payload")
}

func TestMemoryBackend_GetMissIsNotAnError(t *testing.T) {
	backend := newTestMemoryBackend(t, CapacityLimit{})
	got, found, err := backend.Get(testKey(1))
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestMemoryBackend_GetReturnsIndependentCopy(t *testing.T) {
	backend := newTestMemoryBackend(t, CapacityLimit{})
	require.NoError(t, backend.Put(testKey(1), chunk.Chunk("original"), true))

	got, found, err := backend.Get(testKey(1))
	require.NoError(t, err)
	require.True(t, found)
	got[0] = 'X' // Mutating the returned copy must not touch the resident chunk.

	again, found, err := backend.Get(testKey(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, again.Equal(chunk.Chunk("original")))
}

func TestMemoryBackend_PutIsolatesCallerBuffer(t *testing.T) {
	backend := newTestMemoryBackend(t, CapacityLimit{})
	payload := chunk.Chunk("original")
	require.NoError(t, backend.Put(testKey(1), payload, true))
	payload[0] = 'X' // The resident copy was materialized before insertion.

	got, found, err := backend.Get(testKey(1))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Equal(chunk.Chunk("original")))
}

func TestMemoryBackend_LRUEvictsOldest(t *testing.T) {
	const capacity = 3
	backend := newTestMemoryBackend(t, CapacityLimit{MaxEntries: capacity})
	for i := 1; i <= capacity+1; i++ {
		require.NoError(t, backend.Put(testKey(i), chunk.Chunk("payload"), true))
	}

	// Inserting capacity+1 distinct keys evicts exactly the oldest.
	assert.False(t, backend.Contains(testKey(1)))
	for i := 2; i <= capacity+1; i++ {
		assert.True(t, backend.Contains(testKey(i)), "Key %d should have survived", i)
	}
}

func TestMemoryBackend_GetRefreshesRecency(t *testing.T) {
	backend := newTestMemoryBackend(t, CapacityLimit{MaxEntries: 2})
	keyA, keyB, keyC := testKey(1), testKey(2), testKey(3)
	require.NoError(t, backend.Put(keyA, chunk.Chunk("a"), true))
	require.NoError(t, backend.Put(keyB, chunk.Chunk("b"), true))

	// Refreshing A makes B the eviction candidate.
	_, found, err := backend.Get(keyA)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, backend.Put(keyC, chunk.Chunk("c"), true))

	assert.True(t, backend.Contains(keyA))
	assert.False(t, backend.Contains(keyB))
	assert.True(t, backend.Contains(keyC))
}

func TestMemoryBackend_RejectedPutLeavesStateUntouched(t *testing.T) {
	backend := newTestMemoryBackend(t, CapacityLimit{MaxBytes: 10})
	require.NoError(t, backend.Put(testKey(1), chunk.Chunk("12345"), true))
	require.NoError(t, backend.Put(testKey(2), chunk.Chunk("12345"), true))

	// An oversized payload is dropped silently, with no partial eviction.
	require.NoError(t, backend.Put(testKey(3), chunk.Chunk("this payload exceeds the budget"), true))
	assert.False(t, backend.Contains(testKey(3)))
	assert.Equal(t, []Key{testKey(1), testKey(2)}, backend.core.catalog.Keys(),
		"Catalog must be byte-for-byte unchanged after a rejected put")
	assert.Equal(t, int64(10), backend.core.catalog.TotalBytes())
}

func TestMemoryBackend_QueuedPutsApplyInOrder(t *testing.T) {
	backend := NewMemoryBackend(Config{}, nil)
	for i := 1; i <= 3; i++ {
		require.NoError(t, backend.Put(testKey(i), chunk.Chunk(fmt.Sprintf("payload-%d", i)), false /*blocking*/))
	}
	// Close drains the queue before stopping the worker.
	require.NoError(t, backend.Close())

	assert.Equal(t, []Key{testKey(1), testKey(2), testKey(3)}, backend.core.catalog.Keys(),
		"Queued puts must be applied in strict submission order")
}

func TestMemoryBackend_QueuedPutsSurviveConcurrentGets(t *testing.T) {
	backend := NewMemoryBackend(Config{}, nil)
	require.NoError(t, backend.Put(testKey(100), chunk.Chunk("resident"), true))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { // Concurrent gets on another key must not disturb queued ordering.
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, _, _ = backend.Get(testKey(100))
		}
	}()
	for i := 1; i <= 3; i++ {
		require.NoError(t, backend.Put(testKey(i), chunk.Chunk("queued"), false))
	}
	wg.Wait()
	require.NoError(t, backend.Close())

	for i := 1; i <= 3; i++ {
		assert.True(t, backend.Contains(testKey(i)))
	}
	// Relative order of the queued keys is preserved.
	var queuedOrder []Key
	for _, key := range backend.core.catalog.Keys() {
		if key != testKey(100) {
			queuedOrder = append(queuedOrder, key)
		}
	}
	assert.Equal(t, []Key{testKey(1), testKey(2), testKey(3)}, queuedOrder)
}

func TestMemoryBackend_CloseIsIdempotentAndDrains(t *testing.T) {
	backend := NewMemoryBackend(Config{}, nil)
	for i := 1; i <= 10; i++ {
		require.NoError(t, backend.Put(testKey(i), chunk.Chunk("payload"), false))
	}

	require.NoError(t, backend.Close())
	require.NoError(t, backend.Close(), "Second close must be a no-op")

	for i := 1; i <= 10; i++ {
		assert.True(t, backend.Contains(testKey(i)), "Queued item %d was dropped by close", i)
	}
}

func TestMemoryBackend_OverwriteAtEntryCapacity(t *testing.T) {
	backend := newTestMemoryBackend(t, CapacityLimit{MaxEntries: 2})
	require.NoError(t, backend.Put(testKey(1), chunk.Chunk("first"), true))
	require.NoError(t, backend.Put(testKey(2), chunk.Chunk("second"), true))

	// Re-putting a resident key on a full cache replaces that entry only; the
	// neighbor must survive.
	require.NoError(t, backend.Put(testKey(2), chunk.Chunk("updated"), true))
	assert.True(t, backend.Contains(testKey(1)), "Overwriting key 2 must not evict key 1")
	got, found, err := backend.Get(testKey(2))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Equal(chunk.Chunk("updated")))
	assert.Equal(t, []Key{testKey(1), testKey(2)}, backend.core.catalog.Keys())
}

func TestMemoryBackend_OverwriteAtByteCapacity(t *testing.T) {
	backend := newTestMemoryBackend(t, CapacityLimit{MaxBytes: 10})
	require.NoError(t, backend.Put(testKey(1), chunk.Chunk("12345"), true))
	require.NoError(t, backend.Put(testKey(2), chunk.Chunk("abcde"), true))

	t.Run("same size replacement evicts nothing", func(t *testing.T) {
		require.NoError(t, backend.Put(testKey(2), chunk.Chunk("ABCDE"), true))
		assert.True(t, backend.Contains(testKey(1)))
		assert.Equal(t, int64(10), backend.core.catalog.TotalBytes())
	})
	t.Run("grown replacement evicts only what must go", func(t *testing.T) {
		require.NoError(t, backend.Put(testKey(2), chunk.Chunk("grown-up!"), true)) // 9 bytes.
		assert.False(t, backend.Contains(testKey(1)))
		assert.True(t, backend.Contains(testKey(2)))
		assert.Equal(t, int64(9), backend.core.catalog.TotalBytes())
	})
}

func TestMemoryBackend_Remove(t *testing.T) {
	backend := newTestMemoryBackend(t, CapacityLimit{})
	require.NoError(t, backend.Put(testKey(1), chunk.Chunk("payload"), true))
	require.NoError(t, backend.Remove(testKey(1)))
	assert.False(t, backend.Contains(testKey(1)))
}

func TestMemoryBackend_RemoveMissingKeyRaisesInvariant(t *testing.T) {
	backend := newTestMemoryBackend(t, CapacityLimit{})
	before := utils.GetInvariantCount("memory_backend", "remove_missing_key")
	assert.Error(t, backend.Remove(testKey(1)))
	assert.Equal(t, before+1, utils.GetInvariantCount("memory_backend", "remove_missing_key"))
}

func TestMemoryBackend_RecordsLatency(t *testing.T) {
	backend := newTestMemoryBackend(t, CapacityLimit{})
	require.NoError(t, backend.Put(testKey(1), chunk.Chunk("payload"), true))
	_, _, err := backend.Get(testKey(1))
	require.NoError(t, err)

	assert.Equal(t, int64(1), backend.Latency().Count("put"))
	assert.Equal(t, int64(1), backend.Latency().Count("get"))
}
