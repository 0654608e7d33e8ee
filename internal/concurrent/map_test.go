package concurrent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/hpu/internal/reducer"
)

func hashUint(k uint64) uint64 { return k }

func TestSetAndGetAcrossSegments(t *testing.T) {
	m := New[uint64, int](4, hashUint)
	for i := uint64(0); i < 1000; i++ {
		m.Set(i, m.Hash(i), int(i), reducer.Overwrite[int])
	}
	assert.Equal(t, 1000, m.NKeys())
	for i := uint64(0); i < 1000; i++ {
		assert.Equal(t, int(i), m.Get(i, m.Hash(i), -1))
	}
}

func TestAsyncSetNeverBlocksAndSyncCommits(t *testing.T) {
	m := New[uint64, int](2, hashUint)

	var wg sync.WaitGroup
	const perThread = 5000
	for th := 0; th < 2; th++ {
		wg.Add(1)
		go func(thread int) {
			defer wg.Done()
			for i := 0; i < perThread; i++ {
				key := uint64(thread*perThread + i)
				m.AsyncSet(thread, key, m.Hash(key), 1, reducer.Sum[int])
			}
		}(th)
	}
	wg.Wait()

	m.Sync(reducer.Sum[int])
	assert.Equal(t, 2*perThread, m.NKeys())
}

func TestHotKeyContentionSumsToExactTotal(t *testing.T) {
	const threads = 16
	const perThread = 1_000_00 // 100k per thread keeps the test fast; still exercises heavy contention on one key
	m := New[string, int64](threads, func(string) uint64 { return 42 })

	var wg sync.WaitGroup
	wg.Add(threads)
	for th := 0; th < threads; th++ {
		go func(thread int) {
			defer wg.Done()
			for i := 0; i < perThread; i++ {
				m.AsyncSet(thread, "hot", 42, 1, reducer.Sum[int64])
			}
		}(th)
	}
	wg.Wait()

	m.Sync(reducer.Sum[int64])
	require.True(t, m.Has("hot", 42))
	assert.Equal(t, int64(threads*perThread), m.Get("hot", 42, -1))
	assert.Equal(t, 1, m.NKeys())
}

func TestRehashUnderSerialLoad(t *testing.T) {
	m := New[int, int](1, func(k int) uint64 { return uint64(k) * 2654435761 })
	const n = 100_000
	for i := 0; i < n; i++ {
		m.Set(i, m.Hash(i), i, reducer.Overwrite[int])
	}
	assert.Equal(t, n, m.NKeys())
	for i := 0; i < n; i++ {
		assert.True(t, m.Has(i, m.Hash(i)))
	}
}

func TestClearAndShrink(t *testing.T) {
	m := New[int, int](3, func(k int) uint64 { return uint64(k) })
	for i := 0; i < 10_000; i++ {
		m.Set(i, m.Hash(i), i, reducer.Overwrite[int])
	}
	require.Greater(t, m.NKeys(), 0)
	m.ClearAndShrink()
	assert.Equal(t, 0, m.NKeys())

	smallest := m.NSegments() * 11
	assert.Equal(t, smallest, m.NBuckets())
}

func TestForEachOnlyVisitsCommittedKeys(t *testing.T) {
	m := New[int, int](2, func(k int) uint64 { return uint64(k) })
	m.Set(1, m.Hash(1), 100, reducer.Overwrite[int])
	m.AsyncSet(0, 2, m.Hash(2), 200, reducer.Overwrite[int])

	seen := map[int]int{}
	m.ForEach(func(key, value int) { seen[key] = value })

	assert.Equal(t, 100, seen[1])
	// key 2 may or may not have landed in staging depending on whether the
	// segment lock happened to be free; either way NKeys + a post-Sync
	// check must account for it, so only assert the invariant that holds
	// regardless of scheduling: Sync makes it visible.
	m.Sync(reducer.Overwrite[int])
	seen = map[int]int{}
	m.ForEach(func(key, value int) { seen[key] = value })
	assert.Equal(t, 200, seen[2])
}
