package distrange

import (
	"context"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/hpu/internal/codec"
	"github.com/dreamware/hpu/internal/concurrent"
	"github.com/dreamware/hpu/internal/parallel"
	"github.com/dreamware/hpu/internal/reducer"
)

func hashInt(k int) uint64 {
	return fnvHash(strconv.Itoa(k))
}

func fnvHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

func runGroup[T any](size int, fn func(r int) T) []T {
	results := make([]T, size)
	var wg sync.WaitGroup
	wg.Add(size)
	for r := 0; r < size; r++ {
		go func(r int) {
			defer wg.Done()
			results[r] = fn(r)
		}(r)
	}
	wg.Wait()
	return results
}

// TestIdentityMapReduceOverSmallRange runs a MapReduce over [0, 1000)
// emitting each index as its own key with a Keep reducer: every one of
// the 1000 keys should appear exactly once across the whole distributed
// map.
func TestIdentityMapReduceOverSmallRange(t *testing.T) {
	const size = 4
	ctxs := parallel.NewLocalGroup(size, 2)

	type result struct {
		dm  interface {
			LocalNKeys() int
			GetNKeys(context.Context) (int, error)
		}
		err error
	}

	results := runGroup(size, func(r int) result {
		dm, err := MapReduce[int, bool](
			context.Background(),
			ctxs[r],
			DistRange{Lo: 0, Hi: 1000},
			func(i int, emit func(key int, value bool)) { emit(i, false) },
			reducer.Keep[bool],
			hashInt,
			Codecs[int, bool]{Key: codec.Gob[int]{}, Value: codec.Gob[bool]{}},
			false,
		)
		return result{dm: dm, err: err}
	})

	for _, r := range results {
		require.NoError(t, r.err)
	}

	// GetNKeys is collective: every rank must call it.
	totals := runGroup(size, func(r int) int {
		n, err := results[r].dm.GetNKeys(context.Background())
		require.NoError(t, err)
		return n
	})
	for _, n := range totals {
		assert.Equal(t, 1000, n)
	}
}

// TestWordCountAcrossFourProcesses maps each "line" index to its words,
// folded with Sum.
func TestWordCountAcrossFourProcesses(t *testing.T) {
	const size = 4
	ctxs := parallel.NewLocalGroup(size, 2)

	lines := []string{
		"the quick brown fox",
		"the lazy dog",
		"the fox ran",
	}

	dms := runGroup(size, func(r int) interface {
		ForEach(func(key string, value int64))
		GetNKeys(context.Context) (int, error)
	} {
		dm, err := MapReduce[string, int64](
			context.Background(),
			ctxs[r],
			DistRange{Lo: 0, Hi: len(lines)},
			func(i int, emit func(key string, value int64)) {
				for _, w := range strings.Fields(lines[i]) {
					emit(w, 1)
				}
			},
			reducer.Sum[int64],
			fnvHash,
			Codecs[string, int64]{Key: codec.Gob[string]{}, Value: codec.Gob[int64]{}},
			false,
		)
		require.NoError(t, err)
		return dm
	})

	counts := make(map[string]int64)
	var mu sync.Mutex
	for _, dm := range dms {
		dm.ForEach(func(key string, value int64) {
			mu.Lock()
			counts[key] += value
			mu.Unlock()
		})
	}

	assert.Equal(t, int64(3), counts["the"])
	assert.Equal(t, int64(2), counts["fox"])
	assert.Equal(t, int64(1), counts["quick"])
	assert.Equal(t, int64(1), counts["lazy"])
	assert.Equal(t, int64(1), counts["ran"])
}

// TestPartitionIsDeterministicAcrossRuns checks that with the same P, the
// same key always lands on the same rank in two independent runs.
func TestPartitionIsDeterministicAcrossRuns(t *testing.T) {
	const size = 4
	run := func() map[int]int {
		ctxs := parallel.NewLocalGroup(size, 1)
		dms := runGroup(size, func(r int) *struct {
			owned map[int]bool
		} {
			dm, err := MapReduce[int, bool](
				context.Background(),
				ctxs[r],
				DistRange{Lo: 0, Hi: 500},
				func(i int, emit func(key int, value bool)) { emit(i, false) },
				reducer.Keep[bool],
				hashInt,
				Codecs[int, bool]{Key: codec.Gob[int]{}, Value: codec.Gob[bool]{}},
				false,
			)
			require.NoError(t, err)
			owned := make(map[int]bool)
			dm.ForEach(func(key int, _ bool) { owned[key] = true })
			return &struct{ owned map[int]bool }{owned: owned}
		})

		ownerOf := make(map[int]int)
		for r, d := range dms {
			for k := range d.owned {
				ownerOf[k] = r
			}
		}
		return ownerOf
	}

	first := run()
	second := run()
	require.Equal(t, len(first), len(second))
	for k, r := range first {
		assert.Equal(t, r, second[k], "key %d changed owner between runs", k)
	}
}

// TestMapReduceConcurrentMapPartitionsBySegment exercises the
// segmented-map-driven MapReduce variant, verifying every source entry
// is visited exactly once across all processes.
func TestMapReduceConcurrentMapPartitionsBySegment(t *testing.T) {
	const size = 3
	src := concurrent.New[int, int64](1, hashInt)
	for i := 0; i < 300; i++ {
		src.Set(i, hashInt(i), 1, reducer.Sum[int64])
	}

	ctxs := parallel.NewLocalGroup(size, 1)
	dms := runGroup(size, func(r int) *struct {
		visited map[int]int64
	} {
		dm, err := MapReduceConcurrentMap[int, int64, int, int64](
			context.Background(),
			ctxs[r],
			src,
			func(key int, value int64, emit func(key int, value int64)) { emit(key, value) },
			reducer.Sum[int64],
			hashInt,
			Codecs[int, int64]{Key: codec.Gob[int]{}, Value: codec.Gob[int64]{}},
			false,
		)
		require.NoError(t, err)
		visited := make(map[int]int64)
		dm.ForEach(func(key int, value int64) { visited[key] = value })
		return &struct{ visited map[int]int64 }{visited: visited}
	})

	total := make(map[int]int64)
	for _, d := range dms {
		for k, v := range d.visited {
			total[k] += v
		}
	}
	assert.Len(t, total, 300)
	for i := 0; i < 300; i++ {
		assert.Equal(t, int64(1), total[i])
	}
}
