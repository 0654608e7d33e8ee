package parallel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBarrierReleasesAllRanksTogether(t *testing.T) {
	const size = 8
	ctxs := NewLocalGroup(size, 2)

	var wg sync.WaitGroup
	arrived := make([]bool, size)
	var mu sync.Mutex

	wg.Add(size)
	for r := 0; r < size; r++ {
		go func(r int) {
			defer wg.Done()
			require.NoError(t, ctxs[r].Barrier(context.Background()))
			mu.Lock()
			arrived[r] = true
			mu.Unlock()
		}(r)
	}
	wg.Wait()

	for r := 0; r < size; r++ {
		assert.True(t, arrived[r])
	}
}

func TestLocalAllToAllDeliversExactMatrix(t *testing.T) {
	const size = 4
	ctxs := NewLocalGroup(size, 1)

	results := make([][][]byte, size)
	var wg sync.WaitGroup
	wg.Add(size)
	for r := 0; r < size; r++ {
		go func(r int) {
			defer wg.Done()
			send := make([][]byte, size)
			for d := 0; d < size; d++ {
				send[d] = []byte{byte(r), byte(d)}
			}
			recv, err := ctxs[r].AllToAll(context.Background(), send)
			require.NoError(t, err)
			results[r] = recv
		}(r)
	}
	wg.Wait()

	for dest := 0; dest < size; dest++ {
		for src := 0; src < size; src++ {
			assert.Equal(t, []byte{byte(src), byte(dest)}, results[dest][src])
		}
	}
}

func TestLocalAllReduceSumTotals(t *testing.T) {
	const size = 5
	ctxs := NewLocalGroup(size, 1)

	results := make([]int64, size)
	var wg sync.WaitGroup
	wg.Add(size)
	for r := 0; r < size; r++ {
		go func(r int) {
			defer wg.Done()
			total, err := ctxs[r].AllReduceSum(context.Background(), int64(r+1))
			require.NoError(t, err)
			results[r] = total
		}(r)
	}
	wg.Wait()

	want := int64(size * (size + 1) / 2)
	for r := 0; r < size; r++ {
		assert.Equal(t, want, results[r])
	}
}

func TestLocalSuccessiveCollectivesDontInterfere(t *testing.T) {
	const size = 3
	ctxs := NewLocalGroup(size, 1)

	for round := 0; round < 5; round++ {
		var wg sync.WaitGroup
		results := make([]int64, size)
		wg.Add(size)
		for r := 0; r < size; r++ {
			go func(r int) {
				defer wg.Done()
				require.NoError(t, ctxs[r].Barrier(context.Background()))
				total, err := ctxs[r].AllReduceSum(context.Background(), 1)
				require.NoError(t, err)
				results[r] = total
			}(r)
		}
		wg.Wait()
		for r := 0; r < size; r++ {
			assert.Equal(t, int64(size), results[r])
		}
	}
}
