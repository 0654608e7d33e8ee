package parallel

import (
	"context"
	"sync"
)

// Local simulates Size() ranks inside a single OS process over goroutines
// and a shared rendezvous hub, rather than real inter-process messages.
// It is the Context implementation used by tests and by single-node jobs.
//
// Every rank's Context must run on its own goroutine: the collectives
// block until all Size() ranks have called the same method, exactly as a
// real MPI-style collective would.
type Local struct {
	rank    int
	threads int
	hub     *localHub
}

// NewLocalGroup builds size Context values that together simulate a
// size-process job, each with the given thread width.
func NewLocalGroup(size, threads int) []Context {
	if size < 1 {
		size = 1
	}
	if threads < 1 {
		threads = 1
	}
	h := &localHub{size: size}
	h.barrierCond = sync.NewCond(&h.mu)
	h.a2aCond = sync.NewCond(&h.mu)
	h.reduceCond = sync.NewCond(&h.mu)

	ctxs := make([]Context, size)
	for r := 0; r < size; r++ {
		ctxs[r] = &Local{rank: r, threads: threads, hub: h}
	}
	return ctxs
}

// localHub is the shared rendezvous state every rank of one simulated
// group holds a pointer to. Each collective has its own generation
// counter and condition variable so unrelated Barrier/AllToAll/
// AllReduceSum calls never block on each other.
type localHub struct {
	mu   sync.Mutex
	size int

	barrierCond  *sync.Cond
	barrierCount int
	barrierGen   int

	a2aCond   *sync.Cond
	a2aCount  int
	a2aGen    int
	a2aMatrix [][][]byte // a2aMatrix[sender][receiver]

	reduceCond   *sync.Cond
	reduceCount  int
	reduceGen    int
	reduceSum    int64
	reduceResult int64
}

func (l *Local) Rank() int    { return l.rank }
func (l *Local) Size() int    { return l.hub.size }
func (l *Local) Threads() int { return l.threads }

// Barrier blocks the calling goroutine until every rank has arrived.
func (l *Local) Barrier(_ context.Context) error {
	h := l.hub
	h.mu.Lock()
	gen := h.barrierGen
	h.barrierCount++
	if h.barrierCount == h.size {
		h.barrierCount = 0
		h.barrierGen++
		h.barrierCond.Broadcast()
	} else {
		for h.barrierGen == gen {
			h.barrierCond.Wait()
		}
	}
	h.mu.Unlock()
	return nil
}

// AllToAll exchanges send[r] (destined for rank r) with every other rank
// and returns what every other rank sent to l.
func (l *Local) AllToAll(_ context.Context, send [][]byte) ([][]byte, error) {
	h := l.hub
	if len(send) != h.size {
		return nil, ErrBarrierAborted
	}

	h.mu.Lock()
	if h.a2aMatrix == nil {
		h.a2aMatrix = make([][][]byte, h.size)
	}
	// Keep this round's matrix: the last arriver hands the next round a
	// fresh one, so a fast rank's next send cannot overwrite a row a
	// slower rank has yet to read.
	matrix := h.a2aMatrix
	matrix[l.rank] = send
	gen := h.a2aGen
	h.a2aCount++
	if h.a2aCount == h.size {
		h.a2aCount = 0
		h.a2aGen++
		h.a2aMatrix = nil
		h.a2aCond.Broadcast()
	} else {
		for h.a2aGen == gen {
			h.a2aCond.Wait()
		}
	}

	recv := make([][]byte, h.size)
	for src := 0; src < h.size; src++ {
		recv[src] = matrix[src][l.rank]
	}
	h.mu.Unlock()
	return recv, nil
}

// AllReduceSum returns the sum of x across every rank's call.
func (l *Local) AllReduceSum(_ context.Context, x int64) (int64, error) {
	h := l.hub
	h.mu.Lock()
	h.reduceSum += x
	gen := h.reduceGen
	h.reduceCount++
	if h.reduceCount == h.size {
		h.reduceResult = h.reduceSum
		h.reduceSum = 0
		h.reduceCount = 0
		h.reduceGen++
		h.reduceCond.Broadcast()
	} else {
		for h.reduceGen == gen {
			h.reduceCond.Wait()
		}
	}
	result := h.reduceResult
	h.mu.Unlock()
	return result, nil
}
