package parallel

import (
	"context"
	"errors"
)

// ErrPeerUnreachable is returned by a Context implementation when a
// collective cannot complete because a peer process is gone. This is
// always fatal to the job — callers are expected to treat it as
// job-ending, not retry it.
var ErrPeerUnreachable = errors.New("parallel: peer unreachable")

// ErrBarrierAborted is returned when a Barrier or other rendezvous is torn
// down before every rank arrived, e.g. because the context passed to it
// was canceled.
var ErrBarrierAborted = errors.New("parallel: barrier aborted")

// Context reports a process's place in the job and exposes the collective
// primitives the engine assumes exist: all-to-all exchange, sum
// all-reduce, and a barrier. Every method is collective: every rank must
// call it the same number of times in the same order, or the job
// deadlocks or aborts.
type Context interface {
	// Rank returns this process's rank in [0, Size()).
	Rank() int

	// Size returns the number of processes, P.
	Size() int

	// Threads returns the shared-memory parallelism width this process
	// should use — the T in "T * SegmentsPerThread" segment counts.
	Threads() int

	// Barrier blocks until every rank has called Barrier.
	Barrier(ctx context.Context) error

	// AllToAll exchanges per-destination byte buffers: send must have
	// exactly Size() entries, send[r] is delivered to rank r, and the
	// returned slice's entry i is what rank i sent to this rank.
	AllToAll(ctx context.Context, send [][]byte) ([][]byte, error)

	// AllReduceSum returns the sum of x across every rank's call.
	AllReduceSum(ctx context.Context, x int64) (int64, error)
}
