package distrange

import (
	"context"
	"fmt"
	"sync"

	"github.com/dreamware/hpu/internal/codec"
	"github.com/dreamware/hpu/internal/concurrent"
	"github.com/dreamware/hpu/internal/distmap"
	"github.com/dreamware/hpu/internal/parallel"
	"github.com/dreamware/hpu/internal/reducer"
	"github.com/dreamware/hpu/internal/telemetry"
)

// DistRange is a half-open integer interval [Lo, Hi) with no stored
// contents; it is the lazy producer a MapReduce job iterates.
type DistRange struct {
	Lo, Hi int
}

// Mapper is invoked once per index this process owns. emit routes
// (key, value) into the destination DistMap, locally or via outbox,
// depending on which process owns key.
type Mapper[K comparable, V any] func(i int, emit func(key K, value V))

// Codecs bundles the key/value codec pair a MapReduce job needs to
// construct its destination DistMap, since Go generic functions cannot
// infer type parameters from a struct literal's field types alone.
type Codecs[K comparable, V any] struct {
	Key   codec.Codec[K]
	Value codec.Codec[V]
}

// MapReduce partitions [r.Lo, r.Hi) across pctx's processes by i mod
// pctx.Size(), and within a process across pctx.Threads() threads by
// chunk-1 round-robin assignment, invoking mapper(i, emit) for every
// index this process owns. Rank 0's thread 0 reports doubling-threshold
// progress (10%, 20%, 40%, 80%) when verbose is set. The resulting
// DistMap has already been synced before MapReduce returns.
func MapReduce[K comparable, V any](
	ctx context.Context,
	pctx parallel.Context,
	r DistRange,
	mapper Mapper[K, V],
	reduce reducer.Reducer[V],
	hash func(K) uint64,
	codecs Codecs[K, V],
	verbose bool,
) (*distmap.DistMap[K, V], error) {
	dm := distmap.New[K, V](pctx, hash, reduce, codecs.Key, codecs.Value)

	threads := pctx.Threads()
	if threads < 1 {
		threads = 1
	}
	rank, size := pctx.Rank(), pctx.Size()

	owned := make([]int, 0, (r.Hi-r.Lo)/size+1)
	for i := r.Lo; i < r.Hi; i++ {
		if mod(i, size) == rank {
			owned = append(owned, i)
		}
	}

	perThread := make([][]int, threads)
	for idx, i := range owned {
		t := idx % threads
		perThread[t] = append(perThread[t], i)
	}

	var ticker *telemetry.ProgressTicker
	if verbose && rank == 0 {
		ticker = telemetry.NewProgressTicker(int64(len(perThread[0])), true)
	}

	var wg sync.WaitGroup
	wg.Add(threads)
	for t := 0; t < threads; t++ {
		t := t
		go func() {
			defer wg.Done()
			emit := func(key K, value V) { dm.Set(t, key, value) }
			for n, i := range perThread[t] {
				mapper(i, emit)
				if t == 0 && ticker != nil {
					ticker.Tick(int64(n + 1))
				}
			}
		}()
	}
	wg.Wait()

	if err := dm.Sync(ctx, verbose); err != nil {
		return nil, fmt.Errorf("distrange: mapreduce: %w", err)
	}
	return dm, nil
}

// SourceMapper is invoked once per (key, value) pair this process owns in
// the source map. emit routes into the destination DistMap exactly as
// Mapper does for MapReduce.
type SourceMapper[SK comparable, SV, K comparable, V any] func(key SK, value SV, emit func(key K, value V))

// MapReduceConcurrentMap is the segmented-map-driven MapReduce variant:
// it iterates an existing internal/concurrent.Map's entries instead of a
// numeric range, partitioned by segment index modulo pctx.Size() rather
// than by key hash, since a committed entry's bucket only has meaning
// relative to its own segment's bare map. Each process visits only the
// segments it owns and feeds every entry in them to mapper.
func MapReduceConcurrentMap[SK comparable, SV any, K comparable, V any](
	ctx context.Context,
	pctx parallel.Context,
	src *concurrent.Map[SK, SV],
	mapper SourceMapper[SK, SV, K, V],
	reduce reducer.Reducer[V],
	hash func(K) uint64,
	codecs Codecs[K, V],
	verbose bool,
) (*distmap.DistMap[K, V], error) {
	dm := distmap.New[K, V](pctx, hash, reduce, codecs.Key, codecs.Value)

	rank, size := pctx.Rank(), pctx.Size()
	keep := func(seg int) bool { return src.SegmentForBucket(seg, size) == rank }

	const thread = 0
	emit := func(key K, value V) { dm.Set(thread, key, value) }
	src.ForEachSegment(keep, func(key SK, value SV) {
		mapper(key, value, emit)
	})

	if err := dm.Sync(ctx, verbose); err != nil {
		return nil, fmt.Errorf("distrange: mapreduce over concurrent map: %w", err)
	}
	return dm, nil
}

func mod(i, p int) int {
	m := i % p
	if m < 0 {
		m += p
	}
	return m
}
