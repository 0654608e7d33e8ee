package concurrent

import (
	"sync"

	"github.com/dreamware/hpu/internal/baremap"
	"github.com/dreamware/hpu/internal/reducer"
)

// SegmentsPerThread is the number of segments created per thread. Seven
// segments per thread keeps lock collisions improbable under many
// concurrent writers while keeping each segment's own bare map reasonably
// sized.
const SegmentsPerThread = 7

// Map is a thread-safe hash table made of many baremap.Map segments, each
// guarded by its own lock, plus one private staging cache per thread used
// by AsyncSet's lock-free fast path.
//
// The total committed key count is the sum of NKeys across segments;
// staging caches are transient and are never counted until Sync drains
// them.
type Map[K comparable, V any] struct {
	hash func(K) uint64

	segments   []*baremap.Map[K, V]
	segmentMus []sync.Mutex

	stagingMus []sync.Mutex // protects a staging cache against concurrent Sync drains
	staging    []*baremap.Map[K, V]

	threads int
}

// New creates a segmented map for up to maxThreads concurrent writer
// threads, using hash to compute a key's hash at every call site (the
// caller must supply the same hash for a given key on every call — the
// map never recomputes or caches it beyond a single operation).
func New[K comparable, V any](maxThreads int, hash func(K) uint64) *Map[K, V] {
	return NewN(maxThreads, SegmentsPerThread, hash)
}

// NewN is New with an explicit segments-per-thread override; a value below
// 1 falls back to the package default.
func NewN[K comparable, V any](maxThreads, segmentsPerThread int, hash func(K) uint64) *Map[K, V] {
	if maxThreads < 1 {
		maxThreads = 1
	}
	if segmentsPerThread < 1 {
		segmentsPerThread = SegmentsPerThread
	}
	segCount := maxThreads * segmentsPerThread

	m := &Map[K, V]{
		hash:       hash,
		threads:    maxThreads,
		segments:   make([]*baremap.Map[K, V], segCount),
		segmentMus: make([]sync.Mutex, segCount),
		staging:    make([]*baremap.Map[K, V], maxThreads),
		stagingMus: make([]sync.Mutex, maxThreads),
	}
	for i := range m.segments {
		m.segments[i] = baremap.New[K, V]()
	}
	for i := range m.staging {
		m.staging[i] = baremap.New[K, V]()
	}
	return m
}

// Threads returns the thread width the map was constructed for.
func (m *Map[K, V]) Threads() int { return m.threads }

// NSegments returns the number of segments (Threads() * SegmentsPerThread).
func (m *Map[K, V]) NSegments() int { return len(m.segments) }

func splitHash(hash uint64, segCount int) (seg int, inner uint64) {
	s := uint64(segCount)
	return int(hash % s), hash / s
}

// Set acquires the owning segment's lock and commits key/value, applying
// reduce if key is already present. Blocks on lock contention.
func (m *Map[K, V]) Set(key K, hash uint64, value V, reduce reducer.Reducer[V]) {
	seg, inner := splitHash(hash, len(m.segments))
	m.segmentMus[seg].Lock()
	m.segments[seg].Set(key, inner, value, reduce)
	m.segmentMus[seg].Unlock()
}

// AsyncSet attempts the owning segment's lock without blocking. On success
// it commits immediately, exactly like Set. On contention it appends to
// the calling thread's staging cache instead, keyed by the full hash (not
// hash div segment count), so a later Sync can re-derive the correct
// segment. AsyncSet never waits on a segment lock; the staging path takes
// only that thread's staging mutex, which is contended only by a
// concurrent Sync or by callers sharing a threadID.
func (m *Map[K, V]) AsyncSet(threadID int, key K, hash uint64, value V, reduce reducer.Reducer[V]) {
	seg, inner := splitHash(hash, len(m.segments))
	if m.segmentMus[seg].TryLock() {
		m.segments[seg].Set(key, inner, value, reduce)
		m.segmentMus[seg].Unlock()
		return
	}

	t := threadID % len(m.staging)
	m.stagingMus[t].Lock()
	m.staging[t].Set(key, hash, value, reduce)
	m.stagingMus[t].Unlock()
}

// Sync drains every thread's staging cache into its owning segments,
// applying reduce to merge against anything already committed there, then
// clears the staging caches. After Sync returns, every staged write is
// visible through Get/Has/ForEach.
func (m *Map[K, V]) Sync(reduce reducer.Reducer[V]) {
	var wg sync.WaitGroup
	wg.Add(len(m.staging))
	for t := range m.staging {
		t := t
		go func() {
			defer wg.Done()
			m.stagingMus[t].Lock()
			defer m.stagingMus[t].Unlock()

			m.staging[t].ForEach(func(key K, hash uint64, value V) {
				seg, inner := splitHash(hash, len(m.segments))
				m.segmentMus[seg].Lock()
				m.segments[seg].Set(key, inner, value, reduce)
				m.segmentMus[seg].Unlock()
			})
			m.staging[t].ClearAndShrink()
		}()
	}
	wg.Wait()
}

// Unset removes key if present. Blocks on the owning segment's lock.
func (m *Map[K, V]) Unset(key K, hash uint64) bool {
	seg, inner := splitHash(hash, len(m.segments))
	m.segmentMus[seg].Lock()
	defer m.segmentMus[seg].Unlock()
	return m.segments[seg].Unset(key, inner)
}

// Get returns the value stored for key, or def if absent. Blocks on the
// owning segment's lock.
func (m *Map[K, V]) Get(key K, hash uint64, def V) V {
	seg, inner := splitHash(hash, len(m.segments))
	m.segmentMus[seg].Lock()
	defer m.segmentMus[seg].Unlock()
	return m.segments[seg].Get(key, inner, def)
}

// Has reports whether key is present. Blocks on the owning segment's lock.
func (m *Map[K, V]) Has(key K, hash uint64) bool {
	seg, inner := splitHash(hash, len(m.segments))
	m.segmentMus[seg].Lock()
	defer m.segmentMus[seg].Unlock()
	return m.segments[seg].Has(key, inner)
}

// Hash exposes the injected hash function so callers (distmap, distrange)
// can compute a key's hash once and reuse it across Set/Get/Has calls.
func (m *Map[K, V]) Hash(key K) uint64 { return m.hash(key) }

// Clear empties every segment. Segment locks are acquired in ascending
// index order, a fixed global order that makes Clear safe to call even
// while other operations are blocked waiting on individual segments.
func (m *Map[K, V]) Clear() {
	for i := range m.segmentMus {
		m.segmentMus[i].Lock()
	}
	for _, seg := range m.segments {
		seg.Clear()
	}
	for i := len(m.segmentMus) - 1; i >= 0; i-- {
		m.segmentMus[i].Unlock()
	}
}

// ClearAndShrink empties every segment and resets each one's bucket array
// to the smallest prime in the cascade.
func (m *Map[K, V]) ClearAndShrink() {
	for i := range m.segmentMus {
		m.segmentMus[i].Lock()
	}
	for _, seg := range m.segments {
		seg.ClearAndShrink()
	}
	for i := len(m.segmentMus) - 1; i >= 0; i-- {
		m.segmentMus[i].Unlock()
	}
}

// Reserve distributes minKeys across segments (minKeys / NSegments each)
// and gives each thread staging cache a fraction of minKeys / 1000 — a
// heuristic: staging caches should stay small enough to live in cache but
// large enough to absorb write bursts between Sync calls.
func (m *Map[K, V]) Reserve(minKeys int) {
	if minKeys <= 0 {
		return
	}
	perSegment := minKeys / len(m.segments)
	for _, seg := range m.segments {
		seg.Reserve(perSegment)
	}
	perStaging := minKeys / 1000
	for _, s := range m.staging {
		s.Reserve(perStaging)
	}
}

// NKeys returns the sum of NKeys across all committed segments. Staging
// caches are not counted.
func (m *Map[K, V]) NKeys() int {
	n := 0
	for i, seg := range m.segments {
		m.segmentMus[i].Lock()
		n += seg.NKeys()
		m.segmentMus[i].Unlock()
	}
	return n
}

// NBuckets returns the sum of NBuckets across all segments.
func (m *Map[K, V]) NBuckets() int {
	n := 0
	for i, seg := range m.segments {
		m.segmentMus[i].Lock()
		n += seg.NBuckets()
		m.segmentMus[i].Unlock()
	}
	return n
}

// ForEach visits every committed (key, value) pair across all segments.
// Staging caches are not visited — call Sync first if they must be
// included. Locks are acquired and released one segment at a time, so a
// concurrent writer may be observed partway through its own Sync.
func (m *Map[K, V]) ForEach(visit func(key K, value V)) {
	for i, seg := range m.segments {
		m.segmentMus[i].Lock()
		seg.ForEach(func(key K, _ uint64, value V) {
			visit(key, value)
		})
		m.segmentMus[i].Unlock()
	}
}

// ForEachSegment visits every committed (key, value) pair in segments for
// which keep(segmentIndex) returns true, skipping the rest entirely
// (their locks are never even acquired). This is what the segmented-map
// MapReduce driver uses to partition work by segment index modulo the
// process count (segments, not individual buckets, are the unit).
func (m *Map[K, V]) ForEachSegment(keep func(segmentIndex int) bool, visit func(key K, value V)) {
	for i, seg := range m.segments {
		if !keep(i) {
			continue
		}
		m.segmentMus[i].Lock()
		seg.ForEach(func(key K, _ uint64, value V) {
			visit(key, value)
		})
		m.segmentMus[i].Unlock()
	}
}

// SegmentForBucket returns the process rank, bucket mod p, that owns the
// given index under index-modulo-p partitioning (0 when p <= 0).
// distrange's segmented-map-driven MapReduce calls it with a segment
// index to decide which process visits that segment.
func (m *Map[K, V]) SegmentForBucket(bucket, p int) int {
	if p <= 0 {
		return 0
	}
	return bucket % p
}
