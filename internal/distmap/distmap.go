package distmap

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dreamware/hpu/internal/codec"
	"github.com/dreamware/hpu/internal/concurrent"
	"github.com/dreamware/hpu/internal/parallel"
	"github.com/dreamware/hpu/internal/reducer"
	"github.com/dreamware/hpu/internal/telemetry"
)

// Phase is a DistMap's position in the Fresh -> Dirty -> Clean state
// machine: Fresh on construction or after Clear, Dirty after any Set or
// Unset, Clean after a Sync completes without error. Get, Has, and
// LocalNKeys are well defined locally in every phase; they are only
// guaranteed to reflect every rank's writes once Phase() reports Clean.
type Phase int32

const (
	Fresh Phase = iota
	Dirty
	Clean
)

func (p Phase) String() string {
	switch p {
	case Fresh:
		return "Fresh"
	case Dirty:
		return "Dirty"
	case Clean:
		return "Clean"
	default:
		return "Unknown"
	}
}

type entry[K any, V any] struct {
	key   K
	value V
}

// DistMap is a hash map partitioned across a parallel.Context's processes,
// with owner(k) = hash(k) mod P.
type DistMap[K comparable, V any] struct {
	ctx    parallel.Context
	hash   func(K) uint64
	local  *concurrent.Map[K, V]
	reduce reducer.Reducer[V]

	keyCodec codec.Codec[K]
	valCodec codec.Codec[V]

	outboxMus []sync.Mutex
	outboxes  [][][]entry[K, V] // [threadID][destRank][]entry

	phase int32
}

// New constructs a DistMap rooted at ctx. hash determines both process
// ownership (hash(k) mod ctx.Size()) and local segment routing within the
// owning process; reduce merges values sharing a key, locally and across
// Sync; keyCodec/valCodec serialize entries destined for a remote owner.
func New[K comparable, V any](
	ctx parallel.Context,
	hash func(K) uint64,
	reduce reducer.Reducer[V],
	keyCodec codec.Codec[K],
	valCodec codec.Codec[V],
) *DistMap[K, V] {
	threads := ctx.Threads()
	if threads < 1 {
		threads = 1
	}
	d := &DistMap[K, V]{
		ctx:       ctx,
		hash:      hash,
		local:     concurrent.New[K, V](threads, hash),
		reduce:    reduce,
		keyCodec:  keyCodec,
		valCodec:  valCodec,
		outboxMus: make([]sync.Mutex, threads),
		outboxes:  make([][][]entry[K, V], threads),
	}
	for t := range d.outboxes {
		d.outboxes[t] = make([][]entry[K, V], ctx.Size())
	}
	return d
}

func (d *DistMap[K, V]) owner(h uint64) int { return int(h % uint64(d.ctx.Size())) }

func (d *DistMap[K, V]) localHash(h uint64) uint64 { return h / uint64(d.ctx.Size()) }

// Set routes key/value either into this rank's local segmented map (if
// this rank owns the key) or into threadID's outbox for the owning rank,
// to be flushed on the next Sync. Never blocks on a remote rank.
func (d *DistMap[K, V]) Set(threadID int, key K, value V) {
	h := d.hash(key)
	owner := d.owner(h)
	if owner == d.ctx.Rank() {
		d.local.AsyncSet(threadID, key, d.localHash(h), value, d.reduce)
	} else {
		t := threadID % len(d.outboxes)
		d.outboxMus[t].Lock()
		d.outboxes[t][owner] = append(d.outboxes[t][owner], entry[K, V]{key: key, value: value})
		d.outboxMus[t].Unlock()
	}
	atomic.StoreInt32(&d.phase, int32(Dirty))
}

// Get returns the value for key as seen in this rank's local map. This
// is undefined with respect to other ranks' pending writes unless
// Phase() reports Clean.
func (d *DistMap[K, V]) Get(key K, def V) V {
	h := d.hash(key)
	return d.local.Get(key, d.localHash(h), def)
}

// Has reports whether key is present in this rank's local map.
func (d *DistMap[K, V]) Has(key K) bool {
	h := d.hash(key)
	return d.local.Has(key, d.localHash(h))
}

// Unset removes key from this rank's local map, if present there.
func (d *DistMap[K, V]) Unset(key K) bool {
	h := d.hash(key)
	ok := d.local.Unset(key, d.localHash(h))
	atomic.StoreInt32(&d.phase, int32(Dirty))
	return ok
}

// Clear empties this rank's local map and outboxes and resets Phase to
// Fresh.
func (d *DistMap[K, V]) Clear() {
	d.local.Clear()
	d.clearOutboxes()
	atomic.StoreInt32(&d.phase, int32(Fresh))
}

// ClearAndShrink is Clear plus resetting every underlying bucket array to
// the smallest prime in the cascade.
func (d *DistMap[K, V]) ClearAndShrink() {
	d.local.ClearAndShrink()
	d.clearOutboxes()
	atomic.StoreInt32(&d.phase, int32(Fresh))
}

func (d *DistMap[K, V]) clearOutboxes() {
	for t := range d.outboxes {
		d.outboxMus[t].Lock()
		for r := range d.outboxes[t] {
			d.outboxes[t][r] = nil
		}
		d.outboxMus[t].Unlock()
	}
}

// Reserve distributes minKeys evenly across this job's processes and
// reserves this rank's local share up front.
func (d *DistMap[K, V]) Reserve(minKeys int) {
	d.local.Reserve(minKeys / d.ctx.Size())
}

// LocalNKeys returns the number of keys committed to this rank's local
// map, not counting any other rank's share.
func (d *DistMap[K, V]) LocalNKeys() int { return d.local.NKeys() }

// GetNKeys returns the total key count across every rank via an
// all-reduce-sum collective. Every rank must call this the same number of
// times in the same order.
func (d *DistMap[K, V]) GetNKeys(ctx context.Context) (int, error) {
	total, err := d.ctx.AllReduceSum(ctx, int64(d.local.NKeys()))
	if err != nil {
		return 0, fmt.Errorf("distmap: GetNKeys: %w", err)
	}
	return int(total), nil
}

// Phase reports this DistMap's position in the Fresh/Dirty/Clean state
// machine.
func (d *DistMap[K, V]) Phase() Phase { return Phase(atomic.LoadInt32(&d.phase)) }

// ForEach visits every (key, value) pair owned by this rank's local map.
// Call Sync first if remote ranks' writes for locally-owned keys must be
// included.
func (d *DistMap[K, V]) ForEach(visit func(key K, value V)) {
	d.local.ForEach(visit)
}

// Sync is the collective exchange point: it flushes this rank's staging
// caches, serializes every outbox, exchanges them with every other rank
// via the context's all-to-all, applies the reducer to everything
// received, and clears the outboxes. Every rank must call Sync the same
// number of times in the same order, or the job deadlocks.
func (d *DistMap[K, V]) Sync(ctx context.Context, verbose bool) error {
	d.local.Sync(d.reduce)

	send := make([][]byte, d.ctx.Size())
	for dest := range send {
		var entries []entry[K, V]
		for t := range d.outboxes {
			d.outboxMus[t].Lock()
			entries = append(entries, d.outboxes[t][dest]...)
			d.outboxMus[t].Unlock()
		}

		var buf bytes.Buffer
		if err := d.encodeEntries(&buf, entries); err != nil {
			return fmt.Errorf("distmap: sync: encode outbox for rank %d: %w", dest, err)
		}
		send[dest] = buf.Bytes()
	}

	if verbose && d.ctx.Rank() == 0 {
		telemetry.Statusln(d.ctx.Rank(), "sync: exchanging outboxes across", d.ctx.Size(), "ranks")
	}

	recv, err := d.ctx.AllToAll(ctx, send)
	if err != nil {
		return fmt.Errorf("distmap: sync: all-to-all: %w", err)
	}

	for src, raw := range recv {
		entries, err := d.decodeEntries(raw)
		if err != nil {
			return fmt.Errorf("distmap: sync: decode inbox from rank %d: %w", src, err)
		}
		for _, e := range entries {
			h := d.hash(e.key)
			d.local.Set(e.key, d.localHash(h), e.value, d.reduce)
		}
	}

	d.clearOutboxes()
	atomic.StoreInt32(&d.phase, int32(Clean))
	return nil
}

// encodeEntries writes the all-to-all wire format: an 8-byte little-endian
// record count, then that many records of 4-byte-length-prefixed key bytes
// followed by 4-byte-length-prefixed value bytes.
func (d *DistMap[K, V]) encodeEntries(buf *bytes.Buffer, entries []entry[K, V]) error {
	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], uint64(len(entries)))
	buf.Write(countBuf[:])

	for _, e := range entries {
		var kb, vb bytes.Buffer
		if err := d.keyCodec.Encode(e.key, &kb); err != nil {
			return fmt.Errorf("encode key: %w", err)
		}
		if err := d.valCodec.Encode(e.value, &vb); err != nil {
			return fmt.Errorf("encode value: %w", err)
		}
		writeLenPrefixed(buf, kb.Bytes())
		writeLenPrefixed(buf, vb.Bytes())
	}
	return nil
}

func (d *DistMap[K, V]) decodeEntries(raw []byte) ([]entry[K, V], error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw) < 8 {
		return nil, fmt.Errorf("truncated record count")
	}
	n := binary.LittleEndian.Uint64(raw[:8])
	r := bytes.NewReader(raw[8:])

	entries := make([]entry[K, V], 0, n)
	for i := uint64(0); i < n; i++ {
		kb, err := readLenPrefixed(r)
		if err != nil {
			return nil, fmt.Errorf("read key %d: %w", i, err)
		}
		vb, err := readLenPrefixed(r)
		if err != nil {
			return nil, fmt.Errorf("read value %d: %w", i, err)
		}
		key, err := d.keyCodec.Decode(bytes.NewReader(kb))
		if err != nil {
			return nil, fmt.Errorf("decode key %d: %w", i, err)
		}
		value, err := d.valCodec.Decode(bytes.NewReader(vb))
		if err != nil {
			return nil, fmt.Errorf("decode value %d: %w", i, err)
		}
		entries = append(entries, entry[K, V]{key: key, value: value})
	}
	return entries, nil
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
