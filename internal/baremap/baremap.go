// Package baremap implements a single-threaded, open-chaining hash table
// whose bucket counts are always drawn from a fixed prime cascade (see
// primes.go). It is the leaf data structure the rest of the engine builds
// concurrency and distribution on top of — a BareMap is never meant to be
// shared across goroutines without external locking.
package baremap

// node is one entry of a bucket's chain. Its hash is cached so rehash can
// recompute a node's new bucket without asking the caller for the key's
// hash again.
type node[K comparable, V any] struct {
	next  *node[K, V]
	key   K
	value V
	hash  uint64
}

// Map is a single-threaded hash table with separate chaining and
// prime-sized bucket arrays.
//
// Invariants: every node in bucket i satisfies hash(key) mod B == i; no two
// nodes in the same bucket share a key; n (the reported key count) equals
// the total node count across all buckets; after any Set/Unset,
// n <= B*MaxLoadFactor held already or a rehash ran before returning.
type Map[K comparable, V any] struct {
	buckets []*node[K, V]
	n       int

	// MaxLoadFactor bounds n/B before a Set triggers a rehash. Defaults to
	// 1.0 when the map is constructed with New.
	MaxLoadFactor float64

	// Inflation scales the rehash target beyond n/MaxLoadFactor. The
	// spec's legacy code path applied a 5/4 inflation factor on top of the
	// prime-product rounding; this implementation exposes it as a knob
	// (default 1.0, i.e. no inflation) instead of hard-wiring one of the
	// two historical behaviors, since it was never clear which was
	// canonical.
	Inflation float64
}

// New creates an empty Map with the smallest prime bucket count and a
// max load factor of 1.0.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		buckets:       make([]*node[K, V], smallestPrime),
		MaxLoadFactor: 1.0,
		Inflation:     1.0,
	}
}

// NKeys returns the total number of keys stored.
func (m *Map[K, V]) NKeys() int { return m.n }

// NBuckets returns the current bucket array length.
func (m *Map[K, V]) NBuckets() int { return len(m.buckets) }

// LoadFactor returns n / NBuckets.
func (m *Map[K, V]) LoadFactor() float64 {
	return float64(m.n) / float64(len(m.buckets))
}

func (m *Map[K, V]) bucketIndex(hash uint64) int {
	return int(hash % uint64(len(m.buckets)))
}

// Reserve grows the bucket array, if needed, so that minKeys can be held
// without triggering a rehash partway through a batch of inserts.
func (m *Map[K, V]) Reserve(minKeys int) {
	if minKeys <= 0 {
		return
	}
	target := pickPrimeProduct(ceilDiv(minKeys, m.maxLoad()))
	if target > len(m.buckets) {
		m.rehash(target)
	}
}

func (m *Map[K, V]) maxLoad() float64 {
	if m.MaxLoadFactor <= 0 {
		return 1.0
	}
	return m.MaxLoadFactor
}

func (m *Map[K, V]) inflationOrOne() float64 {
	if m.Inflation <= 0 {
		return 1.0
	}
	return m.Inflation
}

// Set inserts key/value if key is absent, or applies reduce(existing,
// value) in place if it is already present. hash must be the caller's
// hash of key (the map never recomputes it, which is what lets segmented
// and distributed layers strip out the bits they've already consumed for
// routing before calling down into a BareMap).
func (m *Map[K, V]) Set(key K, hash uint64, value V, reduce func(existing, incoming V) V) {
	idx := m.bucketIndex(hash)
	for cur := m.buckets[idx]; cur != nil; cur = cur.next {
		if cur.hash == hash && cur.key == key {
			cur.value = reduce(cur.value, value)
			return
		}
	}

	nn := &node[K, V]{key: key, hash: hash, value: value, next: m.buckets[idx]}
	m.buckets[idx] = nn
	m.n++

	if float64(m.n) > float64(len(m.buckets))*m.maxLoad() {
		minBuckets := ceilDiv(m.n, m.maxLoad())
		target := int(float64(minBuckets) * m.inflationOrOne())
		if target < minBuckets {
			target = minBuckets
		}
		m.rehash(pickPrimeProduct(target))
	}
}

// Unset removes key if present, splicing its successor into its slot.
// Reports whether a node was removed.
func (m *Map[K, V]) Unset(key K, hash uint64) bool {
	idx := m.bucketIndex(hash)
	var prev *node[K, V]
	for cur := m.buckets[idx]; cur != nil; cur = cur.next {
		if cur.hash == hash && cur.key == key {
			if prev == nil {
				m.buckets[idx] = cur.next
			} else {
				prev.next = cur.next
			}
			cur.next = nil
			m.n--
			return true
		}
		prev = cur
	}
	return false
}

// Get returns the value stored for key, or def if key is absent.
func (m *Map[K, V]) Get(key K, hash uint64, def V) V {
	idx := m.bucketIndex(hash)
	for cur := m.buckets[idx]; cur != nil; cur = cur.next {
		if cur.hash == hash && cur.key == key {
			return cur.value
		}
	}
	return def
}

// Has reports whether key is present.
func (m *Map[K, V]) Has(key K, hash uint64) bool {
	idx := m.bucketIndex(hash)
	for cur := m.buckets[idx]; cur != nil; cur = cur.next {
		if cur.hash == hash && cur.key == key {
			return true
		}
	}
	return false
}

// Clear removes every key but keeps the current bucket array size.
func (m *Map[K, V]) Clear() {
	m.clearChains()
	m.n = 0
}

// ClearAndShrink removes every key and resets the bucket array to the
// smallest prime in the cascade.
func (m *Map[K, V]) ClearAndShrink() {
	m.clearChains()
	m.buckets = make([]*node[K, V], smallestPrime)
	m.n = 0
}

// clearChains walks every chain post-order (successor detached before its
// predecessor is dropped) purely to preserve the same traversal discipline
// rehash relies on; Go's GC reclaims the nodes regardless of order, but
// exercising the discipline here keeps Clear and rehash mechanically
// identical, which is the property the invariant is about.
func (m *Map[K, V]) clearChains() {
	for i, head := range m.buckets {
		cur := head
		for cur != nil {
			next := cur.next
			cur.next = nil
			cur = next
		}
		m.buckets[i] = nil
	}
}

// ForEach visits every (key, hash, value) triple. Mutating the map from
// within visit is not supported.
func (m *Map[K, V]) ForEach(visit func(key K, hash uint64, value V)) {
	for _, head := range m.buckets {
		for cur := head; cur != nil; cur = cur.next {
			visit(cur.key, cur.hash, cur.value)
		}
	}
}

// rehash transplants every node into a freshly allocated bucket array of
// newSize, post-order per chain so each node's successor is detached
// before the node itself is moved. The old array is never mutated after
// the new one starts filling, so on an allocation panic mid-rehash the
// map is left referencing the fully-populated old array — consistent
// pre-rehash state, never partial.
func (m *Map[K, V]) rehash(newSize int) {
	if newSize < smallestPrime {
		newSize = smallestPrime
	}
	fresh := make([]*node[K, V], newSize)
	for _, head := range m.buckets {
		cur := head
		for cur != nil {
			next := cur.next
			idx := int(cur.hash % uint64(newSize))
			cur.next = fresh[idx]
			fresh[idx] = cur
			cur = next
		}
	}
	m.buckets = fresh
}

func ceilDiv(a int, b float64) int {
	if b <= 0 {
		b = 1
	}
	v := float64(a) / b
	iv := int(v)
	if float64(iv) < v {
		iv++
	}
	if iv < 1 {
		iv = 1
	}
	return iv
}
