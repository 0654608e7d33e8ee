package reducer

// Reducer combines an already-present value with an incoming one and
// returns the combined result. Implementations must be commutative and
// associative to be correct under the engine's unspecified application
// order across threads and processes.
type Reducer[V any] func(existing, incoming V) V

// Number is the constraint satisfied by value types the arithmetic
// reducers (Sum, Min, Max, Prod) can operate on.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64
}

// Overwrite keeps the most recently applied value, discarding the existing
// one. It is NOT commutative: its result depends on application order,
// which is unspecified in a distributed Sync. It is preserved as a named
// reducer only because callers historically relied on it when they can
// independently guarantee a single emission source per key (e.g. a
// single-threaded local Set loop). Prefer Keep or a true commutative
// reducer in any context that spans threads or processes.
func Overwrite[V any](_, incoming V) V {
	return incoming
}

// Keep discards the incoming value, retaining whatever is already present.
// Semantically "first write wins": the result of folding values with Keep
// is whichever one was applied first. Like Overwrite it is not
// commutative (Keep(a, b) == a but Keep(b, a) == b), so the result is
// order-independent only when every emission for a key carries the same
// value.
func Keep[V any](existing, _ V) V {
	return existing
}

// Sum folds values by addition.
func Sum[V Number](existing, incoming V) V {
	return existing + incoming
}

// Min folds values by keeping the smaller one.
func Min[V Number](existing, incoming V) V {
	if incoming < existing {
		return incoming
	}
	return existing
}

// Max folds values by keeping the larger one.
func Max[V Number](existing, incoming V) V {
	if incoming > existing {
		return incoming
	}
	return existing
}

// Prod folds values by multiplication.
func Prod[V Number](existing, incoming V) V {
	return existing * incoming
}

// First is an alias for Keep, named to match the "first write wins"
// description callers reach for more often than the historical "keep" name.
func First[V any](existing, incoming V) V {
	return Keep(existing, incoming)
}

// Last is an alias for Overwrite, named to match "last write wins". Carries
// the same non-commutativity warning as Overwrite.
func Last[V any](existing, incoming V) V {
	return Overwrite(existing, incoming)
}

// CountingReducer returns a Reducer[int] that counts emissions rather
// than summing their values: every application adds exactly one to the
// existing count and discards whatever value was actually emitted. It is
// not associative: merging two partial counts (as when a staging cache
// or a remote rank's result is folded into a segment) adds one rather
// than the second count, so such merges undercount.
func CountingReducer() Reducer[int] {
	return func(existing, _ int) int {
		return existing + 1
	}
}
