// Package reducer provides the named value combiners used to fold
// concurrently emitted values that share a key.
//
// A Reducer is a commutative, associative binary combiner. The engine applies
// reducers in nondeterministic order across threads and processes, so any
// reducer used in a distributed context must satisfy that algebraic
// contract; the engine does not check it and will silently produce
// order-dependent results if it is violated.
package reducer
