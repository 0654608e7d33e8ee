// Package parallel provides the execution context every distributed
// component is built against: process rank, process count, thread count,
// and the three collective primitives the engine needs — Barrier,
// AllToAll, and AllReduceSum.
//
// The message-passing substrate itself is treated as an external
// collaborator, so Context is an interface rather than a concrete type.
// Two implementations ship: Local, an in-process simulation of many
// ranks over goroutines and a mutex/condition-variable rendezvous hub for
// tests and single-node jobs, and
// Cluster, a real multi-process transport built on plain HTTP/JSON
// between a coordinator rank and the rest.
//
// Context is always passed explicitly into the components that need it
// (DistMap, the MapReduce driver) rather than reached for as global
// state, so a caller can swap Local for Cluster without any component
// needing to know which one it got.
package parallel
