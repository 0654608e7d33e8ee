// Package distmap implements the process-partitioned distributed hash map:
// a DistMap wraps a local internal/concurrent.Map and a parallel.Context,
// and owns key k on whichever rank satisfies hash(k) mod P == rank.
//
// Writes for a key owned by this rank go straight into the local segmented
// map via AsyncSet; writes for a remote owner accumulate in a per-thread,
// per-destination outbox until Sync flushes them through the context's
// all-to-all primitive: take a consistent local snapshot first, then do
// the network exchange as one bulk-synchronous round rather than
// independent per-peer sends.
package distmap
