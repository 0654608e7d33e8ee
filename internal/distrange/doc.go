// Package distrange implements the MapReduce driver: it iterates a key
// space -- either a numeric half-open interval (DistRange) or an existing
// internal/concurrent.Map's entries -- partitions the work across a
// parallel.Context's processes and threads, invokes a user-supplied
// mapper for every item this process owns, and folds the emissions into a
// distmap.DistMap via Sync.
package distrange
