// Package concurrent implements the segmented concurrent hash map: a
// locked shard array of baremap.Map instances plus per-thread staging
// caches that absorb writes a contended segment lock would otherwise
// serialize.
//
// Construction fixes T = maxThreads and S = T * segmentsPerThread segments
// (seven per thread by default — enough to make lock collisions improbable
// without growing each segment's own table too thin). A hash h routes to
// segment h mod S; the bare map underneath that segment only ever sees
// h div S, so its own bucket choice stays uncorrelated with the segment
// selection and loses none of the hash's entropy.
//
// Two code paths reach a segment's data: Set/Get/Has/Unset/Sync-drain take
// the segment's lock and block; AsyncSet tries the lock and, on contention,
// falls back to the calling thread's private staging cache, guarded only by
// that thread's staging mutex (which Sync holds while draining it). A
// later Sync drains every staging cache into its segments
// and clears the caches. This is the only source of eventual, rather than
// immediate, visibility in the whole package.
package concurrent
