// Package codec defines the pluggable encode/decode contract the engine
// uses for keys and values crossing the wire during an all-to-all
// exchange, plus two default implementations so the module is runnable
// without every caller supplying their own.
//
// The engine imposes no layout on Codec's output — it treats encoded
// buffers as opaque and only relies on round-trip identity:
// Decode(Encode(x)) == x for every admissible x. Detecting a violation of
// that contract (a type mismatch across processes, say) is the codec's
// responsibility, not the engine's.
package codec
