package codec

import "bytes"

// Codec encodes and decodes values of type T to and from opaque byte
// buffers for the all-to-all wire format. Implementations must satisfy
// Decode(Encode(x)) == x; the engine does not verify this.
type Codec[T any] interface {
	Encode(value T, out *bytes.Buffer) error
	Decode(in *bytes.Reader) (T, error)
}
