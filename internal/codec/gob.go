package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Gob is the default Codec, backed by encoding/gob. It round-trips any
// type gob itself supports (exported struct fields, no channels/funcs),
// needing no schema and working out of the box for arbitrary user value
// types.
type Gob[T any] struct{}

// Encode gob-encodes value and appends it to out.
func (Gob[T]) Encode(value T, out *bytes.Buffer) error {
	return gob.NewEncoder(out).Encode(value)
}

// Decode gob-decodes the next value of type T from in.
func (Gob[T]) Decode(in *bytes.Reader) (T, error) {
	var v T
	if err := gob.NewDecoder(in).Decode(&v); err != nil {
		var zero T
		return zero, fmt.Errorf("codec: gob decode: %w", err)
	}
	return v, nil
}
