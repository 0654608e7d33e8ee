package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSON is a Codec backed by encoding/json, useful during development
// because wire traffic stays human-inspectable.
type JSON[T any] struct{}

// Encode JSON-marshals value and appends it to out.
func (JSON[T]) Encode(value T, out *bytes.Buffer) error {
	enc := json.NewEncoder(out)
	return enc.Encode(value)
}

// Decode JSON-unmarshals the next value of type T from in.
func (JSON[T]) Decode(in *bytes.Reader) (T, error) {
	var v T
	dec := json.NewDecoder(in)
	if err := dec.Decode(&v); err != nil && err != io.EOF {
		var zero T
		return zero, fmt.Errorf("codec: json decode: %w", err)
	}
	return v, nil
}
