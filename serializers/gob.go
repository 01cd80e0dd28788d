// Package serializers provides the built-in Serializer implementations,
// one file per wire format — the layout persistqueue/serializers/*.py
// uses in the Python original this library is grounded on.
package serializers

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Gob is the default serializer: encoding/gob, matching the Python
// original's default of pickle (the standard library's generic object
// serializer) with the closest Go standard-library equivalent.
type Gob[T any] struct{}

// NewGob returns the default Gob serializer for item type T.
func NewGob[T any]() Gob[T] { return Gob[T]{} }

func (Gob[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("serializers: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (Gob[T]) Decode(b []byte) (T, error) {
	var v T
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return v, fmt.Errorf("serializers: gob decode: %w", err)
	}
	return v, nil
}

func (Gob[T]) Version() string { return "1.0.0" }

func (Gob[T]) CompatRange() string { return ">=1.0.0 <2.0.0" }
