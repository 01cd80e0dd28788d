package serializers

import (
	"encoding/json"
	"fmt"
)

// JSON serializes items with encoding/json — useful when a queue
// directory must stay inspectable with ordinary text tools, trading that
// for slower encode/decode than Gob.
type JSON[T any] struct{}

// NewJSON returns the JSON serializer for item type T.
func NewJSON[T any]() JSON[T] { return JSON[T]{} }

func (JSON[T]) Encode(v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serializers: json encode: %w", err)
	}
	return b, nil
}

func (JSON[T]) Decode(b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("serializers: json decode: %w", err)
	}
	return v, nil
}

func (JSON[T]) Version() string { return "1.0.0" }

func (JSON[T]) CompatRange() string { return ">=1.0.0 <2.0.0" }
