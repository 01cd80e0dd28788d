package serializers

import (
	"fmt"

	"github.com/golang/snappy"
)

// codec is the subset of persistqueue.Serializer[T] that Snappy wraps;
// kept local to avoid an import cycle with the root package.
type codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
	Version() string
	CompatRange() string
}

// Snappy decorates another Serializer, compressing its encoded output with
// snappy — a good fit for large or repetitive payloads. The teacher uses
// golang/snappy to compress inter-node wire frames; here it compresses the
// on-disk record instead.
type Snappy[T any] struct {
	inner codec[T]
}

// NewSnappy wraps inner with snappy compression.
func NewSnappy[T any](inner codec[T]) Snappy[T] {
	return Snappy[T]{inner: inner}
}

func (s Snappy[T]) Encode(v T) ([]byte, error) {
	raw, err := s.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func (s Snappy[T]) Decode(b []byte) (T, error) {
	raw, err := snappy.Decode(nil, b)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("serializers: snappy decode: %w", err)
	}
	return s.inner.Decode(raw)
}

func (s Snappy[T]) Version() string { return s.inner.Version() + "+snappy" }

func (s Snappy[T]) CompatRange() string { return s.inner.CompatRange() }
