package persistqueue

import (
	"encoding/json"
	"fmt"
)

// jsonInfoCodec implements metadata.Codec for the Info record. The info
// record's wire format is an implementation detail, not part of the
// protocol a Serializer[T] governs (spec: "any format that round-trips is
// acceptable"), so it is deliberately kept independent of whatever
// Serializer[T] the caller picked for items — pairing a generic item codec
// to this one fixed internal struct would only add a type parameter
// nothing reads.
type jsonInfoCodec struct{}

func (jsonInfoCodec) Encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("persistqueue: encode info record: %w", err)
	}
	return b, nil
}

func (jsonInfoCodec) Decode(b []byte, v interface{}) error {
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("persistqueue: decode info record: %w", err)
	}
	return nil
}
