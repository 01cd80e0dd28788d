package persistqueue

// Serializer translates one item of type T to and from a byte string.
// Parameterizing Queue over T and its Serializer together (Design Notes:
// "parameterize the queue over the item type together with its
// serializer") turns a mis-paired serializer/queue — the Python original's
// opaque, runtime-checked payload — into either a compile-time type error
// or, for the serializer version, an open-time ErrConfigMismatch.
type Serializer[T any] interface {
	// Encode produces the full byte string for one item. The result's
	// length must fit in a uint32, the on-disk length prefix's width.
	Encode(v T) ([]byte, error)

	// Decode reconstructs an item from a previously Encode-d byte string.
	Decode(b []byte) (T, error)

	// Version is a semver string written into a queue directory's info
	// record the first time it is initialized, and checked against
	// CompatRange on every later reopen.
	Version() string

	// CompatRange is a semver range (parseable by blang/semver) this
	// serializer accepts as compatible when reopening an existing queue
	// directory. Mismatches surface as ErrConfigMismatch.
	CompatRange() string
}
