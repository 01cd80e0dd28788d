package chunk

import "errors"

// ErrTornRecord is returned by ReadAt when a chunk file is shorter than
// the record's length prefix promises — evidence of a crash mid-write.
// The head chunk's own torn record is handled internally during recovery;
// a torn record anywhere else is a genuine on-disk inconsistency.
var ErrTornRecord = errors.New("chunk: torn record")

// ErrClosed is returned by any chunk manager operation after Close.
var ErrClosed = errors.New("chunk: manager closed")

// ErrHeadChunkShort is returned by TruncateHead when the on-disk head
// chunk is shorter than the offset the info record claims was durably
// written — evidence that bytes the info record already committed to
// were lost (e.g. an fsync of the info record outran an fsync of the
// chunk data it points at). The caller must not paper over this by
// truncating (which would zero-extend the file and fabricate records);
// it is surfaced as an error instead.
var ErrHeadChunkShort = errors.New("chunk: head chunk shorter than persisted offset")
