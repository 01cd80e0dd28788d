package chunk

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

const writeBufSize = 1024 * 64

// lengthPrefixSize is the width of the fixed on-disk length prefix, frozen
// at 4 bytes big-endian (SPEC_FULL.md open question (a)).
const lengthPrefixSize = 4

// writer owns the head chunk: the only file in the log that is ever open
// for writing. It rolls to a new chunk by record count, never by byte size,
// so chunk boundaries are deterministic regardless of item size.
type writer struct {
	dir       string
	chunkSize int64 // records per chunk

	head Position

	file *os.File
	buf  *bufio.Writer
}

func newWriter(dir string, chunkSize int64, head Position) *writer {
	return &writer{dir: dir, chunkSize: chunkSize, head: head}
}

func (w *writer) open() error {
	if w.file != nil {
		return nil
	}
	f, err := os.OpenFile(fileName(w.dir, w.head.ChunkID), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("chunk: open head chunk %d: %w", w.head.ChunkID, err)
	}
	if w.head.Offset > 0 {
		if _, err := f.Seek(w.head.Offset, 0); err != nil {
			f.Close()
			return fmt.Errorf("chunk: seek head chunk %d: %w", w.head.ChunkID, err)
		}
	}
	w.file = f
	if w.buf == nil {
		w.buf = bufio.NewWriterSize(f, writeBufSize)
	} else {
		w.buf.Reset(f)
	}
	return nil
}

// append writes a record to the head chunk, rolling first if the chunk is
// already full. It returns the position the record was written at (before
// the write); the new head position (after the write) is left in w.head.
func (w *writer) append(payload []byte) (Position, error) {
	if err := w.open(); err != nil {
		return Position{}, err
	}

	if w.head.Count >= w.chunkSize {
		if err := w.roll(); err != nil {
			return Position{}, err
		}
	}

	written := w.head

	frame := getBuffer()
	defer putBuffer(frame)

	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	frame.Write(lenBuf[:])
	frame.Write(payload)

	if _, err := w.buf.Write(frame.Bytes()); err != nil {
		return Position{}, fmt.Errorf("chunk: write record: %w", err)
	}

	w.head.Offset += int64(lengthPrefixSize + len(payload))
	w.head.Count++

	return written, nil
}

// roll closes the current head chunk and opens chunk id+1 for writing.
func (w *writer) roll() error {
	if err := w.flush(true); err != nil {
		return err
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	w.head.ChunkID++
	w.head.Offset = 0
	w.head.Count = 0
	return w.open()
}

// flush writes the buffered bytes to the OS and, if durable, fsyncs them.
func (w *writer) flush(durable bool) error {
	if w.buf != nil {
		if err := w.buf.Flush(); err != nil {
			return fmt.Errorf("chunk: flush head chunk: %w", err)
		}
	}
	if durable && w.file != nil {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("chunk: fsync head chunk: %w", err)
		}
	}
	return nil
}

func (w *writer) close() error {
	if w.file == nil {
		return nil
	}
	err := w.flush(true)
	cerr := w.file.Close()
	w.file = nil
	if err != nil {
		return err
	}
	return cerr
}
