package chunk

import (
	"container/list"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// maxCachedHandles bounds the number of open read-only chunk file
// descriptors kept around for repeated ReadAt calls during catch-up reads
// over many historical chunks.
const maxCachedHandles = 8

type cachedHandle struct {
	id   int64
	file *os.File
}

// reader serves ReadAt against any chunk id, keeping a small LRU of open
// read-only file handles so a consumer walking many chunks during catch-up
// doesn't re-open a file on every record.
//
// Unlike writer, reader guards its own map/list with a mutex rather than
// relying on the queue facade's lock: the background reaper (manager.go's
// reapLoop) calls evict from its own goroutine, concurrently with ReadAt
// calls made under the queue lock, and the queue lock is never held by the
// reaper.
type reader struct {
	mu sync.Mutex

	dir string

	handles map[int64]*list.Element
	order   *list.List // front = most recently used
}

func newReader(dir string) *reader {
	return &reader{
		dir:     dir,
		handles: make(map[int64]*list.Element),
		order:   list.New(),
	}
}

// handle returns the open file for id, opening and caching it if needed.
// Callers must hold r.mu: handle itself only touches the map/list, but the
// file it returns must not be closed by a concurrent evict while still in
// use, so readAt keeps the lock held across the actual read too.
func (r *reader) handle(id int64) (*os.File, error) {
	if el, ok := r.handles[id]; ok {
		r.order.MoveToFront(el)
		return el.Value.(*cachedHandle).file, nil
	}

	f, err := os.Open(fileName(r.dir, id))
	if err != nil {
		return nil, err
	}

	el := r.order.PushFront(&cachedHandle{id: id, file: f})
	r.handles[id] = el

	for r.order.Len() > maxCachedHandles {
		back := r.order.Back()
		ch := back.Value.(*cachedHandle)
		ch.file.Close()
		delete(r.handles, ch.id)
		r.order.Remove(back)
	}

	return f, nil
}

// readAt reads one record at (chunkID, offset): a 4-byte big-endian length
// prefix followed by that many payload bytes. It returns the payload, the
// number of bytes consumed (prefix + payload), and the position immediately
// after the record.
func (r *reader) readAt(pos Position) ([]byte, int64, Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.handle(pos.ChunkID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, pos, fmt.Errorf("chunk: %w", ErrTornRecord)
		}
		return nil, 0, pos, fmt.Errorf("chunk: open chunk %d: %w", pos.ChunkID, err)
	}

	var lenBuf [lengthPrefixSize]byte
	if _, err := f.ReadAt(lenBuf[:], pos.Offset); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, pos, fmt.Errorf("chunk: %w", ErrTornRecord)
		}
		return nil, 0, pos, fmt.Errorf("chunk: read length prefix at chunk %d offset %d: %w", pos.ChunkID, pos.Offset, err)
	}
	payloadLen := int64(binary.BigEndian.Uint32(lenBuf[:]))

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := f.ReadAt(payload, pos.Offset+lengthPrefixSize); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, 0, pos, fmt.Errorf("chunk: %w", ErrTornRecord)
			}
			return nil, 0, pos, fmt.Errorf("chunk: read payload at chunk %d offset %d: %w", pos.ChunkID, pos.Offset, err)
		}
	}

	consumed := lengthPrefixSize + payloadLen
	next := Position{ChunkID: pos.ChunkID, Offset: pos.Offset + consumed, Count: pos.Count + 1}
	return payload, consumed, next, nil
}

func (r *reader) evict(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.handles[id]
	if !ok {
		return
	}
	el.Value.(*cachedHandle).file.Close()
	delete(r.handles, id)
	r.order.Remove(el)
}

func (r *reader) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, el := range r.handles {
		if err := el.Value.(*cachedHandle).file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.handles, id)
	}
	r.order.Init()
	return firstErr
}
