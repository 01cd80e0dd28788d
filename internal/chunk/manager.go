// Package chunk implements the append-only, chunked log that backs a
// persist-queue directory: a sequence of fixed-record-count files holding
// length-prefixed item records, a single writable head chunk, and an LRU
// of cached read handles for the tail and any catch-up readers.
package chunk

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
)

// Manager owns every chunk file in a queue directory. Append, ReadAt,
// Flush, and TruncateHead are not themselves safe for concurrent use from
// multiple goroutines without an external lock — the queue facade holds
// its own mutex around every such call into this package, matching the
// teacher's choice to perform disk I/O while holding the queue lock. The
// one exception is the background reaper started by Open: it runs on its
// own goroutine and evicts from the read handle cache without the queue
// lock, so the reader keeps its own internal mutex (see reader.go) to stay
// safe against a ReadAt happening concurrently under the queue lock.
type Manager struct {
	dir       string
	chunkSize int64

	w *writer
	r *reader

	reapWork *queue.Queue
	reapWG   sync.WaitGroup
	closed   bool
}

// Open creates a Manager rooted at dir with the given head position as the
// current write cursor. dir must already exist.
func Open(dir string, chunkSize int64, head Position) (*Manager, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk: chunksize must be positive, got %d", chunkSize)
	}

	m := &Manager{
		dir:       dir,
		chunkSize: chunkSize,
		w:         newWriter(dir, chunkSize, head),
		r:         newReader(dir),
		reapWork:  queue.New(16),
	}

	m.reapWG.Add(1)
	go m.reapLoop()

	return m, nil
}

// Append writes payload to the head chunk, rolling to a new chunk first if
// the current head is already full. It returns the new head position.
func (m *Manager) Append(payload []byte) (Position, error) {
	if m.closed {
		return Position{}, ErrClosed
	}
	if _, err := m.w.append(payload); err != nil {
		return Position{}, err
	}
	return m.w.head, nil
}

// ReadAt reads one record at pos via the cached reader.
func (m *Manager) ReadAt(pos Position) ([]byte, int64, Position, error) {
	if m.closed {
		return nil, 0, pos, ErrClosed
	}
	return m.r.readAt(pos)
}

// Flush flushes the head chunk's write buffer, fsyncing it if durable.
func (m *Manager) Flush(durable bool) error {
	if m.closed {
		return ErrClosed
	}
	return m.w.flush(durable)
}

// TruncateHead discards any bytes in the head chunk beyond the given
// offset, used during recovery to drop a torn write left by a crash. It
// only ever shrinks the file: if the head chunk on disk is shorter than
// offset, the bytes the info record claims were written are actually
// gone, and silently calling os.File.Truncate would zero-extend the file
// and fabricate records rather than reveal the loss — so that case
// returns ErrHeadChunkShort instead.
func (m *Manager) TruncateHead(offset int64) error {
	path := fileName(m.dir, m.w.head.ChunkID)
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if offset == 0 {
				return nil
			}
			return fmt.Errorf("chunk: head chunk %d missing but persisted offset is %d: %w", m.w.head.ChunkID, offset, ErrHeadChunkShort)
		}
		return fmt.Errorf("chunk: stat head chunk for truncate: %w", err)
	}
	if st.Size() < offset {
		return fmt.Errorf("chunk: head chunk %d is %d bytes, shorter than persisted offset %d: %w", m.w.head.ChunkID, st.Size(), offset, ErrHeadChunkShort)
	}
	if st.Size() == offset {
		return nil
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("chunk: open head chunk for truncate: %w", err)
	}
	defer f.Close()
	if err := f.Truncate(offset); err != nil {
		return fmt.Errorf("chunk: truncate head chunk: %w", err)
	}
	return nil
}

// Reap schedules every chunk file strictly below upToExclusive for
// deletion. Deletion happens asynchronously on a background worker so a
// slow unlink never blocks a caller holding the queue mutex; Close drains
// the worklist before returning.
func (m *Manager) Reap(upToExclusive int64) error {
	if m.closed {
		return ErrClosed
	}
	return m.reapWork.Put(upToExclusive)
}

func (m *Manager) reapLoop() {
	defer m.reapWG.Done()
	for {
		items, err := m.reapWork.Get(1)
		if err != nil {
			// Queue was disposed: drain nothing further.
			return
		}
		upToExclusive := items[0].(int64)
		m.doReap(upToExclusive)
	}
}

func (m *Manager) doReap(upToExclusive int64) {
	ids, err := m.ExistingChunkIDs()
	if err != nil {
		return
	}
	for _, id := range ids {
		if id >= upToExclusive {
			continue
		}
		m.r.evict(id)
		_ = os.Remove(fileName(m.dir, id))
	}
}

// ExistingChunkIDs lists the ids of every chunk file currently present in
// the queue directory, sorted ascending.
func (m *Manager) ExistingChunkIDs() ([]int64, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("chunk: list queue dir: %w", err)
	}
	var ids []int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "q") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(name, "q"), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ChunkSize returns the configured records-per-chunk.
func (m *Manager) ChunkSize() int64 { return m.chunkSize }

// ChunkPath returns the on-disk path of a given chunk id, for callers that
// need to stat or size it directly (recovery).
func (m *Manager) ChunkPath(id int64) string { return fileName(m.dir, id) }

// Dir returns the queue directory this manager is rooted at.
func (m *Manager) Dir() string { return filepath.Clean(m.dir) }

// Close flushes and closes the head chunk, drains the reap worklist, and
// releases every cached read handle. It is idempotent and best-effort: it
// always releases whatever it can, returning the first error encountered.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	// Let the reaper take every queued request before disposing, so
	// Dispose never drops pending work.
	for !m.reapWork.Empty() {
		time.Sleep(time.Millisecond)
	}
	m.reapWork.Dispose()
	m.reapWG.Wait()

	werr := m.w.close()
	rerr := m.r.close()
	if werr != nil {
		return werr
	}
	return rerr
}
