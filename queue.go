package persistqueue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/peter-wangxu/persist-queue/internal/chunk"
	"github.com/peter-wangxu/persist-queue/internal/metadata"
	"github.com/peter-wangxu/persist-queue/internal/tracker"
)

// Queue is a durable, crash-safe, multi-producer/multi-consumer FIFO queue
// of items of type T, backed by a chunked append-only log on local disk.
// A *Queue[T] is safe for concurrent use by any number of goroutines.
type Queue[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	tasks *tracker.Tracker

	chunks *chunk.Manager
	meta   *metadata.Store

	opts Options[T]

	head chunk.Position
	tail chunk.Position
	size int64

	serializerVersion string
	closed            bool

	canonPath string
	dlock     dirLock

	metrics *opMetrics
}

// blockConfig is shared by PutOption and GetOption: both Put and Get block
// by default, and both accept the same two modifiers.
type blockConfig struct {
	block   bool
	timeout *time.Duration
}

func defaultBlockConfig() blockConfig {
	return blockConfig{block: true}
}

// PutOption modifies the blocking behavior of Put.
type PutOption func(*blockConfig)

// GetOption modifies the blocking behavior of Get.
type GetOption func(*blockConfig)

// WithNoBlock makes Put return ErrFull immediately if the queue is at
// MaxSize. Get takes GetWithNoBlock instead.
func WithNoBlock() PutOption { return func(c *blockConfig) { c.block = false } }

// WithTimeout makes Put block for at most d before returning ErrFull. Get
// takes GetWithTimeout instead.
func WithTimeout(d time.Duration) PutOption { return func(c *blockConfig) { c.timeout = &d } }

// GetWithNoBlock is the Get-side counterpart of WithNoBlock.
func GetWithNoBlock() GetOption { return func(c *blockConfig) { c.block = false } }

// GetWithTimeout is the Get-side counterpart of WithTimeout.
func GetWithTimeout(d time.Duration) GetOption { return func(c *blockConfig) { c.timeout = &d } }

// New opens (or creates) a queue directory at opts.Path. Only one *Queue
// may have a directory open at a time, within this process and
// (best-effort) across processes.
func New[T any](opts Options[T]) (*Queue[T], error) {
	opts.setDefaults()
	if opts.Path == "" {
		return nil, fmt.Errorf("persistqueue: Options.Path is required")
	}
	if opts.MaxSize < 0 {
		return nil, fmt.Errorf("persistqueue: Options.MaxSize must not be negative")
	}

	if err := os.MkdirAll(opts.Path, 0755); err != nil {
		return nil, fmt.Errorf("persistqueue: create queue directory: %w", err)
	}
	if opts.TempDir != "" {
		if err := os.MkdirAll(opts.TempDir, 0755); err != nil {
			return nil, fmt.Errorf("persistqueue: create temp directory: %w", err)
		}
		if same, ok := sameFilesystem(opts.Path, opts.TempDir); ok && !same {
			logf(opts.Logger, LogWarn, opts.LogLevel, "temp dir %s is not on the same filesystem as %s; info rename may not be atomic", opts.TempDir, opts.Path)
		}
	}

	canon, err := canonicalPath(opts.Path)
	if err != nil {
		return nil, err
	}
	if err := globalRegistry.acquire(canon); err != nil {
		return nil, err
	}
	cleanup := func() { globalRegistry.release(canon) }

	dlock, err := newDirLock(opts.Path)
	if err != nil {
		cleanup()
		return nil, err
	}
	ok, err := dlock.TryLock()
	if err != nil {
		cleanup()
		return nil, err
	}
	if !ok {
		cleanup()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, opts.Path)
	}
	cleanup = func() {
		_ = dlock.Unlock()
		globalRegistry.release(canon)
	}

	meta := metadata.Open(opts.Path, opts.TempDir, jsonInfoCodec{})
	info, existed, err := meta.Load()
	if err != nil {
		cleanup()
		return nil, err
	}

	if existed {
		if info.ChunkSize != 0 && info.ChunkSize != opts.ChunkSize {
			cleanup()
			return nil, fmt.Errorf("%w: directory was created with chunksize %d, opened with %d", ErrChunkSizeMismatch, info.ChunkSize, opts.ChunkSize)
		}
		if err := metadata.CheckSerializerVersion(opts.Serializer.CompatRange(), info.SerializerVersion); err != nil {
			cleanup()
			return nil, err
		}
	}

	snap := &infoSnapshot{
		head: chunk.Position{ChunkID: info.HeadChunk, Offset: info.HeadOffset, Count: info.HeadCount},
		tail: chunk.Position{ChunkID: info.TailChunk, Offset: info.TailOffset, Count: info.TailCount},
		size: info.Size,
	}

	mgr, err := chunk.Open(opts.Path, opts.ChunkSize, snap.head)
	if err != nil {
		cleanup()
		return nil, err
	}

	if existed {
		if err := recoverPositions(mgr, snap, opts.ChunkSize); err != nil {
			_ = mgr.Close()
			cleanup()
			return nil, err
		}
	}

	serializerVersion := info.SerializerVersion
	if serializerVersion == "" {
		serializerVersion = opts.Serializer.Version()
	}

	q := &Queue[T]{
		chunks:            mgr,
		meta:              meta,
		opts:              opts,
		head:              snap.head,
		tail:              snap.tail,
		size:              snap.size,
		serializerVersion: serializerVersion,
		canonPath:         canon,
		dlock:             dlock,
		metrics:           newOpMetrics(filepath.Base(canon), opts.MetricsInterval),
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	q.tasks = tracker.New(&q.mu)

	if !existed {
		if err := q.saveInfoLocked(true); err != nil {
			_ = mgr.Close()
			globalRegistry.release(canon)
			_ = dlock.Unlock()
			return nil, err
		}
	}

	return q, nil
}

// saveInfoLocked persists the current head/tail/size, the caller must hold
// q.mu. On success it also reaps chunks strictly below the persisted
// tail's chunk — reaping is only safe against a durably committed tail,
// never the in-memory one, so redelivery after a crash can never find its
// source chunk already deleted.
//
// durable is passed straight through to metadata.Store.Save: it must be
// true whenever this call is the designated durability point for the
// bytes it records (Put under FsyncOnPut, Ack, Get under Autosave, and
// Close), and the caller is responsible for having already flushed the
// chunk data durably first, so the info record never claims durability of
// bytes that are not themselves durable yet.
func (q *Queue[T]) saveInfoLocked(durable bool) error {
	info := metadata.Info{
		HeadChunk:         q.head.ChunkID,
		HeadOffset:        q.head.Offset,
		HeadCount:         q.head.Count,
		TailChunk:         q.tail.ChunkID,
		TailOffset:        q.tail.Offset,
		TailCount:         q.tail.Count,
		Size:              q.size,
		ChunkSize:         q.opts.ChunkSize,
		SerializerVersion: q.serializerVersion,
	}
	if err := q.meta.Save(info, durable); err != nil {
		return err
	}
	if q.tail.ChunkID > 0 {
		_ = q.chunks.Reap(q.tail.ChunkID)
	}
	return nil
}

// rollTail advances next across a chunk boundary if it has reached the
// configured record count, mirroring the rolling Append performs on the
// write side — ReadAt itself only knows the chunk it was asked to read.
func (q *Queue[T]) rollTail(next chunk.Position) chunk.Position {
	if next.Count >= q.opts.ChunkSize {
		return chunk.Position{ChunkID: next.ChunkID + 1}
	}
	return next
}

// Put encodes item and durably appends it to the queue, blocking by
// default while the queue is at MaxSize.
func (q *Queue[T]) Put(item T, opts ...PutOption) error {
	start := time.Now()
	cfg := defaultBlockConfig()
	for _, o := range opts {
		o(&cfg)
	}

	payload, err := q.opts.Serializer.Encode(item)
	if err != nil {
		return fmt.Errorf("persistqueue: encode item: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.waitNotFull(cfg); err != nil {
		return err
	}
	if q.closed {
		return ErrClosed
	}

	prevHead, prevSize := q.head, q.size

	newHead, err := q.chunks.Append(payload)
	if err != nil {
		return fmt.Errorf("persistqueue: append record: %w", err)
	}
	q.head = newHead
	q.size++

	durable := q.opts.FsyncPolicy == FsyncOnPut
	if err := q.chunks.Flush(durable); err != nil {
		q.head, q.size = prevHead, prevSize
		return fmt.Errorf("persistqueue: flush head chunk: %w", err)
	}

	if err := q.saveInfoLocked(durable); err != nil {
		q.head, q.size = prevHead, prevSize
		return err
	}

	q.notEmpty.Broadcast()
	q.metrics.observePut(start)
	return nil
}

// waitNotFull blocks (subject to cfg) until the queue has room for one
// more item, or returns ErrFull. Callers must hold q.mu.
func (q *Queue[T]) waitNotFull(cfg blockConfig) error {
	full := func() bool { return q.opts.MaxSize > 0 && q.size >= q.opts.MaxSize }
	if !full() {
		return nil
	}
	if !cfg.block {
		return ErrFull
	}
	return q.waitLocked(q.notFull, full, cfg)
}

// waitNotEmpty blocks (subject to cfg) until the queue holds at least one
// item, or returns ErrEmpty. Callers must hold q.mu.
func (q *Queue[T]) waitNotEmpty(cfg blockConfig) error {
	empty := func() bool { return q.size == 0 }
	if !empty() {
		return nil
	}
	if !cfg.block {
		return ErrEmpty
	}
	return q.waitLocked(q.notEmpty, empty, cfg)
}

// waitLocked waits on cond until stuck() is false, honoring cfg's timeout
// and reacting to the queue being closed while waiting. Callers must hold
// q.mu; sync.Cond.Wait releases and reacquires it internally.
func (q *Queue[T]) waitLocked(cond *sync.Cond, stuck func() bool, cfg blockConfig) error {
	var timedOut bool
	if cfg.timeout != nil {
		timer := time.AfterFunc(*cfg.timeout, func() {
			q.mu.Lock()
			timedOut = true
			q.mu.Unlock()
			cond.Broadcast()
		})
		defer timer.Stop()
	}

	for stuck() {
		if q.closed {
			return ErrClosed
		}
		if timedOut {
			if stuck() {
				if cond == q.notFull {
					return ErrFull
				}
				return ErrEmpty
			}
			break
		}
		cond.Wait()
	}
	return nil
}

// Get blocks by default until an item is available, then reads it at the
// tail, advances the tail, and marks it outstanding until Ack.
func (q *Queue[T]) Get(opts ...GetOption) (T, error) {
	start := time.Now()
	var zero T
	cfg := defaultBlockConfig()
	for _, o := range opts {
		o(&cfg)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.waitNotEmpty(cfg); err != nil {
		return zero, err
	}
	if q.closed {
		return zero, ErrClosed
	}

	prevTail, prevSize := q.tail, q.size

	payload, _, next, err := q.chunks.ReadAt(q.tail)
	if err != nil {
		return zero, fmt.Errorf("persistqueue: read record: %w", err)
	}
	q.tail = q.rollTail(next)
	q.size--

	if q.opts.Autosave {
		// Get is a durability point regardless of FsyncPolicy: once the
		// tail has advanced past a record, nothing else will ever flush
		// the bytes it points at, so they must be durable before the info
		// record that claims the tail has passed them.
		if err := q.chunks.Flush(true); err != nil {
			q.tail, q.size = prevTail, prevSize
			return zero, fmt.Errorf("persistqueue: flush before autosave: %w", err)
		}
		if err := q.saveInfoLocked(true); err != nil {
			q.tail, q.size = prevTail, prevSize
			return zero, err
		}
	}

	q.tasks.Inc()
	q.notFull.Broadcast()

	item, err := q.opts.Serializer.Decode(payload)
	if err != nil {
		return zero, fmt.Errorf("persistqueue: decode item: %w", err)
	}
	q.metrics.observeGet(start)
	return item, nil
}

// Ack confirms the oldest outstanding item delivered by Get is done. Under
// Autosave=false this is also when the tail advancement becomes durable.
func (q *Queue[T]) Ack() error {
	start := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	if err := q.tasks.Dec(); err != nil {
		return err
	}

	if !q.opts.Autosave {
		// Ack is the designated durability point under FsyncOnAck: the
		// tail advancement recorded by the Get(s) this Ack covers is
		// about to become durable, so the bytes it points at must be
		// durable first, regardless of FsyncPolicy.
		if err := q.chunks.Flush(true); err != nil {
			return fmt.Errorf("persistqueue: flush before ack: %w", err)
		}
		if err := q.saveInfoLocked(true); err != nil {
			return err
		}
	}

	q.metrics.observeAck(start)
	return nil
}

// Join blocks until every item delivered by Get has been Ack'd, or ctx is
// done.
func (q *Queue[T]) Join(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Join(ctx)
}

// Size returns the number of items currently stored but not yet Get.
func (q *Queue[T]) Size() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Empty reports whether Size is zero.
func (q *Queue[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size == 0
}

// Full reports whether the queue is at MaxSize. Always false when MaxSize
// is zero (unbounded).
func (q *Queue[T]) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.opts.MaxSize > 0 && q.size >= q.opts.MaxSize
}

// Close flushes the head chunk, persists the final info snapshot, and
// releases every held resource. It is idempotent: calling Close again
// returns nil. It always releases what it can, returning the first error
// encountered.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true

	var firstErr error
	if err := q.chunks.Flush(true); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := q.saveInfoLocked(true); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := q.chunks.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
	q.mu.Unlock()

	if err := q.dlock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	globalRegistry.release(q.canonPath)

	return firstErr
}
