package persistqueue

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tempQueueDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// crashClose simulates a process crash: it releases the in-process and
// OS-level locks without running Close's final flush/save, so whatever was
// durably persisted before this call is exactly what a reopen will see.
func crashClose[T any](q *Queue[T]) {
	globalRegistry.release(q.canonPath)
	_ = q.dlock.Unlock()
}

func smallOptions[T any](dir string, chunkSize int64) Options[T] {
	opts := DefaultOptions[T](dir)
	opts.ChunkSize = chunkSize
	return opts
}

func TestPutGetAckRoundTripPreservesOrder(t *testing.T) {
	dir := tempQueueDir(t)
	q, err := New(DefaultOptions[string](dir))
	require.NoError(t, err)
	defer q.Close()

	want := []string{"a", "b", "c", "d"}
	for _, w := range want {
		require.NoError(t, q.Put(w))
	}
	require.Equal(t, int64(len(want)), q.Size())

	for _, w := range want {
		got, err := q.Get()
		require.NoError(t, err)
		require.Equal(t, w, got)
		require.NoError(t, q.Ack())
	}
	require.True(t, q.Empty())
}

func TestRestartAcrossChunksPreservesOrder(t *testing.T) {
	dir := tempQueueDir(t)
	opts := smallOptions[int](dir, 2)

	q, err := New(opts)
	require.NoError(t, err)
	for i := 0; i < 9; i++ {
		require.NoError(t, q.Put(i))
	}
	require.NoError(t, q.Close())

	q2, err := New(opts)
	require.NoError(t, err)
	defer q2.Close()

	for i := 0; i < 9; i++ {
		got, err := q2.Get()
		require.NoError(t, err)
		require.Equal(t, i, got)
		require.NoError(t, q2.Ack())
	}
	require.True(t, q2.Empty())
}

func TestAtLeastOnceRedeliveryWithoutAutosave(t *testing.T) {
	dir := tempQueueDir(t)
	opts := DefaultOptions[string](dir)
	opts.Autosave = false

	q, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, q.Put("only-item"))

	got, err := q.Get()
	require.NoError(t, err)
	require.Equal(t, "only-item", got)
	// Crash before Ack: the tail advance made by Get was never persisted.
	crashClose(q)

	q2, err := New(opts)
	require.NoError(t, err)
	defer q2.Close()

	redelivered, err := q2.Get()
	require.NoError(t, err)
	require.Equal(t, "only-item", redelivered)
	require.NoError(t, q2.Ack())
}

func TestExactlyOnceOnRestartWithAutosave(t *testing.T) {
	dir := tempQueueDir(t)
	opts := DefaultOptions[string](dir)
	opts.Autosave = true

	q, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, q.Put("only-item"))

	got, err := q.Get()
	require.NoError(t, err)
	require.Equal(t, "only-item", got)
	// Crash before Ack: under Autosave the tail advance from Get was
	// already durable, so this item must not come back.
	crashClose(q)

	q2, err := New(opts)
	require.NoError(t, err)
	defer q2.Close()

	require.True(t, q2.Empty())
	_, err = q2.Get(GetWithNoBlock())
	require.ErrorIs(t, err, ErrEmpty)
}

func TestBoundedQueueAppliesBackpressure(t *testing.T) {
	dir := tempQueueDir(t)
	opts := DefaultOptions[int](dir)
	opts.MaxSize = 1

	q, err := New(opts)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Put(1))
	require.True(t, q.Full())

	require.ErrorIs(t, q.Put(2, WithNoBlock()), ErrFull)

	done := make(chan error, 1)
	go func() {
		done <- q.Put(2, WithTimeout(2*time.Second))
	}()

	select {
	case err := <-done:
		t.Fatalf("Put returned before space was freed: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	_, err = q.Get()
	require.NoError(t, err)
	require.NoError(t, q.Ack())

	require.NoError(t, <-done)
}

func TestGetOnEmptyQueueHonorsTimeout(t *testing.T) {
	dir := tempQueueDir(t)
	q, err := New(DefaultOptions[int](dir))
	require.NoError(t, err)
	defer q.Close()

	start := time.Now()
	_, err = q.Get(GetWithTimeout(30 * time.Millisecond))
	require.ErrorIs(t, err, ErrEmpty)
	require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestGetOnEmptyQueueNoBlockReturnsImmediately(t *testing.T) {
	dir := tempQueueDir(t)
	q, err := New(DefaultOptions[int](dir))
	require.NoError(t, err)
	defer q.Close()

	_, err = q.Get(GetWithNoBlock())
	require.ErrorIs(t, err, ErrEmpty)
}

func TestAckPastZeroIsProgrammingError(t *testing.T) {
	dir := tempQueueDir(t)
	q, err := New(DefaultOptions[int](dir))
	require.NoError(t, err)
	defer q.Close()

	require.ErrorIs(t, q.Ack(), ErrProgrammingError)
}

func TestJoinReturnsImmediatelyWhenNothingOutstanding(t *testing.T) {
	dir := tempQueueDir(t)
	q, err := New(DefaultOptions[int](dir))
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Join(ctx))
}

func TestJoinReturnsAfterConcurrentConsumersAckEverything(t *testing.T) {
	dir := tempQueueDir(t)
	q, err := New(DefaultOptions[int](dir))
	require.NoError(t, err)
	defer q.Close()

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, q.Put(i))
	}

	var wg sync.WaitGroup
	for c := 0; c < 5; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := q.Get(GetWithNoBlock())
				if err != nil {
					return
				}
				_ = item
				require.NoError(t, q.Ack())
			}
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Join(ctx))
}

func TestManyProducersSingleConsumerPreservesCount(t *testing.T) {
	dir := tempQueueDir(t)
	q, err := New(DefaultOptions[int](dir))
	require.NoError(t, err)
	defer q.Close()

	const producers = 8
	const perProducer = 25
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				require.NoError(t, q.Put(p*perProducer+i))
			}
		}(p)
	}
	wg.Wait()

	seen := map[int]bool{}
	for i := 0; i < producers*perProducer; i++ {
		item, err := q.Get()
		require.NoError(t, err)
		require.False(t, seen[item], "item %d delivered twice", item)
		seen[item] = true
		require.NoError(t, q.Ack())
	}
	require.Len(t, seen, producers*perProducer)
}

func TestSingleProducerManyConsumersNoDuplication(t *testing.T) {
	dir := tempQueueDir(t)
	q, err := New(DefaultOptions[int](dir))
	require.NoError(t, err)
	defer q.Close()

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, q.Put(i))
	}

	var mu sync.Mutex
	seen := map[int]int{}
	var wg sync.WaitGroup
	for c := 0; c < 10; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := q.Get(GetWithNoBlock())
				if err != nil {
					return
				}
				mu.Lock()
				seen[item]++
				mu.Unlock()
				require.NoError(t, q.Ack())
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for item, count := range seen {
		require.Equal(t, 1, count, "item %d delivered %d times", item, count)
	}
}

func TestMaxSizeZeroIsUnbounded(t *testing.T) {
	dir := tempQueueDir(t)
	opts := DefaultOptions[int](dir)
	opts.MaxSize = 0

	q, err := New(opts)
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 1000; i++ {
		require.NoError(t, q.Put(i, WithNoBlock()))
	}
	require.False(t, q.Full())
}

func TestChunkSizeOneRollsEveryRecord(t *testing.T) {
	dir := tempQueueDir(t)
	opts := smallOptions[int](dir, 1)

	q, err := New(opts)
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Put(i))
	}
	ids, err := q.chunks.ExistingChunkIDs()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(ids), 5)

	for i := 0; i < 5; i++ {
		got, err := q.Get()
		require.NoError(t, err)
		require.Equal(t, i, got)
		require.NoError(t, q.Ack())
	}
}

func TestReopenDetectsChunkSizeMismatch(t *testing.T) {
	dir := tempQueueDir(t)
	q, err := New(smallOptions[int](dir, 4))
	require.NoError(t, err)
	require.NoError(t, q.Put(1))
	require.NoError(t, q.Close())

	_, err = New(smallOptions[int](dir, 8))
	require.ErrorIs(t, err, ErrChunkSizeMismatch)
}

func TestOpeningTheSameDirectoryTwiceFails(t *testing.T) {
	dir := tempQueueDir(t)
	q, err := New(DefaultOptions[int](dir))
	require.NoError(t, err)
	defer q.Close()

	_, err = New(DefaultOptions[int](dir))
	require.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := tempQueueDir(t)
	q, err := New(DefaultOptions[int](dir))
	require.NoError(t, err)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
}

func TestOperationsAfterCloseReturnErrClosed(t *testing.T) {
	dir := tempQueueDir(t)
	q, err := New(DefaultOptions[int](dir))
	require.NoError(t, err)
	require.NoError(t, q.Put(1))
	require.NoError(t, q.Close())

	require.ErrorIs(t, q.Put(2), ErrClosed)
	_, err = q.Get()
	require.ErrorIs(t, err, ErrClosed)
}

func TestTornWriteInHeadChunkIsRecoveredOnReopen(t *testing.T) {
	dir := tempQueueDir(t)
	opts := DefaultOptions[string](dir)

	q, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, q.Put("intact"))
	require.NoError(t, q.Close())

	headPath := q.chunks.ChunkPath(0)

	// Simulate a crash partway through a second Put: bytes land on disk
	// (a length prefix claiming more payload than follows it) but the
	// info record was never advanced past the first, complete record.
	f, err := os.OpenFile(headPath, os.O_RDWR|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0, 0, 0, 100, 'x'})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	q2, err := New(opts)
	require.NoError(t, err)
	defer q2.Close()

	require.Equal(t, int64(1), q2.Size())
	got, err := q2.Get()
	require.NoError(t, err)
	require.Equal(t, "intact", got)
	require.NoError(t, q2.Ack())
}

func TestFsyncOnAckAckIsStillADurableCommitPoint(t *testing.T) {
	dir := tempQueueDir(t)
	opts := DefaultOptions[string](dir)
	opts.Autosave = false
	opts.FsyncPolicy = FsyncOnAck

	q, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, q.Put("only-item"))

	got, err := q.Get()
	require.NoError(t, err)
	require.Equal(t, "only-item", got)
	require.NoError(t, q.Ack())
	// Crash right after Ack returns: even under FsyncOnAck, Ack must have
	// durably flushed both the tail advance and the info record that
	// records it, so this item must not come back on reopen.
	crashClose(q)

	q2, err := New(opts)
	require.NoError(t, err)
	defer q2.Close()

	require.True(t, q2.Empty())
	_, err = q2.Get(GetWithNoBlock())
	require.ErrorIs(t, err, ErrEmpty)
}

func TestFsyncOnAckRedeliversUnackedItemAfterCrash(t *testing.T) {
	dir := tempQueueDir(t)
	opts := DefaultOptions[string](dir)
	opts.Autosave = false
	opts.FsyncPolicy = FsyncOnAck

	q, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, q.Put("first"))
	require.NoError(t, q.Put("second"))

	got, err := q.Get()
	require.NoError(t, err)
	require.Equal(t, "first", got)
	// Crash before Ack: under FsyncOnAck the tail advance from Get was
	// never made durable, so the item is redelivered on reopen exactly as
	// it would be under the default FsyncOnPut policy.
	crashClose(q)

	q2, err := New(opts)
	require.NoError(t, err)
	defer q2.Close()

	redelivered, err := q2.Get()
	require.NoError(t, err)
	require.Equal(t, "first", redelivered)
	require.NoError(t, q2.Ack())

	second, err := q2.Get()
	require.NoError(t, err)
	require.Equal(t, "second", second)
	require.NoError(t, q2.Ack())
}
