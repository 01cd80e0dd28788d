// Package tracker holds the in-memory, never-persisted bookkeeping for
// items handed out by Get but not yet confirmed by Ack: the outstanding
// counter and the join barrier condition tied to it.
package tracker

import (
	"context"
	"errors"
	"sync"
)

// ErrProgrammingError is raised when Ack is called with no outstanding
// items — a caller bug, not a recoverable runtime condition.
var ErrProgrammingError = errors.New("tracker: ack called with no outstanding items")

// Tracker counts items delivered by Get but not yet Ack-confirmed, and
// exposes a join barrier that clears whenever that count reaches zero.
//
// Tracker shares its mutex with the rest of the queue facade: callers must
// hold the queue's lock across both the Get/Ack state transition and the
// corresponding Inc/Dec call, exactly as the Python original's
// all_tasks_done condition variable is guarded by the same lock as
// not_full/not_empty.
type Tracker struct {
	mu          sync.Locker
	allAcked    *sync.Cond
	outstanding int64
}

// New returns a Tracker guarded by mu. mu must be the same lock the caller
// holds around Get and Ack.
func New(mu sync.Locker) *Tracker {
	return &Tracker{mu: mu, allAcked: sync.NewCond(mu)}
}

// Inc records one more outstanding item. Callers must hold the shared lock.
func (t *Tracker) Inc() {
	t.outstanding++
}

// Dec confirms one outstanding item is done. Callers must hold the shared
// lock. It returns ErrProgrammingError, without mutating state, if nothing
// was outstanding.
func (t *Tracker) Dec() error {
	if t.outstanding == 0 {
		return ErrProgrammingError
	}
	t.outstanding--
	if t.outstanding == 0 {
		t.allAcked.Broadcast()
	}
	return nil
}

// Outstanding returns the current outstanding count. Callers must hold the
// shared lock.
func (t *Tracker) Outstanding() int64 {
	return t.outstanding
}

// Join blocks until Outstanding is zero or ctx is done. Callers must hold
// the shared lock on entry; Join releases it while waiting and reacquires
// it before returning, matching sync.Cond.Wait's contract.
func (t *Tracker) Join(ctx context.Context) error {
	if t.outstanding == 0 {
		return nil
	}

	done := make(chan struct{})
	defer close(done)
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				t.allAcked.Broadcast()
			case <-done:
			}
		}()
	}

	for t.outstanding != 0 {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		t.allAcked.Wait()
	}
	return nil
}
