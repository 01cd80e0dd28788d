package persistqueue

import (
	"errors"
	"fmt"

	"github.com/peter-wangxu/persist-queue/internal/metadata"
	"github.com/peter-wangxu/persist-queue/internal/tracker"
)

var (
	// ErrEmpty is returned by Get in non-blocking mode, or past its
	// timeout, when the queue holds no items.
	ErrEmpty = errors.New("persistqueue: queue is empty")

	// ErrFull is returned by Put in non-blocking mode, or past its
	// timeout, when the queue is at MaxSize.
	ErrFull = errors.New("persistqueue: queue is full")

	// ErrConfigMismatch is returned when opening an existing queue
	// directory with an incompatible ChunkSize or serializer version.
	ErrConfigMismatch = metadata.ErrConfigMismatch

	// ErrProgrammingError is returned by Ack when called with no
	// outstanding items; ErrClosed also matches it under errors.Is.
	ErrProgrammingError = tracker.ErrProgrammingError

	// ErrClosed is returned by Put, Get and Ack on a closed queue. It is
	// a programming error: errors.Is(ErrClosed, ErrProgrammingError) holds.
	ErrClosed error = closedError{}

	// ErrChunkSizeMismatch is returned when reopening a queue directory
	// whose info record was written with a different ChunkSize. It wraps
	// ErrConfigMismatch: both are the same class of failure (the on-disk
	// directory is incompatible with the Options it's being opened with),
	// so errors.Is(err, ErrConfigMismatch) must see a chunksize mismatch
	// too, not just a serializer version mismatch.
	ErrChunkSizeMismatch = fmt.Errorf("persistqueue: chunksize does not match the value the queue directory was created with: %w", ErrConfigMismatch)

	// ErrAlreadyOpen is returned when opening a queue directory that
	// already has an open handle, in this process or (best-effort) in
	// another one.
	ErrAlreadyOpen = errors.New("persistqueue: queue directory already has an open handle")
)

type closedError struct{}

func (closedError) Error() string { return "persistqueue: queue is closed" }

func (closedError) Is(target error) bool { return target == ErrProgrammingError }
