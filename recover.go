package persistqueue

import (
	"errors"
	"os"

	"github.com/peter-wangxu/persist-queue/internal/chunk"
)

// recoverPositions implements the §4.3 recovery protocol for an existing
// queue directory: truncate any torn write left at the head chunk's
// recorded offset (mirroring the Python original's unconditional
// head-file truncation on open), and — only if the loaded info record
// points at a chunk that no longer exists on disk — recompute tail/head/
// size from on-disk reality by scanning forward from the lowest present
// chunk.
func recoverPositions(mgr *chunk.Manager, info *infoSnapshot, chunkSize int64) error {
	headPath := mgr.ChunkPath(info.head.ChunkID)
	if _, err := os.Stat(headPath); err == nil {
		if err := mgr.TruncateHead(info.head.Offset); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if info.size == 0 {
		return nil
	}

	tailPath := mgr.ChunkPath(info.tail.ChunkID)
	if _, err := os.Stat(tailPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	// The tail's chunk is gone: the recorded pointers can no longer be
	// trusted. Recompute by walking on-disk records from the lowest
	// surviving chunk — a degraded, best-effort path (see DESIGN.md);
	// it is only reached when the directory was already inconsistent
	// beyond an ordinary crash.
	ids, err := mgr.ExistingChunkIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		info.tail = chunk.Position{}
		info.head = chunk.Position{}
		info.size = 0
		return nil
	}

	tail, head, size, err := scanForward(mgr, ids[0], chunkSize)
	if err != nil {
		return err
	}
	info.tail = tail
	info.head = head
	info.size = size
	return nil
}

// scanForward walks every record from the start of chunk lowest to the end
// of on-disk data, rolling across chunk boundaries by record count exactly
// as Append does, and stops at the first torn record (including a missing
// next chunk file, which ReadAt also reports as torn).
func scanForward(mgr *chunk.Manager, lowest, chunkSize int64) (tail, head chunk.Position, size int64, err error) {
	tail = chunk.Position{ChunkID: lowest}
	pos := tail
	for {
		_, _, next, rerr := mgr.ReadAt(pos)
		if rerr != nil {
			if errors.Is(rerr, chunk.ErrTornRecord) {
				break
			}
			return chunk.Position{}, chunk.Position{}, 0, rerr
		}
		size++
		if next.Count >= chunkSize {
			pos = chunk.Position{ChunkID: next.ChunkID + 1}
		} else {
			pos = next
		}
	}
	return tail, pos, size, nil
}

// infoSnapshot is the mutable working copy of the loaded info record used
// only during New's recovery sequence.
type infoSnapshot struct {
	head, tail chunk.Position
	size       int64
}
