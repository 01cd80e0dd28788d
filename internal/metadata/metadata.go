// Package metadata persists the small, fixed-schema info record that
// describes where a persist-queue directory's head and tail cursors sit.
// Every write goes through the atomic temp-file-then-rename protocol so a
// reader never observes a half-written snapshot.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blang/semver"
)

const (
	// FileName is the canonical info record's filename within the queue
	// directory.
	FileName = "info"
	// prevFileName is the one-generation-behind journal kept as a
	// best-effort fallback on platforms where directory rename is not
	// atomic.
	prevFileName = "info.prev"
)

// ErrConfigMismatch is returned when an existing queue directory's stored
// serializer version is incompatible with the version range the caller's
// serializer declares it can read.
var ErrConfigMismatch = errors.New("metadata: serializer version mismatch")

// Codec encodes and decodes an Info snapshot. The queue facade passes its
// own JSON codec (jsonInfoCodec), not the Serializer it uses for items:
// the info record's wire format is an implementation detail, not a public
// protocol.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(b []byte, v interface{}) error
}

// Info is the on-disk snapshot of a queue's head and tail cursors.
type Info struct {
	HeadChunk  int64
	HeadOffset int64
	HeadCount  int64

	TailChunk  int64
	TailOffset int64
	TailCount  int64

	Size int64

	// ChunkSize is the records-per-chunk the directory was created
	// with. A later open with a different ChunkSize is a configuration
	// mismatch (spec §7): chunk boundaries on disk are meaningless
	// under a different roll threshold.
	ChunkSize int64

	SerializerVersion string
}

// Store manages atomic reads and writes of a single queue directory's info
// record.
type Store struct {
	dir      string
	tempDir  string
	codec    Codec
	infoPath string
	prevPath string
}

// Open returns a Store rooted at dir. If tempDir is empty, temp files are
// staged alongside the info record itself.
func Open(dir, tempDir string, codec Codec) *Store {
	return &Store{
		dir:      dir,
		tempDir:  tempDir,
		codec:    codec,
		infoPath: filepath.Join(dir, FileName),
		prevPath: filepath.Join(dir, prevFileName),
	}
}

// Load reads the current info record. The second return value is false if
// no info record has ever been written (a brand new queue directory).
func (s *Store) Load() (Info, bool, error) {
	data, err := os.ReadFile(s.infoPath)
	if err == nil {
		var info Info
		if derr := s.codec.Decode(data, &info); derr == nil {
			return info, true, nil
		}
		// Canonical record is present but unreadable (torn write that
		// survived a non-atomic rename on a legacy platform); fall back
		// to the one-generation-behind journal rather than lose state.
	} else if !os.IsNotExist(err) {
		return Info{}, false, fmt.Errorf("metadata: read info record: %w", err)
	}

	prev, perr := os.ReadFile(s.prevPath)
	if perr != nil {
		if os.IsNotExist(perr) {
			return Info{}, false, nil
		}
		return Info{}, false, fmt.Errorf("metadata: read info journal: %w", perr)
	}
	var info Info
	if derr := s.codec.Decode(prev, &info); derr != nil {
		return Info{}, false, fmt.Errorf("metadata: decode info journal: %w", derr)
	}
	return info, true, nil
}

// Save atomically replaces the info record: serialize -> write temp file ->
// (if durable) flush+fsync -> rename over the canonical filename. On
// success it also best-effort advances the info.prev journal to hold what
// was canonical immediately before this call.
//
// durable controls only whether the temp file is fsynced before the
// rename; the rename itself always happens, so the canonical file is
// always replaced atomically — durable just decides whether that
// replacement is guaranteed to survive a crash immediately, or is allowed
// to ride along until a later durable Save catches it up. Callers that
// pass durable=true are responsible for having already made durable
// whatever on-disk bytes this Info's head/tail point at: Save only
// protects the info record itself, never the data it references.
func (s *Store) Save(info Info, durable bool) error {
	data, err := s.codec.Encode(info)
	if err != nil {
		return fmt.Errorf("metadata: encode info record: %w", err)
	}

	previous, _ := os.ReadFile(s.infoPath)

	tmp, err := s.tempFile()
	if err != nil {
		return fmt.Errorf("metadata: create temp info file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("metadata: write temp info file: %w", err)
	}
	if durable {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("metadata: fsync temp info file: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("metadata: close temp info file: %w", err)
	}

	if err := os.Rename(tmpName, s.infoPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("metadata: rename info record into place: %w", err)
	}

	if previous != nil {
		// Best effort: losing this write only narrows the journal
		// fallback window, it never corrupts the canonical record.
		_ = os.WriteFile(s.prevPath, previous, 0644)
	}

	return nil
}

func (s *Store) tempFile() (*os.File, error) {
	dir := s.tempDir
	if dir == "" {
		dir = s.dir
	}
	return os.CreateTemp(dir, filepath.Base(s.infoPath)+".*.tmp")
}

// CheckSerializerVersion verifies that storedVersion (loaded from an
// existing queue directory) satisfies the compatibility range a
// serializer declares for itself. An empty storedVersion (brand new
// queue) always succeeds.
func CheckSerializerVersion(compatRange, storedVersion string) error {
	if storedVersion == "" {
		return nil
	}
	v, err := semver.Parse(storedVersion)
	if err != nil {
		return fmt.Errorf("%w: stored version %q is not valid semver: %v", ErrConfigMismatch, storedVersion, err)
	}
	r, err := semver.ParseRange(compatRange)
	if err != nil {
		return fmt.Errorf("metadata: invalid serializer compatibility range %q: %w", compatRange, err)
	}
	if !r(v) {
		return fmt.Errorf("%w: stored version %s is not in range %q", ErrConfigMismatch, v, compatRange)
	}
	return nil
}
