package persistqueue

import "github.com/peter-wangxu/persist-queue/serializers"

// FsyncPolicy controls when the info record is durably fsynced, resolving
// SPEC_FULL.md open question (b): the rewrite makes this an explicit,
// documented knob with a safe default.
type FsyncPolicy int

const (
	// FsyncOnPut fsyncs both the head chunk and the info record on every
	// successful Put — the safe default. A crash can redeliver at most
	// the items in flight since the last Ack, never lose an acknowledged
	// Put.
	FsyncOnPut FsyncPolicy = iota

	// FsyncOnAck defers the fsync of a Put's own bytes and info record,
	// letting them ride on whatever later, always-durable commit point
	// catches them up: Ack (or Get itself, under Autosave) fsyncs the
	// head chunk first and only then the info record, so the info record
	// never claims durability of bytes that are not durable yet. Higher
	// throughput for bursty producers; widens the window of items that
	// can be redelivered after a crash to everything written since the
	// last Ack.
	FsyncOnAck
)

// Options configures a Queue[T]. The zero value is not directly usable;
// start from DefaultOptions and override fields.
type Options[T any] struct {
	// Path is the queue directory. Created if it doesn't exist.
	Path string

	// MaxSize is the soft cap on the number of items the queue will
	// hold. Zero means unbounded.
	MaxSize int64

	// ChunkSize is the number of records per chunk file. Must be
	// positive.
	ChunkSize int64

	// TempDir stages the atomic-rename temp file for the info record.
	// Must reside on the same filesystem as Path; left empty, temp
	// files are staged alongside the info record itself.
	TempDir string

	// Serializer encodes and decodes items. Defaults to serializers.Gob[T].
	Serializer Serializer[T]

	// Autosave, when true, makes Get durably advance the tail
	// immediately (at-most-once across a restart). When false (the
	// default), tail advancement is deferred to Ack (at-least-once
	// across a restart, with redelivery).
	Autosave bool

	// FsyncPolicy controls when the info record is fsynced. Defaults to
	// FsyncOnPut.
	FsyncPolicy FsyncPolicy

	// Logger receives leveled diagnostic output. Defaults to a
	// *log.Logger writing warnings and errors to stderr.
	Logger Logger

	// LogLevel is the minimum level Logger receives. Defaults to LogWarn.
	LogLevel LogLevel

	// MetricsInterval is how many Put/Get/Ack samples opMetrics averages
	// over before logging. Zero or a negative value is replaced by 1000;
	// periodic metrics logging cannot be turned off.
	MetricsInterval int
}

// DefaultOptions returns the baseline configuration: unbounded size,
// 100 records per chunk, Gob serialization, fsync-on-put, autosave off.
func DefaultOptions[T any](path string) Options[T] {
	return Options[T]{
		Path:            path,
		MaxSize:         0,
		ChunkSize:       100,
		Serializer:      serializers.NewGob[T](),
		Autosave:        false,
		FsyncPolicy:     FsyncOnPut,
		LogLevel:        LogWarn,
		MetricsInterval: 1000,
	}
}

func (o *Options[T]) setDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 100
	}
	if o.Serializer == nil {
		o.Serializer = serializers.NewGob[T]()
	}
	if o.Logger == nil {
		o.Logger = defaultLogger()
	}
	if o.MetricsInterval <= 0 {
		o.MetricsInterval = 1000
	}
}
