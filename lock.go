package persistqueue

// dirLock is an OS-level advisory lock scoped to a queue directory,
// backing the Design Notes requirement that at most one open handle
// exists per directory — opportunistically across processes, always
// within this one via the registry in registry.go.
type dirLock interface {
	// TryLock acquires the lock without blocking, returning false if
	// another holder already has it.
	TryLock() (bool, error)
	// Unlock releases the lock. Safe to call multiple times.
	Unlock() error
}
