//go:build unix || linux || darwin || freebsd || openbsd || netbsd

package persistqueue

import (
	"os"
	"syscall"
)

// sameFilesystem reports whether a and b live on the same device, so
// TempDir's atomic rename into Path is guaranteed atomic. ok is false if
// the check could not be performed (caller should treat that as
// "unknown, proceed best-effort").
func sameFilesystem(a, b string) (same bool, ok bool) {
	fa, err := os.Stat(a)
	if err != nil {
		return false, false
	}
	fb, err := os.Stat(b)
	if err != nil {
		return false, false
	}
	sa, aok := fa.Sys().(*syscall.Stat_t)
	sb, bok := fb.Sys().(*syscall.Stat_t)
	if !aok || !bok {
		return false, false
	}
	return sa.Dev == sb.Dev, true
}
