// Package lockfile provides the per-workspace advisory lock that serializes
// all writing cadence jobs. The lock is an OS-level flock, so it is released
// by the kernel on any exit path including crashes.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"clawmem/internal/logging"
)

// Guard holds an acquired lock until Release is called.
type Guard struct {
	fl   *flock.Flock
	path string
}

// Acquire attempts a non-blocking exclusive lock on the named file. The
// second return value reports whether the lock was obtained; contention is
// not an error. Callers that fail to acquire should log skipped=lock_held
// and exit 0.
func Acquire(path string) (*Guard, bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		logging.Lock("contention on %s", path)
		return nil, false, nil
	}
	logging.LockDebug("acquired %s", path)
	return &Guard{fl: fl, path: path}, true, nil
}

// Release drops the lock. Safe to call on a nil guard.
func (g *Guard) Release() {
	if g == nil || g.fl == nil {
		return
	}
	if err := g.fl.Unlock(); err != nil {
		logging.Get(logging.CategoryLock).Error("unlock %s: %v", g.path, err)
		return
	}
	logging.LockDebug("released %s", g.path)
}
