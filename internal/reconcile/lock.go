package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrLocked means another netban invocation holds the reconcile lock.
var ErrLocked = fmt.Errorf("another netban instance is running")

// flock guards the reconcile critical section against concurrent
// invocations. One lock file under the run dir, holder pid inside; a lock
// whose pid is gone is stale and gets replaced.
type flock struct {
	path string
}

func newLock(runDir string) *flock {
	return &flock{path: filepath.Join(runDir, "netban.lock")}
}

func (l *flock) acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			return f.Close()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("creating lock file: %w", err)
		}
		if l.holderAlive() {
			return fmt.Errorf("%w (lock: %s)", ErrLocked, l.path)
		}
		// stale lock from a crashed run
		_ = os.Remove(l.path)
	}
	return fmt.Errorf("%w (lock: %s)", ErrLocked, l.path)
}

func (l *flock) release() {
	_ = os.Remove(l.path)
}

func (l *flock) holderAlive() bool {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return false
	}
	// signal 0 probes for existence
	return syscall.Kill(pid, 0) == nil
}
