// Package proclock guards against running two bot instances at once. A pid
// file records the owner; a lock whose process is gone counts as stale and
// is taken over.
package proclock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Lock is a held pid-file lock.
type Lock struct {
	path string
	pid  int
}

// Acquire takes the pid-file lock at path. If the file exists and its pid
// still belongs to a live process, Acquire fails; a stale file is replaced.
func Acquire(path string) (*Lock, error) {
	pid := os.Getpid()

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			if _, werr := fmt.Fprintf(f, "%d\n", pid); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, fmt.Errorf("proclock: write %s: %w", path, werr)
			}
			if cerr := f.Close(); cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("proclock: close %s: %w", path, cerr)
			}
			return &Lock{path: path, pid: pid}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("proclock: create %s: %w", path, err)
		}

		owner, rerr := readPID(path)
		if rerr == nil && processAlive(owner) {
			return nil, fmt.Errorf("proclock: another instance is running (pid %d, lock %s)", owner, path)
		}
		// Unreadable or dead owner: the lock is stale.
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("proclock: remove stale lock %s: %w", path, rmErr)
		}
	}
	return nil, fmt.Errorf("proclock: could not acquire %s", path)
}

// Release removes the pid file. Releasing a lock that was already taken
// over by another process leaves the newer lock alone.
func (l *Lock) Release() error {
	owner, err := readPID(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("proclock: release %s: %w", l.path, err)
	}
	if owner != l.pid {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("proclock: release %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("proclock: malformed pid file %s: %w", path, err)
	}
	return pid, nil
}

// processAlive reports whether a process with the given pid exists. Signal 0
// performs the existence check without delivering anything.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
