package proclock

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "smetabot.pid")
}

func TestAcquire_WritesOwnPID(t *testing.T) {
	path := lockPath(t)
	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parse pid: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
}

func TestAcquire_FailsWhileHeld(t *testing.T) {
	path := lockPath(t)
	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	// This process is alive, so its own lock blocks a second acquisition.
	if _, err := Acquire(path); err == nil {
		t.Fatal("second Acquire should fail while the lock is held")
	}
}

func TestAcquire_TakesOverStaleLock(t *testing.T) {
	path := lockPath(t)
	// A pid far beyond pid_max cannot belong to a live process.
	if err := os.WriteFile(path, []byte("999999999\n"), 0o644); err != nil {
		t.Fatalf("write stale lock: %v", err)
	}

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire over stale lock: %v", err)
	}
	defer lock.Release()

	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock pid = %q, want own pid", strings.TrimSpace(string(data)))
	}
}

func TestAcquire_TakesOverMalformedLock(t *testing.T) {
	path := lockPath(t)
	if err := os.WriteFile(path, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatalf("write malformed lock: %v", err)
	}
	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire over malformed lock: %v", err)
	}
	lock.Release()
}

func TestRelease_RemovesFile(t *testing.T) {
	path := lockPath(t)
	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file survived Release")
	}
	// Releasing twice is harmless.
	if err := lock.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestRelease_LeavesForeignLockAlone(t *testing.T) {
	path := lockPath(t)
	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Simulate a takeover by another process.
	if err := os.WriteFile(path, []byte("999999999\n"), 0o644); err != nil {
		t.Fatalf("overwrite lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("Release removed a lock it no longer owned")
	}
}
