//go:build !linux

// Package filelock serializes access to shared on-disk state across processes.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// mutexes holds one in-process mutex per lock path. Without flock this is the
// best available protection: concurrent goroutines are serialized, separate
// processes are not.
var mutexes sync.Map

// Lock is the in-process fallback used where flock is unavailable.
type Lock struct {
	mu *sync.Mutex
}

// Acquire creates the lock file at path and blocks until the per-path
// mutex is held.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	_ = f.Close()

	v, _ := mutexes.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return &Lock{mu: mu}, nil
}

// Release unlocks the mutex. Subsequent calls are no-ops.
func (l *Lock) Release() error {
	if l == nil || l.mu == nil {
		return nil
	}
	l.mu.Unlock()
	l.mu = nil
	return nil
}
