package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/dvloznov/budget-backend/internal/apperr"
)

// DefaultLockWait bounds how long a writer waits for the cross-process lock
// before failing with lock contention.
const DefaultLockWait = 5 * time.Second

// WriterLock serializes all collection writers across processes through an
// advisory lock on a marker file in the data directory. A second server
// instance pointed at the same directory blocks here, never interleaves.
type WriterLock struct {
	fl   *flock.Flock
	wait time.Duration
}

// NewWriterLock creates a lock on path with the given bounded wait.
// A non-positive wait falls back to DefaultLockWait.
func NewWriterLock(path string, wait time.Duration) *WriterLock {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &WriterLock{fl: flock.New(path), wait: wait}
}

// Acquire takes the exclusive lock, waiting up to the bounded wait. It fails
// with lock contention rather than blocking indefinitely.
func (l *WriterLock) Acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.fl.Path()), 0o755); err != nil {
		return apperr.IO("could not create lock directory", err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ok, err := l.fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil && ctx.Err() == nil {
		return apperr.IO("could not acquire writer lock", err)
	}
	if !ok {
		return apperr.LockContention(
			fmt.Sprintf("another writer holds the lock at %s", l.fl.Path()))
	}
	return nil
}

// Release drops the lock. Safe to call when not held.
func (l *WriterLock) Release() error {
	return l.fl.Unlock()
}

// Path returns the lock marker path.
func (l *WriterLock) Path() string { return l.fl.Path() }
