package store

import (
	"context"
	"time"

	"github.com/gofrs/flock"
)

// FileLock is a cross-process exclusive lock
type FileLock interface {
	// TryLockContext retries every retryInterval until the lock is held or
	// ctx is done
	TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)

	// Unlock releases the lock
	Unlock() error
}

// FileLockFactory creates the lock guarding a data file
type FileLockFactory interface {
	New(path string) FileLock
}

// FlockFactory creates locks backed by github.com/gofrs/flock
type FlockFactory struct{}

// New implements FileLockFactory.New
func (FlockFactory) New(path string) FileLock {
	return flock.New(path)
}
