package storage

import (
	"sync"
)

// OperationType defines whether an operation is read or write
type OperationType int

const (
	// ReadOperation may run concurrently with other reads
	ReadOperation OperationType = iota

	// WriteOperation is exclusive
	WriteOperation
)

// LockManager centralizes the read/write locking of a collection so that
// every operation takes the right lock exactly once.
type LockManager struct {
	mu sync.RWMutex
}

// NewLockManager creates a new lock manager instance
func NewLockManager() *LockManager {
	return &LockManager{}
}

// Execute runs fn holding a read or write lock depending on opType.
//
//	err := lm.Execute(storage.WriteOperation, func() error {
//	    // exclusive access
//	    return nil
//	})
func (lm *LockManager) Execute(opType OperationType, fn func() error) error {
	lm.lock(opType)
	defer lm.unlock(opType)
	return fn()
}

// ExecuteWithResult is Execute for functions returning a value
//
//	nodes, err := storage.ExecuteWithResult(lm, storage.ReadOperation, func() ([]types.Node, error) {
//	    return snapshot(), nil
//	})
func ExecuteWithResult[T any](lm *LockManager, opType OperationType, fn func() (T, error)) (T, error) {
	lm.lock(opType)
	defer lm.unlock(opType)
	return fn()
}

func (lm *LockManager) lock(opType OperationType) {
	if opType == WriteOperation {
		lm.mu.Lock()
		return
	}
	lm.mu.RLock()
}

func (lm *LockManager) unlock(opType OperationType) {
	if opType == WriteOperation {
		lm.mu.Unlock()
		return
	}
	lm.mu.RUnlock()
}
