package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// LockManager implements domain.LockManager with one buffered channel per
// key. The ttl argument is ignored: an in-process holder cannot disappear
// without releasing.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]chan struct{})}
}

func (lm *LockManager) slot(key string) chan struct{} {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	ch, ok := lm.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		lm.locks[key] = ch
	}
	return ch
}

// Acquire blocks until key is free or ctx is done.
func (lm *LockManager) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory: wait for lock %s: %w: %w", key, domain.ErrLockHeld, err)
	}
	ch := lm.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("memory: wait for lock %s: %w: %w", key, domain.ErrLockHeld, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
