package catalog

import (
	"context"
	"sync"
)

// QueryLocker is the advisory mutual-exclusion scheme behind in-flight
// markers. Acquire returns false when a fetch for the same normalized query
// text is already underway; callers holding the lock must Release it on every
// exit path.
type QueryLocker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryLocker is the single-process locker: a strict try-lock keyed by query
// text. It never expires entries, which is safe because Release runs in a
// defer within the same process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.held[key]; exists {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
