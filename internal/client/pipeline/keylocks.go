package pipeline

import (
	"context"
	"sync"
)

// keyLocks is a set of FIFO mutexes addressed by string key. Waiters are
// granted the lock in arrival order.
type keyLocks struct {
	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{waiters: make(map[string][]chan struct{})}
}

// lock blocks until key is held or ctx is done. A waiter that gives up leaves
// the queue without disturbing the others.
func (l *keyLocks) lock(ctx context.Context, key string) error {
	ch := make(chan struct{})
	l.mu.Lock()
	q := l.waiters[key]
	l.waiters[key] = append(q, ch)
	if len(q) == 0 {
		close(ch)
	}
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-ch:
		// granted while giving up
		l.releaseLocked(key)
	default:
		l.dropLocked(key, ch)
	}
	return ctx.Err()
}

// unlock hands key to the next waiter.
func (l *keyLocks) unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseLocked(key)
}

// waiting reports how many callers hold or wait for key.
func (l *keyLocks) waiting(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters[key])
}

func (l *keyLocks) releaseLocked(key string) {
	q := l.waiters[key]
	if len(q) <= 1 {
		delete(l.waiters, key)
		return
	}
	q = q[1:]
	l.waiters[key] = q
	close(q[0])
}

func (l *keyLocks) dropLocked(key string, ch chan struct{}) {
	q := l.waiters[key]
	for i, c := range q {
		if c == ch {
			l.waiters[key] = append(q[:i:i], q[i+1:]...)
			return
		}
	}
}
