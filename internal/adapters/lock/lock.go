// Package lock provides per-market advisory locks so two update cycles never run
// against the same market at once.
package lock

import (
	"context"
	"strconv"
	"sync"
)

// Locker hands out non-blocking, keyed locks.
type Locker interface {
	// TryLock returns ErrHeld when the key is taken. The returned func releases the lock.
	TryLock(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// MarketKey is the lock key of a market.
func MarketKey(marketID int64) string {
	return "champstock:lock:market:" + strconv.FormatInt(marketID, 10)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal creates an empty in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// TryLock implements Locker.
func (l *Local) TryLock(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrHeld
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		err := ErrNotHeld
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
			err = nil
		})
		return err
	}, nil
}
