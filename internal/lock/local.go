package lock

import (
	"context"
	"sync"
	"time"
)

var _ Locker = (*LocalLocker)(nil)

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localEntry
	now  func() time.Time
}

type localEntry struct {
	gen     uint64
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry), now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cur, ok := l.held[key]
	if ok && now.Before(cur.expires) {
		return nil, ErrNotAcquired
	}
	e := localEntry{gen: cur.gen + 1, expires: now.Add(ttl)}
	l.held[key] = e

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if c, ok := l.held[key]; ok && c.gen == e.gen {
			delete(l.held, key)
		}
		return nil
	}, nil
}
