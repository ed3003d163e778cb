// Package lock keeps two dispatch runs from overlapping.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotAcquired is returned when another holder owns the lock.
	ErrNotAcquired = errors.New("lock: not acquired")
	// ErrInvalidTTL rejects locks that would never expire or never hold.
	ErrInvalidTTL = errors.New("lock: ttl must be positive")
)

type Locker interface {
	// Acquire returns a release func on success, ErrNotAcquired when the lock is held,
	// or a backend error.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}
