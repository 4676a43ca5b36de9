// Package lock provides mutual exclusion scoped to a key.
// For single-node deployments the in-memory locker is enough; with several
// API instances sharing one store the Redis locker is used.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotAcquired is returned when a lock is still held by someone else after waiting.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker defines key-scoped locking. Every acquisition is identified by a
// token so that only the holder can release it.
type Locker interface {
	// Acquire attempts to take the lock once. ok is false if it is held elsewhere.
	// The lock expires after ttl even if never released.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Release releases the lock if token still owns it.
	Release(ctx context.Context, key, token string) (bool, error)
}

const retryDelay = 25 * time.Millisecond

// AcquireWithWait retries Acquire until it succeeds, wait elapses or ctx is done.
func AcquireWithWait(ctx context.Context, l Locker, key string, ttl, wait time.Duration) (string, error) {
	deadline := time.Now().Add(wait)
	for {
		token, ok, err := l.Acquire(ctx, key, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", ErrNotAcquired
		}

		timer := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

func newToken() string {
	return uuid.NewString()
}

// Keys provides lock key generation.
var Keys = lockKeys{}

type lockKeys struct{}

// Borrow returns the key serializing borrow attempts of one book by one user.
func (lockKeys) Borrow(userID, bookID uuid.UUID) string {
	return "lock:borrow:" + userID.String() + ":" + bookID.String()
}
