package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker using in-process state.
// Locks are NOT shared across process restarts or multiple instances.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]lockEntry
}

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// NewMemoryLocker creates a new in-memory locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]lockEntry)}
}

// Acquire attempts to acquire a lock.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if entry, exists := m.locks[key]; exists && now.Before(entry.expiresAt) {
		return "", false, nil
	}

	token := newToken()
	m.locks[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	m.cleanup(now)
	return token, true, nil
}

// Release releases a lock held with token.
func (m *MemoryLocker) Release(ctx context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists || entry.token != token {
		return false, nil
	}
	delete(m.locks, key)
	return true, nil
}

// cleanup drops expired entries. Caller holds m.mu.
func (m *MemoryLocker) cleanup(now time.Time) {
	for key, entry := range m.locks {
		if now.After(entry.expiresAt) {
			delete(m.locks, key)
		}
	}
}

var _ Locker = (*MemoryLocker)(nil)
