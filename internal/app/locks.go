package app

import (
	"context"
	"sync"
	"time"

	"skribe/api/internal/session"
)

// memoryLocker serializes document writers within one process. Deployments
// with more than one API instance configure Redis instead.
type memoryLocker struct {
	mu    sync.Mutex
	held  map[string]uint64
	until map[string]time.Time
	next  uint64
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{held: make(map[string]uint64), until: make(map[string]time.Time)}
}

func (l *memoryLocker) LockDocument(_ context.Context, documentID string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if _, ok := l.held[documentID]; ok && now.Before(l.until[documentID]) {
		return nil, session.ErrLocked
	}
	l.next++
	token := l.next
	l.held[documentID] = token
	l.until[documentID] = now.Add(ttl)

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[documentID] == token {
			delete(l.held, documentID)
			delete(l.until, documentID)
		}
	}, nil
}
