package publish

import (
	"context"
	"sync"
)

// Latest keeps the most recent snapshot for readers such as the HTTP API.
type Latest struct {
	mu   sync.RWMutex
	snap Snapshot
	ok   bool
}

func NewLatest() *Latest {
	return &Latest{}
}

func (l *Latest) Publish(_ context.Context, snap Snapshot) error {
	l.mu.Lock()
	l.snap = snap
	l.ok = true
	l.mu.Unlock()
	return nil
}

func (l *Latest) Get() (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap, l.ok
}
