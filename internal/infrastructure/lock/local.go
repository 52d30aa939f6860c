package lock

import (
	"context"
	"sync"

	"SentimentPipeline/internal/ports"
)

// LocalLock guards cycles inside a single process.
type LocalLock struct {
	mu sync.Mutex
}

var _ ports.RunLock = (*LocalLock)(nil)

// NewLocalLock returns an unlocked lock.
func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

// TryAcquire never blocks; ok is false while another holder is active.
func (l *LocalLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !l.mu.TryLock() {
		return nil, false, nil
	}

	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, true, nil
}
