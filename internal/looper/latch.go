package looper

import (
	"context"
	"sync"
)

// Latch is a resettable binary gate.
// While closed, Block and Wait park the caller; Open releases every waiter
// and lets later callers through until the next Close.
type Latch struct {
	mu   sync.Mutex
	open bool
	ch   chan struct{}
}

// NewLatch returns a latch in the given state.
func NewLatch(open bool) *Latch {
	l := &Latch{ch: make(chan struct{})}
	if open {
		l.open = true
		close(l.ch)
	}
	return l
}

// Open releases waiters. Opening an open latch does nothing.
func (l *Latch) Open() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		l.open = true
		close(l.ch)
	}
}

// Close resets the latch to the blocking state.
func (l *Latch) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open {
		l.open = false
		l.ch = make(chan struct{})
	}
}

// IsOpen reports the current state.
func (l *Latch) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// Block waits, without any bound, until the latch is open.
func (l *Latch) Block() {
	<-l.gate()
}

// Wait is Block bounded by ctx.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.gate():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Latch) gate() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ch
}
