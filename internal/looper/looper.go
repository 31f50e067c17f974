package looper

import (
	"sync"

	"github.com/cjeanneret/SharedCam/internal/debug"
)

// Executor runs posted tasks on some execution context.
// Post returns false if the task was not accepted (e.g. the context has quit).
type Executor interface {
	Post(task func()) bool
}

// Looper is a single goroutine draining an unbounded FIFO of tasks.
// Tasks run one at a time, in post order, never reentrantly.
// It plays the role of a dedicated worker thread (camera) or of the
// UI thread (rendering, pixel readback).
type Looper struct {
	name string

	mu       sync.Mutex
	queue    []func()
	quitting bool

	wake chan struct{}
	done chan struct{}
}

// New starts a looper goroutine with the given name.
func New(name string) *Looper {
	l := &Looper{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.loop()
	debug.Verbose("Looper %s: started", name)
	return l
}

// Name returns the looper name.
func (l *Looper) Name() string {
	return l.name
}

// Post enqueues task. It returns false once QuitSafely has been called.
func (l *Looper) Post(task func()) bool {
	l.mu.Lock()
	if l.quitting {
		l.mu.Unlock()
		debug.Trace("Looper %s: task rejected (quitting)", l.name)
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	l.signal()
	return true
}

// QuitSafely stops accepting tasks; already queued tasks still run,
// then the goroutine exits. It does not wait; use Done for that.
func (l *Looper) QuitSafely() {
	l.mu.Lock()
	if l.quitting {
		l.mu.Unlock()
		return
	}
	l.quitting = true
	l.mu.Unlock()

	debug.Verbose("Looper %s: quitting", l.name)
	l.signal()
}

// Done is closed when the looper goroutine has exited.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

func (l *Looper) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Looper) loop() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			quitting := l.quitting
			l.mu.Unlock()
			if quitting {
				debug.Verbose("Looper %s: exited", l.name)
				return
			}
			<-l.wake
			continue
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}
