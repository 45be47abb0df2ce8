package dom

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrLoopClosed is returned by Do when the loop no longer accepts tasks.
var ErrLoopClosed = errors.New("dom: loop closed")

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "dom: task panicked"
}

// Loop runs tasks one at a time, in posting order, on a single goroutine.
// Every Document is confined to a Loop: tree reads and writes, observer
// callbacks and subscription handlers all run as tasks on it, so none of
// them need locking.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

// NewLoop starts a Loop. Call Close to stop it.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l
}

// Post appends a task to the queue. It never blocks, so tasks may post
// further tasks. Returns false if the loop is closed.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to return. A panic in fn is
// returned as a *PanicError. Do must not be called from a task: the loop
// would wait on itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	var perr error

	ok := l.Post(func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("dom: task panic recovered",
					"panic", r, "stack", string(debug.Stack()))
				perr = &PanicError{Value: r}
			}
		}()
		fn()
	})
	if !ok {
		return ErrLoopClosed
	}

	select {
	case <-finished:
		return perr
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the loop stops.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Close stops the loop. Queued tasks that have not started are dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	close(l.done)
}

func (l *Loop) run() {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			select {
			case <-l.wake:
				continue
			case <-l.done:
				return
			}
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.exec(task)
	}
}

// exec runs a single task. A panicking task is logged and the loop keeps
// going.
func (l *Loop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("dom: task panic recovered",
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}
