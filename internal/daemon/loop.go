package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrLoopClosed is returned for work submitted after the loop stopped.
var ErrLoopClosed = errors.New("daemon: loop closed")

// Loop runs submitted tasks one at a time on a single goroutine. The engine
// is only ever touched from inside a task. The queue is unbounded so tasks
// may post follow-up work without blocking.
type Loop struct {
	logger *slog.Logger

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewLoop creates a stopped loop. Call Run to start processing.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Run processes tasks until ctx is cancelled or Close is called. Tasks
// still queued at that point are dropped.
func (l *Loop) Run(ctx context.Context) {
	defer l.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			fn := l.next()
			if fn == nil {
				break
			}
			l.run(fn)
			select {
			case <-l.done:
				return
			default:
			}
		}
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

func (l *Loop) run(fn func()) {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panic recovered", "error", r)
		}
	}()
	fn()
}

// Post queues fn without waiting for it to run.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrLoopClosed
	default:
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the loop and waits for its result. A panic inside fn is
// returned as an error. Do must not be called from a loop task.
func (l *Loop) Do(fn func() error) error {
	result := make(chan error, 1)
	err := l.Post(func() {
		result <- safely(fn)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-l.done:
		// The task may have finished just before the loop stopped.
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopClosed
		}
	}
}

func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loop task panicked: %v", r)
		}
	}()
	return fn()
}

// Close stops the loop. It is safe to call more than once.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
