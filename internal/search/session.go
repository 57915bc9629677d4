package search

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period Lookup waits before dispatching.
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrSuperseded is reported by a task replaced by a newer query.
	ErrSuperseded = errors.New("search: superseded by a newer query")
	// ErrClosed is reported by tasks of a closed session.
	ErrClosed = errors.New("search: session closed")
)

// Task is one cancellable resolution.
type Task struct {
	done   chan struct{}
	cancel context.CancelCauseFunc
	res    Resolution
	err    error
}

// Done is closed once the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) (Resolution, error) {
	select {
	case <-t.done:
		return t.res, t.err
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	}
}

// Cancel abandons the task; Wait then reports context.Canceled.
func (t *Task) Cancel() { t.cancel(context.Canceled) }

// Session owns the query box of one browser profile: each new query
// supersedes the previous one, whose result is never delivered.
type Session struct {
	resolver *Resolver
	debounce time.Duration

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelCauseFunc
	closed bool
}

// NewSession opens a session; a non-positive debounce selects DefaultDebounce.
func (r *Resolver) NewSession(debounce time.Duration) *Session {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Session{resolver: r, debounce: debounce}
}

// Lookup resolves query after the debounce delay, as for incremental typing.
func (s *Session) Lookup(ctx context.Context, query string) *Task {
	return s.Resolve(ctx, query, s.debounce)
}

// Submit resolves query immediately, as for an explicit submit.
func (s *Session) Submit(ctx context.Context, query string) *Task {
	return s.Resolve(ctx, query, 0)
}

// Resolve starts a task that waits delay and then resolves query. Starting a
// task cancels the session's previous task with ErrSuperseded.
func (s *Session) Resolve(ctx context.Context, query string, delay time.Duration) *Task {
	taskCtx, cancel := context.WithCancelCause(ctx)
	task := &Task{done: make(chan struct{}), cancel: cancel}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel(ErrClosed)
		task.err = ErrClosed
		close(task.done)
		return task
	}
	if s.cancel != nil {
		s.cancel(ErrSuperseded)
	}
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(taskCtx, task, gen, query, delay)
	return task
}

func (s *Session) run(ctx context.Context, task *Task, gen uint64, query string, delay time.Duration) {
	defer close(task.done)
	defer task.cancel(nil)

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			task.err = context.Cause(ctx)
			return
		}
	}

	res := s.resolver.Resolve(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case ctx.Err() != nil:
		task.err = context.Cause(ctx)
	case s.closed:
		task.err = ErrClosed
	case gen != s.gen:
		task.err = ErrSuperseded
	default:
		task.res = res
		s.cancel = nil
	}
}

// Close cancels the pending task; results arriving afterwards are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel(ErrClosed)
		s.cancel = nil
	}
}
