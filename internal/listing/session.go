package listing

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrStale is returned by Session.Load when a newer load started first.
	ErrStale = errors.New("listing: superseded by a newer load")
	// ErrClosed is returned once the session has been closed.
	ErrClosed = errors.New("listing: session closed")
)

// Session serialises the loads of one page instance. Starting a load cancels
// the previous one, and only the newest load may commit its result.
type Session struct {
	coord *Coordinator

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	closed  bool
	current *Result
}

// NewSession opens a session over the coordinator.
func (c *Coordinator) NewSession() *Session {
	return &Session{coord: c}
}

// Load runs q and commits the result unless a newer Load or Close happened
// meanwhile, in which case ErrStale or ErrClosed is returned and the result
// is discarded.
func (s *Session) Load(ctx context.Context, q Query) (Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrClosed
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	res := s.coord.Load(ctx, q)

	s.mu.Lock()
	defer s.mu.Unlock()
	cancel()
	if s.closed {
		return Result{}, ErrClosed
	}
	if gen != s.gen {
		return Result{}, ErrStale
	}
	s.cancel = nil
	s.current = &res
	return res, nil
}

// Current returns the last committed result.
func (s *Session) Current() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Result{}, false
	}
	return *s.current, true
}

// Close cancels any in-flight load; later results are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
