package server

import (
	"context"
	"errors"
)

// ErrStopped is returned when work is submitted to a stopped server.
var ErrStopped = errors.New("server: stopped")

// loop runs posted events one at a time until ctx is done.
func (s *Server) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.events:
			fn()
		}
	}
}

// post queues fn for the hub. It reports false once the server is stopping.
func (s *Server) post(fn func()) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.events <- fn:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Do runs fn on the hub and waits for it to finish.
func (s *Server) Do(fn func()) error {
	done := make(chan struct{})
	if !s.post(func() { fn(); close(done) }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-s.ctx.Done():
		return ErrStopped
	}
}
