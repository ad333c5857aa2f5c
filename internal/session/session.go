// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Session with cancellation, deadline and an attached connection value.

package session

import (
	"sync"
	"time"
)

// Session is the registry entry of one connection.
type Session struct {
	id     string
	value  any
	opened time.Time

	mu       sync.Mutex
	deadline time.Time

	done chan struct{}
	once sync.Once
}

func newSession(id string, value any) *Session {
	return &Session{
		id:     id,
		value:  value,
		opened: time.Now(),
		done:   make(chan struct{}),
	}
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// Value returns the connection value registered with the session.
func (s *Session) Value() any { return s.value }

// Opened returns when the session was created.
func (s *Session) Opened() time.Time { return s.opened }

// Cancel signals session teardown; idempotent.
func (s *Session) Cancel() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Done returns a channel closed upon cancellation.
func (s *Session) Done() <-chan struct{} { return s.done }

// Deadline returns the session expiration if set.
func (s *Session) Deadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline, !s.deadline.IsZero()
}

// SetDeadline sets an absolute deadline; the zero time clears it.
func (s *Session) SetDeadline(t time.Time) {
	s.mu.Lock()
	s.deadline = t
	s.mu.Unlock()
}

// Expired reports whether the deadline has passed at now.
func (s *Session) Expired(now time.Time) bool {
	d, ok := s.Deadline()
	return ok && !now.Before(d)
}
