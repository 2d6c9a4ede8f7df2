// Package state keeps the per-session working set of the front-end.
package state

import (
	"sync"
	"time"

	"github.com/aquilu/jacobo/internal/prediction"
	"github.com/aquilu/jacobo/internal/reconcile"
	"github.com/aquilu/jacobo/internal/table"
)

// Level of a flash notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a one-shot message shown on the next page render.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Session holds one client's current input, its reconciliation and the
// last prediction.
type Session struct {
	mu sync.RWMutex

	ID       string
	Created  time.Time
	lastSeen time.Time

	input   *table.Table
	mapping *reconcile.Result
	result  *prediction.Result
	notices []Notice
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, Created: now, lastSeen: now}
}

// SetInput replaces the current table and drops any stale result.
func (s *Session) SetInput(t *table.Table, rec *reconcile.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.input = t
	s.mapping = rec
	s.result = nil
}

// ClearInput forgets the table, its mapping and its result.
func (s *Session) ClearInput() {
	s.SetInput(nil, nil)
}

// Input returns the current table, or nil.
func (s *Session) Input() *table.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.input
}

// Reconciliation returns the mapping of the current table, or nil.
func (s *Session) Reconciliation() *reconcile.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mapping
}

// SetResult stores a prediction for the current input. A result computed
// from a table that is no longer the session input is dropped and false is
// returned.
func (s *Session) SetResult(r *prediction.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r != nil && r.Source() != s.input {
		return false
	}
	s.result = r
	return true
}

// Result returns the last prediction, or nil.
func (s *Session) Result() *prediction.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Flash queues a notice for the next render.
func (s *Session) Flash(level Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, Notice{Level: level, Message: msg})
}

// TakeNotices returns and clears pending notices.
func (s *Session) TakeNotices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns the time of the last access through the store.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}
