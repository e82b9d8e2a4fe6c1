// Package session holds one user's dashboard selection. Fetches started under
// a selection are tagged with its epoch; a fetch that finishes after the
// selection changed is discarded with ErrStale instead of overwriting newer
// state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CosmoTheDev/devops-atlas/models"
)

// ErrStale is returned for a fetch superseded by a newer selection.
var ErrStale = errors.New("stale fetch: selection changed")

// Selection is the scope the user is viewing.
type Selection struct {
	Organisation string              `json:"organisation"`
	Project      string              `json:"project,omitempty"`
	ResourceType models.ResourceType `json:"resourceType"`
	ContainerID  string              `json:"containerId,omitempty"`
}

// Session is safe for concurrent use.
type Session struct {
	timeout time.Duration

	mu     sync.Mutex
	sel    Selection
	epoch  uint64
	cancel context.CancelFunc
	// inflight cancels fetches of the current epoch when it ends.
	inflight context.Context
}

// New returns a session whose fetches time out after timeout. Zero disables
// the timeout.
func New(timeout time.Duration) *Session {
	s := &Session{timeout: timeout}
	s.inflight, s.cancel = context.WithCancel(context.Background())
	return s
}

// Select replaces the selection and starts a new epoch. In-flight fetches of
// the previous epoch are cancelled.
func (s *Session) Select(sel Selection) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked(sel)
}

// selectLocked requires s.mu.
func (s *Session) selectLocked(sel Selection) uint64 {
	s.cancel()
	s.inflight, s.cancel = context.WithCancel(context.Background())
	s.sel = sel
	s.epoch++
	return s.epoch
}

// Update applies fn to a copy of the current selection and selects the
// result. fn runs under the session lock and must not call back into s.
func (s *Session) Update(fn func(*Selection)) (Selection, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.sel
	fn(&next)
	return next, s.selectLocked(next)
}

// Current returns the selection and its epoch.
func (s *Session) Current() (Selection, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel, s.epoch
}

// Epoch returns the current epoch.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Close cancels in-flight fetches.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
}

// Fetch runs fn with the current selection under the fetch timeout. The
// result is discarded with ErrStale when the selection changed while fn ran.
func Fetch[T any](ctx context.Context, s *Session, fn func(context.Context, Selection) (T, error)) (T, error) {
	var zero T

	s.mu.Lock()
	sel, epoch, inflight := s.sel, s.epoch, s.inflight
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(inflight, cancel)
	defer stop()
	if s.timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, s.timeout)
		defer tcancel()
	}

	out, err := fn(ctx, sel)
	if s.Epoch() != epoch {
		return zero, fmt.Errorf("%w (epoch %d)", ErrStale, epoch)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return zero, fmt.Errorf("fetch timed out after %s: %w", s.timeout, err)
	}
	if err != nil {
		return zero, err
	}
	return out, nil
}

// Manager hands out sessions by ID.
type Manager struct {
	timeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns a Manager whose sessions use timeout.
func NewManager(timeout time.Duration) *Manager {
	return &Manager{timeout: timeout, sessions: make(map[string]*Session)}
}

// Get returns the session for id, creating it on first use.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = New(m.timeout)
		m.sessions[id] = s
	}
	return s
}

// Drop closes and forgets the session for id.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}
