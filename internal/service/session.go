package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sync kinds. Category and product sync share a slot because a product
// pass always starts with categories.
const (
	KindProducts  = "products"
	KindInventory = "inventory"
	KindOrders    = "orders"
)

// Progress is the live counter of a running session.
type Progress struct {
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Current   string `json:"current,omitempty"`
}

// SessionStatus is a snapshot of one running session.
type SessionStatus struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	StartedAt time.Time `json:"started_at"`
	Progress  Progress  `json:"progress"`
}

// ==================== SessionManager ====================

// SessionManager admits at most one running session per kind and signals
// stop requests to them. A stop never cancels remote calls or DB writes
// already in flight; it is observed at checkpoints and cuts pacing sleeps short.
type SessionManager struct {
	mu          sync.Mutex
	active      map[string]*Session
	stopPending bool
	now         func() time.Time
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]*Session),
		now:    time.Now,
	}
}

// Begin starts a session of kind, or fails with ErrSyncInProgress when one
// is already running. A stop requested while idle cancels the new session
// right away.
func (m *SessionManager) Begin(parent context.Context, kind string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.active[kind]; busy {
		return nil, ErrSyncInProgress
	}

	pace, cancel := context.WithCancel(parent)
	s := &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: m.now(),
		ctx:       parent,
		pace:      pace,
		cancel:    cancel,
		mgr:       m,
	}
	if m.stopPending {
		cancel()
	}
	m.active[kind] = s
	return s, nil
}

// Stop signals every running session. With nothing running the request is
// kept until the next session consumes it. It reports whether a running
// session was signalled.
func (m *SessionManager) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopPending = true
	for _, s := range m.active {
		s.cancel()
	}
	return len(m.active) > 0
}

// StopPending reports whether a stop request has not been consumed yet.
func (m *SessionManager) StopPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopPending
}

// InProgress reports whether any session is running.
func (m *SessionManager) InProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active) > 0
}

// Status lists the running sessions ordered by kind.
func (m *SessionManager) Status() []SessionStatus {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]SessionStatus, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionStatus{
			ID:        s.ID,
			Kind:      s.Kind,
			StartedAt: s.StartedAt,
			Progress:  s.Progress(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func (m *SessionManager) consumeStop() {
	m.mu.Lock()
	m.stopPending = false
	m.mu.Unlock()
}

func (m *SessionManager) end(s *Session) {
	m.mu.Lock()
	if m.active[s.Kind] == s {
		delete(m.active, s.Kind)
	}
	// a stop that reached this session is spent even if no checkpoint saw it
	if s.pace.Err() != nil {
		m.stopPending = false
	}
	m.mu.Unlock()
	s.cancel()
}

// ==================== Session ====================

// Session is one running sync. A nil *Session is valid and never stops,
// which is how single-item operations outside a bulk pass run.
type Session struct {
	ID        string
	Kind      string
	StartedAt time.Time

	ctx    context.Context
	pace   context.Context
	cancel context.CancelFunc
	mgr    *SessionManager

	mu       sync.Mutex
	progress Progress
	stopped  bool
}

// Context is the caller's context, used for remote calls and DB writes.
// A stop request does not cancel it.
func (s *Session) Context() context.Context {
	if s == nil {
		return context.Background()
	}
	return s.ctx
}

// PaceContext is done once a stop is requested or the caller's context
// ends. Only pacing sleeps wait on it.
func (s *Session) PaceContext() context.Context {
	if s == nil {
		return context.Background()
	}
	return s.pace
}

// Stopped is the cooperative checkpoint. Observing a stop consumes the
// pending stop request. A cancelled caller context also reads as stopped.
func (s *Session) Stopped() bool {
	if s == nil {
		return false
	}
	if s.pace.Err() == nil {
		return false
	}
	s.mu.Lock()
	first := !s.stopped
	s.stopped = true
	s.mu.Unlock()
	if first {
		s.mgr.consumeStop()
	}
	return true
}

// WasStopped reports whether Stopped has returned true during this session.
func (s *Session) WasStopped() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// SetProgress records processed/total and the item being worked on.
func (s *Session) SetProgress(processed, total int, current string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.progress = Progress{Processed: processed, Total: total, Current: current}
	s.mu.Unlock()
}

func (s *Session) Progress() Progress {
	if s == nil {
		return Progress{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// End releases the slot.
func (s *Session) End() {
	if s == nil {
		return
	}
	s.mgr.end(s)
}
