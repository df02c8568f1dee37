package bridge

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultHandshakeTimeout matches spec.md §4.5's default.
const DefaultHandshakeTimeout = 30 * time.Second

// Manager owns the live session table. One Session per client; each session
// gets its own sandboxed dispatcher built from the shared process-wide
// resources.
type Manager struct {
	shared           SharedResources
	handshakeTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager builds a Manager. handshakeTimeout defaults to
// DefaultHandshakeTimeout when zero.
func NewManager(shared SharedResources, handshakeTimeout time.Duration) *Manager {
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	return &Manager{
		shared:           shared,
		handshakeTimeout: handshakeTimeout,
		sessions:         make(map[string]*Session),
	}
}

// CreateSession builds a fresh, unlocked session and registers it.
func (m *Manager) CreateSession() (*Session, error) {
	svc, sb, err := m.shared.newSessionService()
	if err != nil {
		return nil, err
	}
	sess := newSession(svc, sb, m.handshakeTimeout)

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	bridgeLog.Info("session_created", slog.String("session", sess.ID))
	return sess, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok || sess.isTerminated() {
		return nil, false
	}
	return sess, true
}

func (m *Manager) Exists(id string) bool {
	_, ok := m.Get(id)
	return ok
}

func (m *Manager) Terminate(id string, reason TerminationReason) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	sess.markTerminated(reason)
	bridgeLog.Info("session_terminated", slog.String("session", id), slog.String("reason", string(reason)))
}

// Sweep terminates sessions that have had no activity for longer than
// maxIdle. Intended to run on a periodic ticker from the HTTP server's
// background loop.
func (m *Manager) Sweep(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)
	var stale []string
	m.mu.RLock()
	for id, sess := range m.sessions {
		sess.mu.Lock()
		idle := sess.lastActivity.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.Terminate(id, ReasonClientClosed)
	}
}
