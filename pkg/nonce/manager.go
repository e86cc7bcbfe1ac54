// Package nonce allocates replay-protection nonces for off-chain sessions.
package nonce

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/speedrun-hq/shield/pkg/logger"
)

var (
	// ErrUnknownSession is returned for sessions that were never opened
	ErrUnknownSession = errors.New("unknown session")

	// ErrSessionExists is returned when a session id is opened twice
	ErrSessionExists = errors.New("session already opened")

	// ErrSessionReleased is returned when allocating from a released session
	ErrSessionReleased = errors.New("session released")
)

// Manager hands out strictly increasing nonces per session, starting at 1.
// Allocation is a single atomic increment, so concurrent callers never share a nonce.
// Nonces are never handed back: an allocated nonce whose intent was not signed stays burned.
type Manager struct {
	// Per-session counters
	sessions map[string]*sessionNonceData
	// Guards the sessions map only
	mu     sync.RWMutex
	logger logger.Logger
}

// sessionNonceData holds nonce data for a specific session
type sessionNonceData struct {
	// Last allocated nonce, 0 before the first allocation
	current  atomic.Uint64
	released atomic.Bool
	openedAt time.Time
}

// NewManager creates a new nonce manager
func NewManager(log logger.Logger) *Manager {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Manager{
		sessions: make(map[string]*sessionNonceData),
		logger:   log,
	}
}

// Open starts a counter for sessionID
func (m *Manager) Open(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; exists {
		return errors.Wrapf(ErrSessionExists, "session %s", sessionID)
	}
	m.sessions[sessionID] = &sessionNonceData{openedAt: time.Now()}
	m.logger.DebugWithSession(sessionID, "Nonce counter opened")
	return nil
}

// Next reserves and returns the next nonce of sessionID
func (m *Manager) Next(sessionID string) (uint64, error) {
	data, err := m.session(sessionID)
	if err != nil {
		return 0, err
	}
	if data.released.Load() {
		return 0, errors.Wrapf(ErrSessionReleased, "session %s", sessionID)
	}

	nonce := data.current.Add(1)
	if nonce == 0 {
		// wrapped around; only reachable after 2^64 allocations
		return 0, errors.Errorf("nonce space exhausted for session %s", sessionID)
	}
	return nonce, nil
}

// Current returns the last nonce allocated for sessionID, 0 if none was allocated yet
func (m *Manager) Current(sessionID string) (uint64, error) {
	data, err := m.session(sessionID)
	if err != nil {
		return 0, err
	}
	return data.current.Load(), nil
}

// Release stops allocation for sessionID. The last nonce stays readable through Current.
func (m *Manager) Release(sessionID string) error {
	data, err := m.session(sessionID)
	if err != nil {
		return err
	}
	if !data.released.CompareAndSwap(false, true) {
		return errors.Wrapf(ErrSessionReleased, "session %s", sessionID)
	}
	m.logger.DebugWithSession(sessionID, "Nonce counter released at %d after %s",
		data.current.Load(), time.Since(data.openedAt).Round(time.Millisecond))
	return nil
}

// ActiveSessions returns the number of opened, unreleased sessions
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, data := range m.sessions {
		if !data.released.Load() {
			count++
		}
	}
	return count
}

func (m *Manager) session(sessionID string) (*sessionNonceData, error) {
	m.mu.RLock()
	data, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if !exists {
		return nil, errors.Wrapf(ErrUnknownSession, "session %s", sessionID)
	}
	return data, nil
}
