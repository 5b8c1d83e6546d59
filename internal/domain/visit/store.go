package visit

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrNoSession = errors.New("visit: no session in progress")

// SessionStore holds at most one in-progress session per user.
type SessionStore interface {
	Get(userID uuid.UUID) (Session, bool)
	// Put replaces the user's session.
	Put(s Session)
	// Update applies fn to the user's session under the store's lock and
	// saves the result when fn succeeds.
	Update(userID uuid.UUID, fn func(Session) (Session, error)) (Session, error)
	// Delete removes the user's session if it is still sessionID.
	Delete(userID, sessionID uuid.UUID) bool
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[uuid.UUID]Session)}
}

func (m *MemorySessionStore) Get(userID uuid.UUID) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

func (m *MemorySessionStore) Put(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s
}

func (m *MemorySessionStore) Update(userID uuid.UUID, fn func(Session) (Session, error)) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[userID]
	if !ok {
		return Session{}, ErrNoSession
	}
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	m.sessions[userID] = next
	return next, nil
}

func (m *MemorySessionStore) Delete(userID, sessionID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[userID]; ok && cur.ID == sessionID {
		delete(m.sessions, userID)
		return true
	}
	return false
}
