// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/dominoserver/network"
)

// Session is one authenticated live connection.
type Session struct {
	ID         string
	Conn       network.Connection
	UserID     string
	Username   string
	RoomName   string // "" for lobby observers
	CreatedAt  time.Time
	lastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(conn network.Connection, userID, username, roomName string) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		Conn:       conn,
		UserID:     userID,
		Username:   username,
		RoomName:   roomName,
		CreatedAt:  now,
		lastActive: now,
	}
}

func (s *Session) Send(msg any) error {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
	return s.Conn.Send(msg)
}

// Touch records inbound activity.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) GetID() string {
	return s.UserID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Manager holds the single live session per user id.
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

// Bind makes s the user's live session and returns the session it replaced.
// The caller closes the previous one.
func (m *Manager) Bind(s *Session) *Session {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	prev := m.sessions[s.UserID]
	m.sessions[s.UserID] = s
	if prev == s {
		return nil
	}
	return prev
}

// Unbind removes s only if it is still the user's live session. A closing
// connection that was already replaced reports false.
func (m *Manager) Unbind(s *Session) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.sessions[s.UserID] != s {
		return false
	}
	delete(m.sessions, s.UserID)
	return true
}

func (m *Manager) Get(userID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Lobby returns the sessions not attached to a room.
func (m *Manager) Lobby() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, s := range m.sessions {
		if s.RoomName == "" {
			result = append(result, s)
		}
	}
	return result
}

// InRoom returns the live sessions bound to roomName.
func (m *Manager) InRoom(roomName string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, s := range m.sessions {
		if s.RoomName == roomName {
			result = append(result, s)
		}
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every live session.
func (m *Manager) CloseAll() {
	m.mutex.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mutex.RUnlock()

	for _, s := range all {
		s.Close()
	}
}
