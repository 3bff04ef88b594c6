package memory

import (
	"context"
	"sync"

	"live-session-service/internal/app"
	"live-session-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// A code stays reserved from Reserve until Release, even before Put.
type SessionStore struct {
	mu       sync.RWMutex
	reserved map[string]struct{}
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		reserved: make(map[string]struct{}),
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Reserve(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reserved[code]; ok {
		return domain.ErrCodeTaken
	}
	s.reserved[code] = struct{}{}
	return nil
}

func (s *SessionStore) Put(code string, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved[code] = struct{}{}
	s.sessions[code] = session
}

func (s *SessionStore) Get(code string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	return session, ok
}

func (s *SessionStore) Release(_ context.Context, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, code)
	delete(s.reserved, code)
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}
