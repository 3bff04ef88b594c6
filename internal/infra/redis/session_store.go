package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"live-session-service/internal/app"
	"live-session-service/internal/domain"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions themselves stay in a local map; each lives on the instance that created it.
//   - Redis holds the code reservation (SET NX) so two instances never hand out the same code.
//   - The reservation carries a TTL that Refresh extends while the session is alive.
type SessionStore struct {
	client     *redis.Client
	ttl        time.Duration
	instanceID string
	logger     *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, instanceID string, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		client:     client,
		ttl:        ttl,
		instanceID: instanceID,
		logger:     logger,
		sessions:   make(map[string]*app.Session),
	}
}

func (s *SessionStore) Reserve(ctx context.Context, code string) error {
	ok, err := s.client.SetNX(ctx, s.key(code), s.instanceID, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve session code: %w", err)
	}
	if !ok {
		return domain.ErrCodeTaken
	}
	return nil
}

func (s *SessionStore) Put(code string, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[code] = session
}

func (s *SessionStore) Get(code string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[code]
	return session, ok
}

// releaseScript deletes the reservation only while it still names this instance.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release drops the local session and the reservation, if this instance still owns it.
func (s *SessionStore) Release(ctx context.Context, code string) {
	s.mu.Lock()
	delete(s.sessions, code)
	s.mu.Unlock()

	if err := releaseScript.Run(ctx, s.client, []string{s.key(code)}, s.instanceID).Err(); err != nil {
		s.logger.Warn("release session code failed", zap.String("session_code", code), zap.Error(err))
	}
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

// Refresh extends the reservation of every local session.
func (s *SessionStore) Refresh(ctx context.Context) error {
	s.mu.RLock()
	codes := make([]string, 0, len(s.sessions))
	for code := range s.sessions {
		codes = append(codes, code)
	}
	s.mu.RUnlock()
	if len(codes) == 0 || s.ttl <= 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, code := range codes {
		pipe.Expire(ctx, s.key(code), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// KeepAlive calls Refresh every interval until ctx is done.
func (s *SessionStore) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("refresh session reservations failed", zap.Error(err))
			}
		}
	}
}

func (s *SessionStore) key(code string) string {
	return "session:code:" + code
}
