package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"matchpoint/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions own timers and locks, so they stay in a local map; Redis carries a
// liveness key per session that expires when the respondent goes quiet.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.RespondentSession
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.RespondentSession),
	}
}

func (s *SessionStore) Save(session *app.RespondentSession) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	// timed sessions stay live until their auto-submit has had a chance to run
	ttl := s.ttl
	if d := session.Deadline(); !d.IsZero() {
		if until := time.Until(d) + s.ttl; until > ttl {
			ttl = until
		}
	}
	// best-effort liveness marker, refreshed on every write
	_ = s.client.Set(context.Background(), s.key(session.ID()), session.QuizID(), ttl).Err()
}

// Get returns the local session unless its liveness key has expired, in which
// case the respondent went quiet for longer than the TTL and the session is dropped.
func (s *SessionStore) Get(sessionID string) (*app.RespondentSession, bool) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	live, err := s.live(ctx, sessionID)
	if err != nil || live {
		// an unreachable redis keeps the session usable
		return session, true
	}
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil, false
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
}

func (s *SessionStore) live(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SessionStore) key(sessionID string) string {
	return "respondent:session:" + sessionID
}
