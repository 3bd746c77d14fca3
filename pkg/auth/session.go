package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultSessionTTL is how long a login session stays valid
const DefaultSessionTTL = 7 * 24 * time.Hour

// Session is a server-side login session keyed by token hash
type Session struct {
	TokenHash string    `json:"token_hash"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionStore persists sessions by token hash
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, tokenHash string) (*Session, error)
	Delete(ctx context.Context, tokenHash string) error
}

// MemorySessionStore keeps sessions in a bounded in-process LRU with TTL
type MemorySessionStore struct {
	cache *expirable.LRU[string, *Session]
}

// NewMemorySessionStore creates an in-process session store
func NewMemorySessionStore(maxSessions int, ttl time.Duration) *MemorySessionStore {
	if maxSessions <= 0 {
		maxSessions = 10000
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessionStore{
		cache: expirable.NewLRU[string, *Session](maxSessions, nil, ttl),
	}
}

func (s *MemorySessionStore) Save(_ context.Context, session *Session) error {
	s.cache.Add(session.TokenHash, session)
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, tokenHash string) (*Session, error) {
	session, ok := s.cache.Get(tokenHash)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, tokenHash string) error {
	s.cache.Remove(tokenHash)
	return nil
}

// RedisSessionStore shares sessions across instances
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore creates a Redis-backed session store
func NewRedisSessionStore(client *redis.Client, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "session"
	}
	return &RedisSessionStore{client: client, prefix: prefix}
}

func (s *RedisSessionStore) key(tokenHash string) string {
	return fmt.Sprintf("%s:%s", s.prefix, tokenHash)
}

func (s *RedisSessionStore) Save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key(session.TokenHash), data, ttl).Err()
}

func (s *RedisSessionStore) Get(ctx context.Context, tokenHash string) (*Session, error) {
	data, err := s.client.Get(ctx, s.key(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		s.client.Del(ctx, s.key(tokenHash))
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, tokenHash string) error {
	return s.client.Del(ctx, s.key(tokenHash)).Err()
}

// RoleLookup returns a user's current role, or ErrUserNotFound once the
// account is gone
type RoleLookup func(ctx context.Context, userID string) (Role, error)

// SessionManager issues and resolves login sessions
type SessionManager struct {
	store     SessionStore
	generator *TokenGenerator
	ttl       time.Duration
	now       func() time.Time
	roles     RoleLookup
}

// NewSessionManager creates a session manager over the given store
func NewSessionManager(store SessionStore, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		store:     store,
		generator: NewTokenGenerator(),
		ttl:       ttl,
		now:       time.Now,
	}
}

// WithRoleLookup makes Resolve report the user's current role rather than
// the role captured at login, so demotions apply to live sessions. Sessions
// of deleted accounts are revoked on their next use.
func (m *SessionManager) WithRoleLookup(lookup RoleLookup) *SessionManager {
	m.roles = lookup
	return m
}

// TTL returns the session lifetime
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Create issues a session for the principal and returns the raw token.
// The raw token is returned once and never stored.
func (m *SessionManager) Create(ctx context.Context, principal *Principal) (string, *Session, error) {
	token, tokenHash, err := m.generator.GenerateToken()
	if err != nil {
		return "", nil, err
	}

	now := m.now()
	session := &Session{
		TokenHash: tokenHash,
		UserID:    principal.ID,
		Role:      principal.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, session); err != nil {
		return "", nil, fmt.Errorf("failed to save session: %w", err)
	}
	return token, session, nil
}

// Resolve returns the principal for a raw token
func (m *SessionManager) Resolve(ctx context.Context, token string) (*Principal, error) {
	if err := m.generator.ValidateTokenFormat(token); err != nil {
		return nil, ErrSessionNotFound
	}

	tokenHash := m.generator.HashToken(token)
	session, err := m.store.Get(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if session.Expired(m.now()) {
		_ = m.store.Delete(ctx, tokenHash)
		return nil, ErrSessionNotFound
	}

	principal := &Principal{ID: session.UserID, Role: session.Role}
	if m.roles == nil {
		return principal, nil
	}
	role, err := m.roles(ctx, session.UserID)
	if errors.Is(err, ErrUserNotFound) {
		_ = m.store.Delete(ctx, tokenHash)
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current role: %w", err)
	}
	principal.Role = role
	return principal, nil
}

// Revoke deletes the session for a raw token
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	return m.store.Delete(ctx, m.generator.HashToken(token))
}
