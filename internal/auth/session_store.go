package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "librarian/internal/errors"
	"librarian/internal/model"
)

const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "user_sessions:"
)

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID  uuid.UUID  `json:"userId"`
	Email   string     `json:"email"`
	Role    model.Role `json:"role"`
	TokenID string     `json:"-"`
}

// SessionStore defines the interface for session token storage operations.
type SessionStore interface {
	Issue(ctx context.Context, user *model.User) (string, error)
	Validate(ctx context.Context, token string) (*Identity, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, userID uuid.UUID) error
	ActiveSessions(ctx context.Context, userID uuid.UUID) (int, error)
}

// sessionData is what Redis keeps per issued token.
type sessionData struct {
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// RedisSessionStore keeps one key per session plus a set of session IDs per
// user. Both are written in one MULTI so a token is never half issued or
// half revoked. Keys expire with the token, and stale set members are swept
// whenever the user logs in again.
type RedisSessionStore struct {
	client *redis.Client
	jwt    *JWTService
}

// Ensure RedisSessionStore implements SessionStore
var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore creates a new session store.
func NewRedisSessionStore(client *redis.Client, jwtService *JWTService) *RedisSessionStore {
	return &RedisSessionStore{client: client, jwt: jwtService}
}

func sessionKey(tokenID string) string {
	return sessionKeyPrefix + tokenID
}

func userSessionsKey(userID string) string {
	return userSessionKeyPrefix + userID
}

// Issue signs a new token for user and records it in the user's session set.
func (s *RedisSessionStore) Issue(ctx context.Context, user *model.User) (string, error) {
	if err := s.sweep(ctx, user.ID.String()); err != nil {
		return "", err
	}

	tokenID, token, expiresAt, err := s.jwt.GenerateToken(user)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	payload, err := json.Marshal(sessionData{
		UserID:    user.ID.String(),
		Email:     user.Email,
		Role:      user.Role,
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: expiresAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	ttl := s.jwt.TTL()
	setKey := userSessionsKey(user.ID.String())
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(tokenID), payload, ttl)
		pipe.SAdd(ctx, setKey, tokenID)
		pipe.Expire(ctx, setKey, ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Validate resolves a token to an identity. The signature and expiry are
// checked first; the session must then still exist in Redis, so a revoked
// token is rejected even though its signature is valid.
func (s *RedisSessionStore) Validate(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, apperrors.ErrInvalidCredential
	}

	data, err := s.client.Get(ctx, sessionKey(claims.ID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if session.UserID != claims.UserID {
		return nil, apperrors.ErrInvalidCredential
	}

	userID, err := uuid.Parse(session.UserID)
	if err != nil {
		return nil, apperrors.ErrInvalidCredential
	}

	return &Identity{
		UserID:  userID,
		Email:   session.Email,
		Role:    session.Role,
		TokenID: claims.ID,
	}, nil
}

// Revoke removes the token's session. Unknown, malformed and already revoked
// tokens are a successful no-op.
func (s *RedisSessionStore) Revoke(ctx context.Context, token string) error {
	claims, err := s.jwt.ParseIgnoringExpiry(token)
	if err != nil {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(claims.ID))
		pipe.SRem(ctx, userSessionsKey(claims.UserID), claims.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAll removes every session of a user.
func (s *RedisSessionStore) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	setKey := userSessionsKey(userID.String())
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, setKey)

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// ActiveSessions counts the user's unexpired sessions.
func (s *RedisSessionStore) ActiveSessions(ctx context.Context, userID uuid.UUID) (int, error) {
	if err := s.sweep(ctx, userID.String()); err != nil {
		return 0, err
	}
	n, err := s.client.SCard(ctx, userSessionsKey(userID.String())).Result()
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return int(n), nil
}

// sweep drops set members whose session key has expired.
func (s *RedisSessionStore) sweep(ctx context.Context, userID string) error {
	setKey := userSessionsKey(userID)
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	stale := make([]interface{}, 0)
	for _, id := range ids {
		n, err := s.client.Exists(ctx, sessionKey(id)).Result()
		if err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if n == 0 {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := s.client.SRem(ctx, setKey, stale...).Err(); err != nil {
		return fmt.Errorf("sweep sessions: %w", err)
	}
	return nil
}
