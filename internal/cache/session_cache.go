// Package cache keeps recently checked session ledger rows in redis so that
// authenticated requests do not hit Postgres every time.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fastplat/auth/internal/domain"
	"github.com/redis/go-redis/v9"
)

type SessionCache interface {
	// Get returns (nil, nil) on a miss.
	Get(ctx context.Context, token string) (*domain.SessionToken, error)
	Put(ctx context.Context, session *domain.SessionToken) error
	Evict(ctx context.Context, tokens ...string) error
}

type redisSessionCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisSessionCache(client *redis.Client, ttl time.Duration) SessionCache {
	return &redisSessionCache{client: client, ttl: ttl, now: time.Now}
}

// entry is what is stored per token. The token itself is only present as the
// hashed key.
type entry struct {
	ID        int64                 `json:"id"`
	UserID    string                `json:"user_id"`
	Purpose   domain.SessionPurpose `json:"purpose"`
	IsValid   bool                  `json:"is_valid"`
	ExpiresAt *time.Time            `json:"expires_at,omitempty"`
}

func key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "session:" + hex.EncodeToString(sum[:])
}

func (c *redisSessionCache) Get(ctx context.Context, token string) (*domain.SessionToken, error) {
	val, err := c.client.Get(ctx, key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading session cache: %w", err)
	}

	var e entry
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, fmt.Errorf("error decoding cached session: %w", err)
	}

	return &domain.SessionToken{
		ID:        e.ID,
		Token:     token,
		UserID:    e.UserID,
		Purpose:   e.Purpose,
		IsValid:   e.IsValid,
		ExpiresAt: e.ExpiresAt,
	}, nil
}

// Put never caches a session past its own expiry.
func (c *redisSessionCache) Put(ctx context.Context, session *domain.SessionToken) error {
	ttl := c.ttl
	if session.ExpiresAt != nil {
		remaining := session.ExpiresAt.Sub(c.now())
		if remaining <= 0 {
			return nil
		}
		ttl = min(ttl, remaining)
	}

	data, err := encode(session)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, key(session.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("error writing session cache: %w", err)
	}

	return nil
}

func encode(session *domain.SessionToken) ([]byte, error) {
	data, err := json.Marshal(entry{
		ID:        session.ID,
		UserID:    session.UserID,
		Purpose:   session.Purpose,
		IsValid:   session.IsValid,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("error encoding session: %w", err)
	}
	return data, nil
}

func (c *redisSessionCache) Evict(ctx context.Context, tokens ...string) error {
	if len(tokens) == 0 {
		return nil
	}

	keys := make([]string, 0, len(tokens))
	for _, t := range tokens {
		keys = append(keys, key(t))
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error evicting sessions: %w", err)
	}

	return nil
}

type noopSessionCache struct{}

// NewNoopSessionCache is used when redis is disabled.
func NewNoopSessionCache() SessionCache {
	return noopSessionCache{}
}

func (noopSessionCache) Get(context.Context, string) (*domain.SessionToken, error) { return nil, nil }
func (noopSessionCache) Put(context.Context, *domain.SessionToken) error           { return nil }
func (noopSessionCache) Evict(context.Context, ...string) error                    { return nil }
