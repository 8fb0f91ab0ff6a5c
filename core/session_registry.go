package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionRegistry tracks live session ids so that logout (and
// logout-all) can revoke otherwise self-contained tokens before expiry.
type SessionRegistry interface {
	Create(ctx context.Context, sessionID string, userID int64, ttl time.Duration) error
	Exists(ctx context.Context, sessionID string) (bool, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)
}

// NewSessionID returns a new opaque session correlation id.
func NewSessionID() string {
	return uuid.NewString()
}

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "user_sessions:"
)

// RedisSessionRegistry implements SessionRegistry on go-redis.
type RedisSessionRegistry struct {
	client *redis.Client
}

func NewRedisSessionRegistry(client *redis.Client) *RedisSessionRegistry {
	return &RedisSessionRegistry{client: client}
}

func sessionKey(sessionID string) string { return sessionKeyPrefix + sessionID }

func userSessionsKey(userID int64) string {
	return userSessionKeyPrefix + strconv.FormatInt(userID, 10)
}

// Create records the session with a TTL matching the token lifetime and
// indexes it under the owning user for bulk revocation.
func (r *RedisSessionRegistry) Create(ctx context.Context, sessionID string, userID int64, ttl time.Duration) error {
	if sessionID == "" {
		return errors.New("empty session id")
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sessionID), userID, ttl)
	pipe.SAdd(ctx, userSessionsKey(userID), sessionID)
	pipe.Expire(ctx, userSessionsKey(userID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

func (r *RedisSessionRegistry) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisSessionRegistry) Delete(ctx context.Context, sessionID string) error {
	uid, err := r.client.Get(ctx, sessionKey(sessionID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sessionID))
	if err == nil {
		pipe.SRem(ctx, userSessionsKey(uid), sessionID)
	}
	_, execErr := pipe.Exec(ctx)
	return execErr
}

// DeleteAllForUser revokes every live session of the user and returns
// how many were removed.
func (r *RedisSessionRegistry) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	ids, err := r.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userSessionsKey(userID))
	removed, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	// The index key itself does not count as a revoked session.
	if removed > 0 {
		removed--
	}
	return removed, nil
}
