package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"course-advisor-be/pkg/advisor/session"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "advisor:session:"

// RedisSessionRepository stores session contexts in Redis so any instance can
// load them. Expiry is the Redis key TTL, refreshed on every save.
//
// Updates are serialized only within one process (session.Store's keyed
// mutex). Two instances updating the same session at once race on a plain
// GET then SET, and the later save wins. Route a session to one instance if
// that matters.
type RedisSessionRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSessionRepository(rdb *redis.Client, ttl time.Duration) *RedisSessionRepository {
	if ttl <= 0 {
		ttl = 45 * time.Minute
	}
	return &RedisSessionRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisSessionRepository) Load(ctx context.Context, id string) (*session.Context, bool, error) {
	raw, err := r.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var sc session.Context
	if err := json.Unmarshal(raw, &sc); err != nil {
		// A corrupt entry is treated as absent and overwritten on next save.
		return nil, false, nil
	}
	return &sc, true, nil
}

func (r *RedisSessionRepository) Save(ctx context.Context, sc *session.Context) error {
	raw, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.rdb.Set(ctx, sessionKeyPrefix+sc.Id, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
