package searchcredit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefixEntitlements = "search_entitlements:"

// RedisSessionStore keeps entitlements in a Redis hash per session with a sliding TTL,
// so a paid dimension survives API restarts and requests served by other instances.
type RedisSessionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{redis: client, ttl: ttl}
}

func (s *RedisSessionStore) key(key SessionKey) string {
	return keyPrefixEntitlements + key.String()
}

func (s *RedisSessionStore) Load(ctx context.Context, key SessionKey) (Entitlements, error) {
	var fields *redis.MapStringStringCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, s.key(key))
		pipe.Expire(ctx, s.key(key), s.ttl)
		return nil
	})
	if err != nil {
		return Entitlements{}, fmt.Errorf("load entitlements: %w", err)
	}

	var e Entitlements
	for field, value := range fields.Val() {
		if value == "1" {
			e.MarkPaid(Dimension(field))
		}
	}
	return e, nil
}

func (s *RedisSessionStore) MarkPaid(ctx context.Context, key SessionKey, ds ...Dimension) error {
	if len(ds) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(ds)*2)
	for _, d := range ds {
		values = append(values, string(d), "1")
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(key), values...)
		pipe.Expire(ctx, s.key(key), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark entitlements paid: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Reset(ctx context.Context, key SessionKey) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("reset entitlements: %w", err)
	}
	return nil
}
