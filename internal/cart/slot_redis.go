package cart

import (
	"context"
	"time"

	"github.com/casadeele/storefront/pkg/redis"
)

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CartSlotKey(sessionID, slot string) string
}

// RedisSlots keeps each session's cart under cde:cart:<session>:<key>. Every
// write refreshes the TTL, so abandoned carts expire on their own.
type RedisSlots struct {
	client redisStore
	key    string
	ttl    time.Duration
}

func NewRedisSlots(client redisStore, key string, ttl time.Duration) *RedisSlots {
	if key == "" {
		key = DefaultSlotKey
	}
	return &RedisSlots{client: client, key: key, ttl: ttl}
}

func (r *RedisSlots) Slot(sessionID string) Slot {
	return redisSlot{store: r, key: r.client.CartSlotKey(sessionID, r.key)}
}

type redisSlot struct {
	store *RedisSlots
	key   string
}

func (s redisSlot) Read(ctx context.Context) ([]byte, error) {
	val, err := s.store.client.Get(ctx, s.key)
	if redis.IsNil(err) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, err
	}
	return []byte(val), nil
}

func (s redisSlot) Write(ctx context.Context, payload []byte) error {
	return s.store.client.Set(ctx, s.key, string(payload), s.store.ttl)
}
