package signaling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// putAnswer checks for the offer and sets the answer if absent in one step.
// Returns -1 when the offer is missing, 0 when the answer already exists.
var putAnswer = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
local ok
if tonumber(ARGV[2]) > 0 then
	ok = redis.call("SET", KEYS[2], ARGV[1], "NX", "PX", ARGV[2])
else
	ok = redis.call("SET", KEYS[2], ARGV[1], "NX")
end
if ok then
	return 1
end
return 0
`)

// RedisStore is a Store backed by Redis. Records expire after the configured
// TTL, which bounds storage growth without a sweeper.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the record time-to-live. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix. Default is "detect".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed signaling store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(10 * time.Minute),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    10 * time.Minute,
		prefix: "detect",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(id string, field models.Field) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, field, id)
}

func (s *RedisStore) Put(ctx context.Context, id string, field models.Field, blob []byte) error {
	if err := checkArgs(id, field); err != nil {
		return err
	}

	if field == models.FieldOffer {
		ok, err := s.client.SetNX(ctx, s.key(id, field), blob, s.ttl).Result()
		if err != nil {
			return fmt.Errorf("%w: redis setnx failed: %w", apperrors.ErrSignalingWrite, err)
		}
		if !ok {
			return apperrors.ErrAlreadyExists
		}
		return nil
	}

	keys := []string{s.key(id, models.FieldOffer), s.key(id, models.FieldAnswer)}
	res, err := putAnswer.Run(ctx, s.client, keys, blob, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("%w: redis script failed: %w", apperrors.ErrSignalingWrite, err)
	}
	switch res {
	case -1:
		return apperrors.ErrNotFound
	case 0:
		return apperrors.ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string, field models.Field) ([]byte, error) {
	if err := checkArgs(id, field); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.key(id, field)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}
