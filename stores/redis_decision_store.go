package stores

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/permit"
)

const defaultDecisionPrefix = "permit:decision:"

// RedisDecisionStore shares cached decisions through Redis. Keys are the
// hashed CacheKey under a prefix; Clear removes every key under the prefix.
type RedisDecisionStore struct {
	client redis.Cmdable
	prefix string
}

type RedisDecisionOption func(*RedisDecisionStore)

// WithKeyPrefix scopes the store, e.g. per service or per subject session.
func WithKeyPrefix(prefix string) RedisDecisionOption {
	return func(s *RedisDecisionStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func NewRedisDecisionStore(client redis.Cmdable, opts ...RedisDecisionOption) *RedisDecisionStore {
	s := &RedisDecisionStore{client: client, prefix: defaultDecisionPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisDecisionStoreFromURL dials a redis:// URL.
func NewRedisDecisionStoreFromURL(url string, opts ...RedisDecisionOption) (*RedisDecisionStore, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisDecisionStore(redis.NewClient(o), opts...), nil
}

func (s *RedisDecisionStore) key(k permit.CacheKey) string {
	return s.prefix + k.Hash()
}

func (s *RedisDecisionStore) Get(ctx context.Context, key permit.CacheKey) (permit.CacheEntry, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return permit.CacheEntry{}, false, nil
	}
	if err != nil {
		return permit.CacheEntry{}, false, err
	}
	var e permit.CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return permit.CacheEntry{}, false, err
	}
	return e, true, nil
}

func (s *RedisDecisionStore) Set(ctx context.Context, key permit.CacheKey, entry permit.CacheEntry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), raw, ttl).Err()
}

func (s *RedisDecisionStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 256).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
