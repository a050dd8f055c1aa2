package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldToken   = "token"
	fieldUser    = "user"
	fieldLoading = "loading"
)

// RedisBackend keeps client stores as Redis hashes and persistent cache
// entries as plain string keys, both namespaced by client ID.
//
//	store:  <prefix>:store:<client>          HASH token|user|loading
//	cache:  <prefix>:cache:<client>:<key>    STRING
type RedisBackend struct {
	redis    redis.UniversalClient
	prefix   string
	storeTTL time.Duration
	cacheTTL time.Duration
}

// NewRedisBackend creates a [RedisBackend]. storeTTL bounds an idle store;
// cacheTTL bounds persistent cache entries. Zero disables expiry.
func NewRedisBackend(
	client redis.UniversalClient,
	prefix string,
	storeTTL time.Duration,
	cacheTTL time.Duration,
) *RedisBackend {
	if prefix == "" {
		prefix = "pg"
	}
	return &RedisBackend{
		redis:    client,
		prefix:   prefix,
		storeTTL: storeTTL,
		cacheTTL: cacheTTL,
	}
}

func (b *RedisBackend) storeKey(clientID string) string {
	return b.prefix + ":store:" + clientID
}

func (b *RedisBackend) cacheKey(clientID, key string) string {
	return b.prefix + ":cache:" + clientID + ":" + key
}

func (b *RedisBackend) Store(clientID string) Store {
	return &RedisStore{backend: b, key: b.storeKey(clientID)}
}

func (b *RedisBackend) Cache(clientID string) Cache {
	return &RedisCache{backend: b, clientID: clientID}
}

// Ping returns a point-in-time Redis availability check and latency.
func (b *RedisBackend) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := b.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return time.Since(start), nil
}

// RedisStore is the Store of a single client.
type RedisStore struct {
	backend *RedisBackend
	key     string
}

// Snapshot reads the whole store in one HGETALL. A user field that no
// longer decodes is reported as absent so the guard can rehydrate it.
func (s *RedisStore) Snapshot(ctx context.Context) (State, error) {
	fields, err := s.backend.redis.HGetAll(ctx, s.key).Result()
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	state := State{
		Token:   fields[fieldToken],
		Loading: fields[fieldLoading] == "1",
	}
	if raw, ok := fields[fieldUser]; ok && raw != "" {
		if user, err := ParseUserRecord([]byte(raw)); err == nil {
			state.User = user
		}
	}
	return state, nil
}

func (s *RedisStore) SetUser(ctx context.Context, user UserRecord) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.write(ctx, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, s.key, fieldUser, data)
	})
}

func (s *RedisStore) SetToken(ctx context.Context, token string) error {
	return s.write(ctx, func(pipe redis.Pipeliner) {
		if token == "" {
			pipe.HDel(ctx, s.key, fieldToken)
			return
		}
		pipe.HSet(ctx, s.key, fieldToken, token)
	})
}

func (s *RedisStore) SetLoading(ctx context.Context, loading bool) error {
	v := "0"
	if loading {
		v = "1"
	}
	return s.write(ctx, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, s.key, fieldLoading, v)
	})
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.backend.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *RedisStore) write(ctx context.Context, fn func(redis.Pipeliner)) error {
	_, err := s.backend.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(pipe)
		if s.backend.storeTTL > 0 {
			pipe.Expire(ctx, s.key, s.backend.storeTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// RedisCache is the persistent Cache of a single client.
type RedisCache struct {
	backend  *RedisBackend
	clientID string
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.backend.redis.Get(ctx, c.backend.cacheKey(c.clientID, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	if err := c.backend.redis.Set(ctx, c.backend.cacheKey(c.clientID, key), value, c.backend.cacheTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.backend.cacheKey(c.clientID, k)
	}
	if err := c.backend.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
