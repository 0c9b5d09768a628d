package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNilClient is returned when a Redis adapter is constructed without a client.
var ErrNilClient = errors.New("cache: redis client is nil")

// scanBatchSize bounds how many keys a single SCAN page requests.
const scanBatchSize = 256

// RedisAdapter implements Adapter on top of a Redis client, letting multiple
// processes share one cache. The caller owns the client lifecycle; the adapter
// never closes it.
type RedisAdapter struct {
	client redis.UniversalClient
}

var _ Adapter = (*RedisAdapter)(nil)
var _ PrefixDeleter = (*RedisAdapter)(nil)

// NewRedisAdapter wraps an existing Redis client. Accepting the universal
// client type covers single-node, sentinel, and cluster deployments.
func NewRedisAdapter(client redis.UniversalClient) (*RedisAdapter, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &RedisAdapter{client: client}, nil
}

// Get retrieves the raw entry stored under key. A missing key reports
// ok=false with a nil error.
func (a *RedisAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := a.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores value under key. A ttl <= 0 stores the entry without expiry.
func (a *RedisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return a.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes key. Deleting an absent key is not an error.
func (a *RedisAdapter) Delete(ctx context.Context, key string) error {
	return a.client.Del(ctx, key).Err()
}

// DeleteByPrefix removes every key starting with prefix, scanning in pages so
// large keyspaces never pin a single round-trip. The prefix is used verbatim
// in the MATCH pattern.
func (a *RedisAdapter) DeleteByPrefix(ctx context.Context, prefix string) error {
	pattern := prefix + "*"

	var cursor uint64
	for {
		keys, next, err := a.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := a.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
