package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	dErrors "docket/pkg/domain-errors"
)

// Redis is a Cache shared between docket processes. Expiry is delegated to
// Redis key TTLs.
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedis stores keys under prefix with ttl. A zero ttl uses DefaultTTL.
func NewRedis(client redis.Cmdable, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, dErrors.Wrap(err, dErrors.CodeStorageIO, "read context cache")
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageIO, "write context cache")
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageIO, "delete context cache entry")
	}
	return nil
}
