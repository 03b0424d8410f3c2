//go:build integration

package containers

import (
	"context"
	"fmt"
	"testing"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"docket/internal/platform/config"
	platformredis "docket/internal/platform/redis"
)

// RedisPrefix namespaces every key integration tests write, so Flush never
// touches keys outside the test run.
const RedisPrefix = "docket:test:"

// RedisContainer is a Redis instance reached through the same client the
// server builds from its redis config block.
type RedisContainer struct {
	Container *tcredis.RedisContainer
	URL       string
	Client    *platformredis.Client
}

// NewRedisContainer starts Redis and connects with RedisPrefix. The manager
// shares the container across suites, so no cleanup is registered here.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("redis connection string: %v", err)
	}

	client, err := platformredis.New(ctx, config.RedisConfig{URL: url, Prefix: RedisPrefix})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("connect to redis: %v", err)
	}

	return &RedisContainer{Container: container, URL: url, Client: client}
}

// Flush deletes the keys under the client prefix. Call between tests.
func (r *RedisContainer) Flush(ctx context.Context) error {
	iter := r.Client.Scan(ctx, 0, r.Client.Prefix()+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s*: %w", r.Client.Prefix(), err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.Client.Del(ctx, keys...).Err()
}
