package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"newsdesk/internal/adapters/config"
	redisclient "newsdesk/internal/adapters/redis"
	"newsdesk/internal/domain/persistence"
)

// NewRedisClient connects through the redis adapter and clears the
// newsdesk keyspace before and after the test. Keys outside the prefix are
// left alone, so a shared database is safe to point at.
func NewRedisClient(t *testing.T, cfg config.RedisConfig) *redis.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wrapped, err := redisclient.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	client := wrapped.Client()

	if err := PurgeKeys(ctx, client); err != nil {
		t.Fatalf("failed to clear newsdesk keys before test: %v", err)
	}

	t.Cleanup(func() {
		_ = PurgeKeys(context.Background(), client)
		_ = wrapped.Close()
	})

	return client
}

// PurgeKeys deletes every key under persistence.KeyPrefix
func PurgeKeys(ctx context.Context, client *redis.Client) error {
	iter := client.Scan(ctx, 0, persistence.KeyPrefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return client.Del(ctx, batch...).Err()
	}
	return nil
}
