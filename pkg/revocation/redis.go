package revocation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"authd/pkg/tokens"
)

// RedisStore keeps blacklist entries as keys with a TTL equal to the token's
// remaining lifetime, so Redis expires them itself and PurgeExpired has
// nothing to do. Suitable for multi-process deployments that want to keep the
// hot-path lookup off Postgres.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "revoked:"}
}

func (s *RedisStore) Record(ctx context.Context, jti, principalID string, kind tokens.Kind, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// already past natural expiry, nothing to blacklist
		return nil
	}
	return s.client.Set(ctx, s.prefix+jti, principalID+":"+string(kind), ttl).Err()
}

func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeExpired is a no-op: Redis TTLs already reap expired entries.
func (s *RedisStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
