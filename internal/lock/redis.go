package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a lease-based lock shared by every process using the same Redis.
// The lease expires after ttl so a crashed holder cannot block a symbol forever.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	poll   time.Duration
	prefix string
	logger *zap.Logger
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker and pings Redis.
func NewRedisLocker(ctx context.Context, addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*RedisLocker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return newRedisLocker(rdb, ttl, logger), nil
}

func newRedisLocker(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLocker{
		rdb:    rdb,
		ttl:    ttl,
		poll:   50 * time.Millisecond,
		prefix: "trade-lock:",
		logger: logger.Named("redis-lock"),
	}
}

// Close releases the Redis connection pool.
func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}

func (l *RedisLocker) key(symbol string) string {
	return l.prefix + symbol
}

// Lock polls SET NX until the lease is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, symbol string) (func(), error) {
	key := l.key(symbol)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		acquired, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if acquired {
			return func() {
				// Release must outlive a cancelled caller context.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Err(); err != nil {
					l.logger.Error("Failed to release lock", zap.String("key", key), zap.Error(err))
				}
			}, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
