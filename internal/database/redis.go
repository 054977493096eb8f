package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/EgehanKilicarslan/authgate/internal/config"
)

// releaseLockScript deletes the lock only if it still carries our token, so a
// holder whose lease expired never frees somebody else's lock.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// compareAndSwapScript overwrites KEYS[1] only if it still holds ARGV[1].
// ARGV[3] is the new TTL in milliseconds; a non-positive TTL deletes the key.
var compareAndSwapScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl <= 0 then
	redis.call("DEL", KEYS[1])
else
	redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
end
return 1
`)

const (
	lockRetryMin = 5 * time.Millisecond
	lockRetryMax = 100 * time.Millisecond

	// used only when the config skipped Validate, as tests do
	defaultLockWait = 2 * time.Second
	defaultLockTTL  = 5 * time.Second
)

// RedisClient wraps the redis client as an ExpiringStore with distributed locking
type RedisClient struct {
	client   *redis.Client
	logger   *slog.Logger
	cfg      *config.Config
	now      func() time.Time
	lockWait time.Duration
	lockTTL  time.Duration
}

// NewRedisClient creates a new Redis client instance
func NewRedisClient(cfg *config.Config, logger *slog.Logger) (*RedisClient, error) {
	logger.Info("🔌 [Redis] Connecting to Redis...",
		"host", cfg.RedisHost,
		"port", cfg.RedisPort,
		"db", cfg.RedisDB,
	)

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       int(cfg.RedisDB),
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("✅ [Redis] Redis connection established")

	return NewRedisClientForTesting(client, cfg, logger), nil
}

// NewRedisClientForTesting creates a Redis client with a provided redis.Client (for testing)
func NewRedisClientForTesting(client *redis.Client, cfg *config.Config, logger *slog.Logger) *RedisClient {
	lockWait := cfg.LockWait()
	if lockWait <= 0 {
		lockWait = defaultLockWait
		logger.Warn("⚠️ [Redis] Lock wait not configured, using default", "lock_wait", lockWait)
	}
	lockTTL := cfg.LockLease()
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
		logger.Warn("⚠️ [Redis] Lock TTL not configured, using default", "lock_ttl", lockTTL)
	}

	return &RedisClient{
		client:   client,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		lockWait: lockWait,
		lockTTL:  lockTTL,
	}
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		r.logger.Error("❌ [Redis] Failed to get key", "error", err)
		return nil, err
	}
	return value, nil
}

// Set stores value with a TTL derived from expiresAt; a past expiry deletes the key
func (r *RedisClient) Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.Delete(ctx, key)
	}

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Error("❌ [Redis] Failed to set key", "ttl", ttl, "error", err)
		return err
	}
	return nil
}

func (r *RedisClient) CompareAndSwap(ctx context.Context, key string, old, value []byte, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now()).Milliseconds()

	swapped, err := compareAndSwapScript.Run(ctx, r.client, []string{key}, old, value, ttl).Int()
	if err != nil {
		r.logger.Error("❌ [Redis] Failed to compare-and-swap key", "error", err)
		return err
	}
	if swapped == 0 {
		return ErrConflict
	}
	return nil
}

func (r *RedisClient) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Error("❌ [Redis] Failed to delete key", "error", err)
		return err
	}
	return nil
}

// Lock acquires a lease-based lock (SET NX PX) shared by every instance using this Redis.
func (r *RedisClient) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, r.lockWait)
	defer cancel()

	backoff := lockRetryMin
	for {
		ok, err := r.client.SetNX(waitCtx, key, token, r.lockTTL).Result()
		if err != nil && waitCtx.Err() == nil {
			r.logger.Error("❌ [Redis] Failed to acquire lock", "key", key, "error", err)
			return nil, err
		}
		if ok {
			break
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, lockRetryMax)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if err := releaseLockScript.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil {
				r.logger.Warn("⚠️ [Redis] Failed to release lock, lease will expire", "key", key, "error", err)
			}
		})
	}
	return release, nil
}

// GetClient returns the underlying Redis client (for advanced use cases)
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}
