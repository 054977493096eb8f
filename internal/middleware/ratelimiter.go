package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/EgehanKilicarslan/authgate/internal/config"
)

// LoginLimiter counts failed logins per username in Redis
type LoginLimiter struct {
	client      *redis.Client
	maxAttempts int64
	window      time.Duration
	logger      *slog.Logger
}

// NewLoginLimiter connects to the Redis configured in cfg
func NewLoginLimiter(cfg *config.Config, logger *slog.Logger) (*LoginLimiter, error) {
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
		logger.Error("❌ [RateLimiter] Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("✅ [RateLimiter] Connected to Redis",
		"host", cfg.RedisHost,
		"port", cfg.RedisPort,
	)

	return NewLoginLimiterWithClient(client, cfg, logger), nil
}

// NewLoginLimiterWithClient reuses an existing client, e.g. the redis store's
func NewLoginLimiterWithClient(client *redis.Client, cfg *config.Config, logger *slog.Logger) *LoginLimiter {
	return &LoginLimiter{
		client:      client,
		maxAttempts: cfg.LoginMaxAttempts,
		window:      cfg.LoginWindow(),
		logger:      logger,
	}
}

// loginKey generates the Redis key for failed logins
// Format: rate:login:{username}
func loginKey(username string) string {
	return "rate:login:" + strings.ToLower(username)
}

// Allowed reports whether username may attempt another login
func (l *LoginLimiter) Allowed(ctx context.Context, username string) (bool, error) {
	if l.maxAttempts <= 0 {
		return true, nil
	}

	count, err := l.client.Get(ctx, loginKey(username)).Int64()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		l.logger.Error("❌ [RateLimiter] Failed to read login failures", "error", err)
		return true, err
	}

	return count < l.maxAttempts, nil
}

// RecordFailure counts a failed attempt; the window starts at the first failure
func (l *LoginLimiter) RecordFailure(ctx context.Context, username string) error {
	key := loginKey(username)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Error("❌ [RateLimiter] Failed to record login failure", "error", err)
		return err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.Error("❌ [RateLimiter] Failed to set login window", "error", err)
			return err
		}
	}

	if count >= l.maxAttempts && l.maxAttempts > 0 {
		l.logger.Warn("🚫 [RateLimiter] Login attempts exhausted", "username", username, "failures", count)
	}
	return nil
}

// Reset clears the failure count after a successful login
func (l *LoginLimiter) Reset(ctx context.Context, username string) error {
	return l.client.Del(ctx, loginKey(username)).Err()
}

func (l *LoginLimiter) Close() error {
	return l.client.Close()
}

// NoOpLoginLimiter allows every attempt.
// Used when Redis is not available
type NoOpLoginLimiter struct{}

// NewNoOpLoginLimiter creates a no-op limiter
func NewNoOpLoginLimiter(logger *slog.Logger) *NoOpLoginLimiter {
	logger.Warn("⚠️ [RateLimiter] Using no-op login limiter - brute-force protection is disabled")
	return &NoOpLoginLimiter{}
}

func (NoOpLoginLimiter) Allowed(ctx context.Context, username string) (bool, error) {
	return true, nil
}

func (NoOpLoginLimiter) RecordFailure(ctx context.Context, username string) error {
	return nil
}

func (NoOpLoginLimiter) Reset(ctx context.Context, username string) error {
	return nil
}

func (NoOpLoginLimiter) Close() error {
	return nil
}
