package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EgehanKilicarslan/authgate/internal/database"
)

const blacklistKeyPrefix = "blacklist:"

// BlacklistStore remembers revoked access-token ids until the token would
// have expired anyway.
type BlacklistStore struct {
	store  database.ExpiringStore
	now    func() time.Time
	logger *slog.Logger
}

func NewBlacklistStore(store database.ExpiringStore, now func() time.Time, logger *slog.Logger) *BlacklistStore {
	return &BlacklistStore{store: store, now: now, logger: logger}
}

func blacklistKey(jti string) string {
	return blacklistKeyPrefix + jti
}

// Add records jti until expiresAt. An already-expired token is skipped.
func (b *BlacklistStore) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return errors.New("jti is required")
	}
	if !b.now().Before(expiresAt) {
		b.logger.Debug("⏭️ [Blacklist] Token already expired, skipping", "jti", jti)
		return nil
	}

	if err := b.store.Set(ctx, blacklistKey(jti), []byte("true"), expiresAt); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}

	b.logger.Info("🚫 [Blacklist] Access token blacklisted", "jti", jti, "expires_at", expiresAt)
	return nil
}

func (b *BlacklistStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	_, err := b.store.Get(ctx, blacklistKey(jti))
	if err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return true, nil
}
