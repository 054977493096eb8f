package database

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/EgehanKilicarslan/authgate/internal/config"
)

// NewStore builds the ExpiringStore selected by STORE_BACKEND
func NewStore(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (LockingStore, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		logger.Info("💾 [Store] Using in-memory store")
		return NewMemoryStore(logger), nil
	case config.StoreBackendRedis:
		return NewRedisClient(cfg, logger)
	case config.StoreBackendDatabase:
		if db == nil {
			return nil, fmt.Errorf("store backend %q requires a database connection", cfg.StoreBackend)
		}
		logger.Info("💾 [Store] Using database store")
		return NewSQLStore(db, logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
