package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/EgehanKilicarslan/authgate/internal/database/models"
)

// SQLStore is an ExpiringStore over the store_entries table. The table has no
// native expiry, so reads filter on expires_at and Sweep deletes stale rows.
// Lock is in-process only. Across instances, writers that read a record and
// write it back go through CompareAndSwap, which holds a row lock.
type SQLStore struct {
	*KeyedMutex

	db     *gorm.DB
	now    func() time.Time
	logger *slog.Logger
}

func NewSQLStore(db *gorm.DB, logger *slog.Logger) *SQLStore {
	return NewSQLStoreWithClock(db, logger, time.Now)
}

func NewSQLStoreWithClock(db *gorm.DB, logger *slog.Logger, now func() time.Time) *SQLStore {
	return &SQLStore{
		KeyedMutex: NewKeyedMutex(),
		db:         db,
		now:        now,
		logger:     logger,
	}
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var entry models.StoreEntry
	err := s.db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, s.now().UTC()).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		s.logger.Error("❌ [SQLStore] Failed to read entry", "error", err)
		return nil, err
	}
	return entry.Value, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	if !s.now().Before(expiresAt) {
		return s.Delete(ctx, key)
	}

	entry := models.StoreEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: expiresAt.UTC(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at"}),
	}).Create(&entry).Error
	if err != nil {
		s.logger.Error("❌ [SQLStore] Failed to write entry", "error", err)
		return err
	}
	return nil
}

// CompareAndSwap reads the row FOR UPDATE inside a transaction, so concurrent
// swaps on postgres queue on the row. SQLite serializes writers on its own.
func (s *SQLStore) CompareAndSwap(ctx context.Context, key string, old, value []byte, expiresAt time.Time) error {
	now := s.now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.StoreEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("key = ? AND expires_at > ?", key, now).
			First(&entry).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConflict
			}
			return err
		}
		if !bytes.Equal(entry.Value, old) {
			return ErrConflict
		}

		if !now.Before(expiresAt) {
			return tx.Where("key = ?", key).Delete(&models.StoreEntry{}).Error
		}
		return tx.Model(&models.StoreEntry{}).
			Where("key = ?", key).
			Updates(map[string]any{"value": value, "expires_at": expiresAt.UTC()}).Error
	})
	if err != nil && !errors.Is(err, ErrConflict) {
		s.logger.Error("❌ [SQLStore] Failed to compare-and-swap entry", "error", err)
	}
	return err
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where("key = ?", key).
		Delete(&models.StoreEntry{}).Error
	if err != nil {
		s.logger.Error("❌ [SQLStore] Failed to delete entry", "error", err)
		return err
	}
	return nil
}

// Sweep deletes expired rows and returns how many were removed
func (s *SQLStore) Sweep(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now().UTC()).
		Delete(&models.StoreEntry{})
	if result.Error != nil {
		return 0, result.Error
	}

	if result.RowsAffected > 0 {
		s.logger.Debug("🧹 [SQLStore] Swept expired entries", "removed", result.RowsAffected)
	}
	return result.RowsAffected, nil
}

// Close leaves the shared *gorm.DB open; its owner closes it
func (s *SQLStore) Close() error {
	return nil
}
