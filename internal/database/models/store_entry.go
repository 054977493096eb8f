package models

import "time"

// StoreEntry backs the database ExpiringStore
type StoreEntry struct {
	Key       string    `gorm:"primaryKey;size:255"`
	Value     []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName overrides the table name
func (StoreEntry) TableName() string {
	return "store_entries"
}
