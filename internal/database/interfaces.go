package database

import (
	"context"
	"errors"
	"time"
)

// ExpiringStore is a key-value store whose entries vanish at an absolute expiry.
// Reads and writes of a single key are atomic.
type ExpiringStore interface {
	// Get returns ErrKeyNotFound when the key is absent or expired
	Get(ctx context.Context, key string) ([]byte, error)
	// Set overwrites key; an expiresAt in the past removes it
	Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	// Delete is a no-op for absent keys
	Delete(ctx context.Context, key string) error
	Close() error
}

// Locker serializes mutations of one logical record across callers
type Locker interface {
	// Lock blocks until key is held or ctx ends. The returned func releases it.
	Lock(ctx context.Context, key string) (func(), error)
}

// Swapper commits a write only while the key still holds what the caller read.
// Locks are leases on some backends; this is the check that survives a lapsed lease.
type Swapper interface {
	// CompareAndSwap returns ErrConflict when key is gone or no longer holds old
	CompareAndSwap(ctx context.Context, key string, old, value []byte, expiresAt time.Time) error
}

// LockingStore is an ExpiringStore that also serializes writers per key
type LockingStore interface {
	ExpiringStore
	Locker
	Swapper
}

// Sweeper is implemented by backends without native expiry
type Sweeper interface {
	// Sweep removes expired entries and returns how many were dropped
	Sweep(ctx context.Context) (int64, error)
}

// Store errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrLockTimeout = errors.New("timed out waiting for lock")
	ErrStoreClosed = errors.New("store closed")
	ErrConflict    = errors.New("value changed by another writer")
)
