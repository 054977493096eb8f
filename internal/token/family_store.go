package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/EgehanKilicarslan/authgate/internal/database"
)

// Store key layout
const (
	familyKeyPrefix       = "family:"
	refreshIndexKeyPrefix = "refreshIndex:"
	userFamiliesKeyPrefix = "userFamilies:"
	familyLockKeyPrefix   = "lock:family:"
	userLockKeyPrefix     = "lock:user:"
)

func familyKey(familyID string) string { return familyKeyPrefix + familyID }
func refreshIndexKey(tokenDigest string) string { return refreshIndexKeyPrefix + tokenDigest }
func userFamiliesKey(userID string) string { return userFamiliesKeyPrefix + userID }

// familyRef is one entry of the per-user family list
type familyRef struct {
	FamilyID  string    `json:"family_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FamilyStore persists families and the refresh-token index in an ExpiringStore
type FamilyStore struct {
	store    database.LockingStore
	lifetime time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewFamilyStore(store database.LockingStore, lifetime time.Duration, now func() time.Time, logger *slog.Logger) *FamilyStore {
	return &FamilyStore{
		store:    store,
		lifetime: lifetime,
		now:      now,
		logger:   logger,
	}
}

// Create starts a new family whose current token is refreshToken
func (s *FamilyStore) Create(ctx context.Context, userID, refreshToken string) (string, error) {
	if userID == "" || refreshToken == "" {
		return "", errors.New("user id and refresh token are required")
	}

	now := s.now()
	family := &Family{
		FamilyID:     uuid.NewString(),
		UserID:       userID,
		CurrentToken: digest(refreshToken),
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.lifetime),
	}

	if err := s.Save(ctx, family); err != nil {
		return "", err
	}
	if err := s.setIndex(ctx, family.CurrentToken, family.FamilyID, family.ExpiresAt); err != nil {
		return "", err
	}
	if err := s.addUserFamily(ctx, userID, family.FamilyID, family.ExpiresAt); err != nil {
		return "", err
	}

	s.logger.Info("🆕 [FamilyStore] Token family created",
		"family_id", family.FamilyID,
		"user_id", userID,
		"expires_at", family.ExpiresAt,
	)
	return family.FamilyID, nil
}

// GetByToken resolves a raw refresh token to its family id
func (s *FamilyStore) GetByToken(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrFamilyNotFound
	}

	raw, err := s.store.Get(ctx, refreshIndexKey(digest(refreshToken)))
	if err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			return "", ErrFamilyNotFound
		}
		return "", fmt.Errorf("failed to read refresh index: %w", err)
	}
	return string(raw), nil
}

func (s *FamilyStore) Get(ctx context.Context, familyID string) (*Family, error) {
	raw, err := s.store.Get(ctx, familyKey(familyID))
	if err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			return nil, ErrFamilyNotFound
		}
		return nil, fmt.Errorf("failed to read family: %w", err)
	}

	var family Family
	if err := json.Unmarshal(raw, &family); err != nil {
		return nil, fmt.Errorf("failed to decode family %s: %w", familyID, err)
	}
	family.stored = raw
	return &family, nil
}

// Save writes the family with the family's own expiry. A family that was read
// from the store is only written back if nobody saved it in between; otherwise
// Save fails with ErrFamilyChanged.
func (s *FamilyStore) Save(ctx context.Context, family *Family) error {
	family.Version++
	raw, err := json.Marshal(family)
	if err != nil {
		return fmt.Errorf("failed to encode family: %w", err)
	}

	key := familyKey(family.FamilyID)
	if family.stored == nil {
		err = s.store.Set(ctx, key, raw, family.ExpiresAt)
	} else {
		err = s.store.CompareAndSwap(ctx, key, family.stored, raw, family.ExpiresAt)
	}
	if err != nil {
		if errors.Is(err, database.ErrConflict) {
			return fmt.Errorf("%w: %s", ErrFamilyChanged, family.FamilyID)
		}
		return fmt.Errorf("failed to save family: %w", err)
	}

	family.stored = raw
	return nil
}

func (s *FamilyStore) setIndex(ctx context.Context, tokenDigest, familyID string, expiresAt time.Time) error {
	if err := s.store.Set(ctx, refreshIndexKey(tokenDigest), []byte(familyID), expiresAt); err != nil {
		return fmt.Errorf("failed to write refresh index: %w", err)
	}
	return nil
}

func (s *FamilyStore) deleteIndex(ctx context.Context, tokenDigest string) error {
	if err := s.store.Delete(ctx, refreshIndexKey(tokenDigest)); err != nil {
		return fmt.Errorf("failed to delete refresh index: %w", err)
	}
	return nil
}

func (s *FamilyStore) lockFamily(ctx context.Context, familyID string) (func(), error) {
	return s.store.Lock(ctx, familyLockKeyPrefix+familyID)
}

// addUserFamily appends familyID to the user's list, dropping expired refs
func (s *FamilyStore) addUserFamily(ctx context.Context, userID, familyID string, expiresAt time.Time) error {
	unlock, err := s.store.Lock(ctx, userLockKeyPrefix+userID)
	if err != nil {
		return err
	}
	defer unlock()

	refs, err := s.userFamilyRefs(ctx, userID)
	if err != nil {
		return err
	}
	refs = append(refs, familyRef{FamilyID: familyID, ExpiresAt: expiresAt})

	latest := expiresAt
	for _, ref := range refs {
		if ref.ExpiresAt.After(latest) {
			latest = ref.ExpiresAt
		}
	}

	raw, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("failed to encode user families: %w", err)
	}
	if err := s.store.Set(ctx, userFamiliesKey(userID), raw, latest); err != nil {
		return fmt.Errorf("failed to save user families: %w", err)
	}
	return nil
}

// UserFamilies lists the unexpired family ids created for userID
func (s *FamilyStore) UserFamilies(ctx context.Context, userID string) ([]string, error) {
	refs, err := s.userFamilyRefs(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.FamilyID)
	}
	return ids, nil
}

func (s *FamilyStore) userFamilyRefs(ctx context.Context, userID string) ([]familyRef, error) {
	raw, err := s.store.Get(ctx, userFamiliesKey(userID))
	if err != nil {
		if errors.Is(err, database.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read user families: %w", err)
	}

	var refs []familyRef
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, fmt.Errorf("failed to decode user families: %w", err)
	}

	now := s.now()
	live := refs[:0]
	for _, ref := range refs {
		if now.Before(ref.ExpiresAt) {
			live = append(live, ref)
		}
	}
	return live, nil
}
