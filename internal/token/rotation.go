package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// UserDirectory is the user lookup the engine needs at rotation time
type UserDirectory interface {
	// GetUserByID returns ErrUserNotFound for unknown ids
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// TokenResponse is returned by login and rotation
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

const tokenTypeBearer = "Bearer"

// RotationEngine validates refresh tokens against their family and either
// rotates the family or revokes it. Every mutation of a family happens while
// holding that family's lock.
type RotationEngine struct {
	families *FamilyStore
	users    UserDirectory
	issuer   *AccessTokenIssuer
	grace    time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewRotationEngine(
	families *FamilyStore,
	users UserDirectory,
	issuer *AccessTokenIssuer,
	grace time.Duration,
	now func() time.Time,
	logger *slog.Logger,
) *RotationEngine {
	return &RotationEngine{
		families: families,
		users:    users,
		issuer:   issuer,
		grace:    grace,
		now:      now,
		logger:   logger,
	}
}

// Rotate redeems refreshToken for userID.
//
// An unknown token fails with ErrInvalidToken and touches nothing. A token that
// resolves to a family but is not acceptable (wrong user, reused, outside the
// grace window) revokes the whole family before failing with ErrTokenRevoked.
func (e *RotationEngine) Rotate(ctx context.Context, refreshToken, userID string) (*TokenResponse, error) {
	familyID, err := e.families.GetByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrFamilyNotFound) {
			e.logger.Warn("⚠️ [RotationEngine] Unknown refresh token")
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	unlock, err := e.families.lockFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	family, err := e.families.Get(ctx, familyID)
	if err != nil {
		if errors.Is(err, ErrFamilyNotFound) {
			e.logger.Warn("⚠️ [RotationEngine] Token family missing or expired", "family_id", familyID)
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if family.IsRevoked {
		e.logger.Warn("⚠️ [RotationEngine] Refresh attempted on revoked family",
			"family_id", familyID,
			"revoked_reason", family.RevokedReason,
		)
		return nil, ErrTokenRevoked
	}

	if family.UserID != userID {
		e.logger.Warn("🚨 [RotationEngine] User mismatch on refresh",
			"family_id", familyID,
			"family_user_id", family.UserID,
			"user_id", userID,
		)
		if err := e.detectReuse(ctx, family, ReasonUserMismatch); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenRevoked, ErrUserMismatch)
	}

	presented := digest(refreshToken)
	now := e.now()

	if family.matchesCurrent(presented) {
		return e.rotateLocked(ctx, family)
	}

	if family.matchesParent(presented) && family.parentRedeemable(now, e.grace) {
		if family.ParentTokenUsed {
			if err := e.detectReuse(ctx, family, ReasonParentReused); err != nil {
				return nil, err
			}
			return nil, ErrTokenRevoked
		}

		e.logger.Info("⏳ [RotationEngine] Parent token redeemed within grace period", "family_id", familyID)

		family.ParentTokenUsed = true
		if err := e.families.Save(ctx, family); err != nil {
			return nil, e.commitFailed(family, err)
		}
		return e.rotateLocked(ctx, family)
	}

	if err := e.detectReuse(ctx, family, ReasonReuseDetected); err != nil {
		return nil, err
	}
	return nil, ErrTokenRevoked
}

// rotateLocked issues a new pair and advances the family. Caller holds the family lock.
func (e *RotationEngine) rotateLocked(ctx context.Context, family *Family) (*TokenResponse, error) {
	user, err := e.users.GetUserByID(ctx, family.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.logger.Warn("⚠️ [RotationEngine] Family owner no longer exists",
				"family_id", family.FamilyID,
				"user_id", family.UserID,
			)
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	newRefreshToken, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	accessToken, err := e.issuer.Issue(user)
	if err != nil {
		return nil, err
	}

	// Nothing has been written yet, so an abandoned request stops here.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := e.now()
	oldDigest := family.advance(digest(newRefreshToken), now)

	// Saving the family is the commit point. The index writes that follow
	// finish even if the caller goes away, otherwise the old token could keep
	// its full TTL while the new one never resolves.
	if err := e.families.Save(ctx, family); err != nil {
		return nil, e.commitFailed(family, err)
	}
	writeCtx := context.WithoutCancel(ctx)

	if err := e.families.setIndex(writeCtx, family.CurrentToken, family.FamilyID, family.ExpiresAt); err != nil {
		return nil, err
	}

	graceEnd := now.Add(e.grace)
	if graceEnd.After(family.ExpiresAt) {
		graceEnd = family.ExpiresAt
	}
	if err := e.families.setIndex(writeCtx, oldDigest, family.FamilyID, graceEnd); err != nil {
		// The stale entry still resolves to this family, where it can only be
		// treated as reuse, so the rotation stands.
		e.logger.Warn("⚠️ [RotationEngine] Failed to shorten previous token index",
			"family_id", family.FamilyID,
			"error", err,
		)
	}

	e.logger.Info("🔄 [RotationEngine] Refresh token rotated",
		"family_id", family.FamilyID,
		"user_id", family.UserID,
	)

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresIn:    int64(e.issuer.Lifetime() / time.Second),
		TokenType:    tokenTypeBearer,
	}, nil
}

// commitFailed classifies a failed family save. Losing the compare-and-swap
// means another holder rotated or revoked the family after our lock lapsed;
// the presented token is spent either way.
func (e *RotationEngine) commitFailed(family *Family, err error) error {
	if errors.Is(err, ErrFamilyChanged) {
		e.logger.Warn("⚠️ [RotationEngine] Family changed while rotating, rotation dropped",
			"family_id", family.FamilyID,
		)
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return err
}

func (e *RotationEngine) detectReuse(ctx context.Context, family *Family, reason string) error {
	if _, err := e.revokeLocked(ctx, family, reason); err != nil {
		return fmt.Errorf("failed to revoke family after reuse: %w", err)
	}
	e.logger.Warn("🚨 [RotationEngine] Token reuse detected, family revoked",
		"family_id", family.FamilyID,
		"user_id", family.UserID,
		"reason", reason,
	)
	return nil
}

// Revoke terminates a family. Revoking an unknown or already revoked family is a no-op.
func (e *RotationEngine) Revoke(ctx context.Context, familyID, reason string) error {
	_, err := e.revoke(ctx, familyID, reason)
	return err
}

// revoke reports whether this call changed the family's state
func (e *RotationEngine) revoke(ctx context.Context, familyID, reason string) (bool, error) {
	unlock, err := e.families.lockFamily(ctx, familyID)
	if err != nil {
		return false, err
	}
	defer unlock()

	family, err := e.families.Get(ctx, familyID)
	if err != nil {
		if errors.Is(err, ErrFamilyNotFound) {
			return false, nil
		}
		return false, err
	}
	return e.revokeLocked(ctx, family, reason)
}

// maxRevokeAttempts bounds the reload-and-retry loop when a revoke races a commit
const maxRevokeAttempts = 3

func (e *RotationEngine) revokeLocked(ctx context.Context, family *Family, reason string) (bool, error) {
	for attempt := 1; ; attempt++ {
		if family.IsRevoked {
			return false, nil
		}

		family.markRevoked(reason, e.now())
		err := e.families.Save(ctx, family)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrFamilyChanged) || attempt == maxRevokeAttempts {
			return false, err
		}

		// Revoke whatever the other writer committed, including its new token.
		family, err = e.families.Get(ctx, family.FamilyID)
		if err != nil {
			if errors.Is(err, ErrFamilyNotFound) {
				return false, nil
			}
			return false, err
		}
	}

	// The family record stays for audit until it expires; only the index goes.
	writeCtx := context.WithoutCancel(ctx)
	if err := e.families.deleteIndex(writeCtx, family.CurrentToken); err != nil {
		return true, err
	}
	if family.ParentToken != "" {
		if err := e.families.deleteIndex(writeCtx, family.ParentToken); err != nil {
			return true, err
		}
	}

	e.logger.Info("🔒 [RotationEngine] Token family revoked",
		"family_id", family.FamilyID,
		"reason", reason,
	)
	return true, nil
}
