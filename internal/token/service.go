package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EgehanKilicarslan/authgate/internal/config"
	"github.com/EgehanKilicarslan/authgate/internal/database"
)

// Service is the token lifecycle API consumed by the HTTP and gRPC layers
type Service interface {
	IssueAccessToken(user *User) (string, error)
	GenerateRefreshToken() (string, error)
	CreateFamily(ctx context.Context, userID, refreshToken string) (string, error)

	// IssueLoginTokens mints both tokens and opens a new family for user
	IssueLoginTokens(ctx context.Context, user *User) (*TokenResponse, error)
	// Rotate fails with ErrUnauthorized for every token-level failure
	Rotate(ctx context.Context, refreshToken, userID string) (*TokenResponse, error)

	RevokeFamily(ctx context.Context, familyID, reason string) error
	RevokeUserFamilies(ctx context.Context, userID, reason string) (int, error)
	// Logout revokes the family of refreshToken and blacklists the access token
	Logout(ctx context.Context, refreshToken string, access *Claims) error

	IsBlacklisted(ctx context.Context, jti string) (bool, error)
	Blacklist(ctx context.Context, jti string, expiresAt time.Time) error

	FamilyIDForToken(ctx context.Context, refreshToken string) (string, bool, error)
	UserIDForToken(ctx context.Context, refreshToken string) (string, bool, error)

	// AuthenticateAccessToken verifies the token and then checks the blacklist
	AuthenticateAccessToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Options configures the token lifecycle
type Options struct {
	Secret          string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	GracePeriod     time.Duration
	Now             func() time.Time
}

// OptionsFromConfig maps the service configuration onto Options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Secret:          cfg.JWTSecret,
		Issuer:          cfg.JWTIssuer,
		Audience:        cfg.JWTAudience,
		AccessTokenTTL:  cfg.AccessTokenTTL(),
		RefreshTokenTTL: cfg.RefreshTokenTTL(),
		GracePeriod:     cfg.GracePeriod(),
	}
}

type tokenService struct {
	issuer    *AccessTokenIssuer
	families  *FamilyStore
	engine    *RotationEngine
	blacklist *BlacklistStore
	logger    *slog.Logger
}

// NewService wires the token components over store. It fails on settings that
// would make tokens unsafe, such as a short signing secret.
func NewService(store database.LockingStore, users UserDirectory, opts Options, logger *slog.Logger) (Service, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("refresh token lifetime must be positive, got %s", opts.RefreshTokenTTL)
	}
	if opts.GracePeriod < 0 {
		return nil, fmt.Errorf("grace period must not be negative, got %s", opts.GracePeriod)
	}

	issuer, err := NewAccessTokenIssuer(opts.Secret, opts.Issuer, opts.Audience, opts.AccessTokenTTL, opts.Now)
	if err != nil {
		return nil, err
	}

	families := NewFamilyStore(store, opts.RefreshTokenTTL, opts.Now, logger)

	return &tokenService{
		issuer:    issuer,
		families:  families,
		engine:    NewRotationEngine(families, users, issuer, opts.GracePeriod, opts.Now, logger),
		blacklist: NewBlacklistStore(store, opts.Now, logger),
		logger:    logger,
	}, nil
}

func (s *tokenService) IssueAccessToken(user *User) (string, error) {
	return s.issuer.Issue(user)
}

func (s *tokenService) GenerateRefreshToken() (string, error) {
	return GenerateRefreshToken()
}

func (s *tokenService) CreateFamily(ctx context.Context, userID, refreshToken string) (string, error) {
	return s.families.Create(ctx, userID, refreshToken)
}

func (s *tokenService) IssueLoginTokens(ctx context.Context, user *User) (*TokenResponse, error) {
	accessToken, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}
	refreshToken, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := s.families.Create(ctx, user.ID, refreshToken); err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.issuer.Lifetime() / time.Second),
		TokenType:    tokenTypeBearer,
	}, nil
}

func (s *tokenService) Rotate(ctx context.Context, refreshToken, userID string) (*TokenResponse, error) {
	resp, err := s.engine.Rotate(ctx, refreshToken, userID)
	if err != nil {
		if isAuthFailure(err) {
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		s.logger.Error("❌ [TokenService] Rotation failed", "error", err)
		return nil, err
	}
	return resp, nil
}

func (s *tokenService) RevokeFamily(ctx context.Context, familyID, reason string) error {
	return s.engine.Revoke(ctx, familyID, reason)
}

// RevokeUserFamilies revokes every live family of userID and returns how many changed state
func (s *tokenService) RevokeUserFamilies(ctx context.Context, userID, reason string) (int, error) {
	familyIDs, err := s.families.UserFamilies(ctx, userID)
	if err != nil {
		return 0, err
	}

	revoked := 0
	var errs []error
	for _, familyID := range familyIDs {
		changed, err := s.engine.revoke(ctx, familyID, reason)
		if err != nil {
			errs = append(errs, fmt.Errorf("family %s: %w", familyID, err))
			continue
		}
		if changed {
			revoked++
		}
	}

	s.logger.Info("🔒 [TokenService] Revoked user token families",
		"user_id", userID,
		"families", len(familyIDs),
		"revoked", revoked,
		"reason", reason,
	)
	return revoked, errors.Join(errs...)
}

func (s *tokenService) Logout(ctx context.Context, refreshToken string, access *Claims) error {
	familyID, found, err := s.FamilyIDForToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	if found {
		if err := s.engine.Revoke(ctx, familyID, ReasonLogout); err != nil {
			return err
		}
	}

	if access != nil && access.ID != "" && access.ExpiresAt != nil {
		if err := s.blacklist.Add(ctx, access.ID, access.ExpiresAt.Time); err != nil {
			return err
		}
	}
	return nil
}

func (s *tokenService) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	return s.blacklist.IsBlacklisted(ctx, jti)
}

func (s *tokenService) Blacklist(ctx context.Context, jti string, expiresAt time.Time) error {
	return s.blacklist.Add(ctx, jti, expiresAt)
}

func (s *tokenService) FamilyIDForToken(ctx context.Context, refreshToken string) (string, bool, error) {
	familyID, err := s.families.GetByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrFamilyNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return familyID, true, nil
}

func (s *tokenService) UserIDForToken(ctx context.Context, refreshToken string) (string, bool, error) {
	familyID, found, err := s.FamilyIDForToken(ctx, refreshToken)
	if err != nil || !found {
		return "", false, err
	}

	family, err := s.families.Get(ctx, familyID)
	if err != nil {
		if errors.Is(err, ErrFamilyNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return family.UserID, true, nil
}

func (s *tokenService) AuthenticateAccessToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.issuer.Parse(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	blacklisted, err := s.blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		s.logger.Warn("⚠️ [TokenService] Blacklisted access token presented", "jti", claims.ID)
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, ErrAccessTokenRevoked)
	}
	return claims, nil
}
