package service

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/EgehanKilicarslan/authgate/internal/database/models"
	"github.com/EgehanKilicarslan/authgate/internal/database/repository"
	"github.com/EgehanKilicarslan/authgate/internal/token"
)

// AuthService defines the interface for authentication business logic
type AuthService interface {
	Login(ctx context.Context, username, password string) (*models.User, *token.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*token.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string, claims *token.Claims) error
	Authenticate(ctx context.Context, accessToken string) (*token.Claims, error)

	// Admin operations
	RevokeUserTokens(ctx context.Context, userID string) (int, error)
	RevokeFamily(ctx context.Context, familyID string) error
}

// LoginLimiter throttles password guessing per username
type LoginLimiter interface {
	Allowed(ctx context.Context, username string) (bool, error)
	RecordFailure(ctx context.Context, username string) error
	Reset(ctx context.Context, username string) error
}

type authService struct {
	userRepo repository.UserRepository
	tokens   token.Service
	limiter  LoginLimiter
	logger   *slog.Logger

	// compared against when the username is unknown so both paths cost a bcrypt
	dummyHash []byte
}

// NewAuthService creates a new authentication service instance
func NewAuthService(
	userRepo repository.UserRepository,
	tokens token.Service,
	limiter LoginLimiter,
	logger *slog.Logger,
) AuthService {
	dummyHash, _ := bcrypt.GenerateFromPassword([]byte("authgate-dummy-password"), bcrypt.DefaultCost)

	return &authService{
		userRepo:  userRepo,
		tokens:    tokens,
		limiter:   limiter,
		logger:    logger,
		dummyHash: dummyHash,
	}
}

func (s *authService) Login(ctx context.Context, username, password string) (*models.User, *token.TokenResponse, error) {
	s.logger.Info("🔐 [AuthService] Login attempt", "username", username)

	allowed, err := s.limiter.Allowed(ctx, username)
	if err != nil {
		// On error, allow the request but log it
		s.logger.Warn("⚠️ [AuthService] Login limiter unavailable", "error", err)
	} else if !allowed {
		s.logger.Warn("🚫 [AuthService] Too many failed logins", "username", username)
		return nil, nil, ErrTooManyAttempts
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			s.logger.Warn("⚠️ [AuthService] User not found", "username", username)
			s.recordFailure(ctx, username)
			return nil, nil, ErrInvalidCredentials
		}
		s.logger.Error("❌ [AuthService] Database error", "error", err)
		return nil, nil, err
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("⚠️ [AuthService] Invalid password", "username", username)
		s.recordFailure(ctx, username)
		return nil, nil, ErrInvalidCredentials
	}

	if err := s.limiter.Reset(ctx, username); err != nil {
		s.logger.Warn("⚠️ [AuthService] Failed to reset login limiter", "error", err)
	}

	tokens, err := s.tokens.IssueLoginTokens(ctx, toTokenUser(user))
	if err != nil {
		s.logger.Error("❌ [AuthService] Failed to generate tokens", "error", err)
		return nil, nil, err
	}

	s.logger.Info("✅ [AuthService] User logged in successfully", "user_id", user.ID)
	return user, tokens, nil
}

func (s *authService) recordFailure(ctx context.Context, username string) {
	if err := s.limiter.RecordFailure(ctx, username); err != nil {
		s.logger.Warn("⚠️ [AuthService] Failed to record login failure", "error", err)
	}
}

// Refresh resolves the token's owner and then rotates. The owner lookup makes
// the user check inside the rotation engine a safety net rather than the gate.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*token.TokenResponse, error) {
	s.logger.Info("🔄 [AuthService] Token refresh attempt")

	if refreshToken == "" {
		return nil, ErrInvalidToken
	}

	userID, found, err := s.tokens.UserIDForToken(ctx, refreshToken)
	if err != nil {
		s.logger.Error("❌ [AuthService] Failed to resolve refresh token", "error", err)
		return nil, err
	}
	if !found {
		s.logger.Warn("⚠️ [AuthService] Invalid refresh token")
		return nil, ErrInvalidToken
	}

	tokens, err := s.tokens.Rotate(ctx, refreshToken, userID)
	if err != nil {
		if errors.Is(err, token.ErrUnauthorized) {
			return nil, errors.Join(ErrInvalidToken, err)
		}
		return nil, err
	}

	s.logger.Info("✅ [AuthService] Token refreshed successfully", "user_id", userID)
	return tokens, nil
}

func (s *authService) Logout(ctx context.Context, refreshToken string, claims *token.Claims) error {
	s.logger.Info("👋 [AuthService] Logout attempt")

	if err := s.tokens.Logout(ctx, refreshToken, claims); err != nil {
		s.logger.Error("❌ [AuthService] Logout failed", "error", err)
		return err
	}

	s.logger.Info("✅ [AuthService] User logged out successfully")
	return nil
}

func (s *authService) Authenticate(ctx context.Context, accessToken string) (*token.Claims, error) {
	claims, err := s.tokens.AuthenticateAccessToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, token.ErrUnauthorized) {
			return nil, errors.Join(ErrInvalidToken, err)
		}
		return nil, err
	}
	return claims, nil
}

func (s *authService) RevokeUserTokens(ctx context.Context, userID string) (int, error) {
	if _, err := s.userRepo.FindByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	revoked, err := s.tokens.RevokeUserFamilies(ctx, userID, token.ReasonAdminRevoked)
	if err != nil {
		s.logger.Error("❌ [AuthService] Failed to revoke user tokens", "user_id", userID, "error", err)
		return revoked, err
	}
	return revoked, nil
}

func (s *authService) RevokeFamily(ctx context.Context, familyID string) error {
	return s.tokens.RevokeFamily(ctx, familyID, token.ReasonAdminRevoked)
}

// Service errors
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
	ErrUserNotFound       = errors.New("user not found")
)
