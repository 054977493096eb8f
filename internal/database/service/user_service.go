package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/EgehanKilicarslan/authgate/internal/database/models"
	"github.com/EgehanKilicarslan/authgate/internal/database/repository"
	"github.com/EgehanKilicarslan/authgate/internal/token"
)

// UserService defines the interface for user business logic
type UserService interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)

	// SeedDefaultUsers creates the built-in accounts when the users table is empty
	SeedDefaultUsers(ctx context.Context) error
}

// SeedUser is a built-in account created on first start
type SeedUser struct {
	Username string
	Password string
	Roles    []string
}

// DefaultSeedUsers are the accounts created by SeedDefaultUsers
var DefaultSeedUsers = []SeedUser{
	{Username: "admin", Password: "Admin@123", Roles: []string{models.RoleAdmin, models.RoleUser}},
	{Username: "user", Password: "User@123", Roles: []string{models.RoleUser}},
	{Username: "guest", Password: "Guest@123", Roles: []string{models.RoleGuest}},
}

type userService struct {
	userRepo   repository.UserRepository
	bcryptCost int
	logger     *slog.Logger
}

// NewUserService creates a new user service instance
func NewUserService(userRepo repository.UserRepository, logger *slog.Logger) UserService {
	return &userService{
		userRepo:   userRepo,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger,
	}
}

func (s *userService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("❌ [UserService] Failed to find user", "user_id", userID, "error", err)
		return nil, err
	}
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.userRepo.List(ctx)
}

func (s *userService) SeedDefaultUsers(ctx context.Context) error {
	count, err := s.userRepo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Debug("⏭️ [UserService] Users present, skipping seed", "count", count)
		return nil
	}

	for _, seed := range DefaultSeedUsers {
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), s.bcryptCost)
		if err != nil {
			return err
		}

		user := &models.User{
			ID:           uuid.NewString(),
			Username:     seed.Username,
			PasswordHash: string(hash),
			Roles:        seed.Roles,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			s.logger.Error("❌ [UserService] Failed to seed user", "username", seed.Username, "error", err)
			return err
		}
	}

	s.logger.Warn("🌱 [UserService] Seeded default users, change their passwords", "count", len(DefaultSeedUsers))
	return nil
}

// userDirectory adapts the user repository to token.UserDirectory
type userDirectory struct {
	userRepo repository.UserRepository
}

// NewUserDirectory lets the rotation engine look users up in the database
func NewUserDirectory(userRepo repository.UserRepository) token.UserDirectory {
	return &userDirectory{userRepo: userRepo}
}

func (d *userDirectory) GetUserByID(ctx context.Context, id string) (*token.User, error) {
	user, err := d.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, token.ErrUserNotFound
		}
		return nil, err
	}
	return toTokenUser(user), nil
}

func toTokenUser(user *models.User) *token.User {
	return &token.User{
		ID:       user.ID,
		Username: user.Username,
		Roles:    user.Roles,
	}
}
