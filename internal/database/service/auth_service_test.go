package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/EgehanKilicarslan/authgate/internal/database"
	"github.com/EgehanKilicarslan/authgate/internal/database/models"
	"github.com/EgehanKilicarslan/authgate/internal/database/repository"
	"github.com/EgehanKilicarslan/authgate/internal/logger"
	"github.com/EgehanKilicarslan/authgate/internal/token"
)

// MockUserRepository is a mock implementation of repository.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockLoginLimiter is a mock implementation of LoginLimiter
type MockLoginLimiter struct {
	mock.Mock
}

func (m *MockLoginLimiter) Allowed(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockLoginLimiter) RecordFailure(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *MockLoginLimiter) Reset(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func testUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "11111111-1111-1111-1111-111111111111",
		Username:     "user",
		PasswordHash: string(hash),
		Roles:        []string{models.RoleUser},
	}
}

func newTestAuthService(t *testing.T, repo *MockUserRepository, limiter *MockLoginLimiter) AuthService {
	t.Helper()

	tokens, err := token.NewService(database.NewMemoryStore(logger.Discard()), NewUserDirectory(repo), token.Options{
		Secret:          "auth-service-test-secret-0123456789abcdef",
		Issuer:          "authgate-test",
		Audience:        "authgate-test-clients",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		GracePeriod:     30 * time.Second,
	}, logger.Discard())
	require.NoError(t, err)

	return NewAuthService(repo, tokens, limiter, logger.Discard())
}

func TestLogin_Success(t *testing.T) {
	repo := new(MockUserRepository)
	limiter := new(MockLoginLimiter)
	user := testUser(t, "User@123")

	limiter.On("Allowed", mock.Anything, "user").Return(true, nil)
	limiter.On("Reset", mock.Anything, "user").Return(nil)
	repo.On("FindByUsername", mock.Anything, "user").Return(user, nil)

	svc := newTestAuthService(t, repo, limiter)
	got, tokens, err := svc.Login(context.Background(), "user", "User@123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	limiter.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestLogin_WrongPasswordRecordsFailure(t *testing.T) {
	repo := new(MockUserRepository)
	limiter := new(MockLoginLimiter)

	limiter.On("Allowed", mock.Anything, "user").Return(true, nil)
	limiter.On("RecordFailure", mock.Anything, "user").Return(nil)
	repo.On("FindByUsername", mock.Anything, "user").Return(testUser(t, "User@123"), nil)

	svc := newTestAuthService(t, repo, limiter)
	_, _, err := svc.Login(context.Background(), "user", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	limiter.AssertCalled(t, "RecordFailure", mock.Anything, "user")
	limiter.AssertNotCalled(t, "Reset", mock.Anything, mock.Anything)
}

func TestLogin_UnknownUser(t *testing.T) {
	repo := new(MockUserRepository)
	limiter := new(MockLoginLimiter)

	limiter.On("Allowed", mock.Anything, "ghost").Return(true, nil)
	limiter.On("RecordFailure", mock.Anything, "ghost").Return(nil)
	repo.On("FindByUsername", mock.Anything, "ghost").Return(nil, repository.ErrUserNotFound)

	svc := newTestAuthService(t, repo, limiter)
	_, _, err := svc.Login(context.Background(), "ghost", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_Throttled(t *testing.T) {
	repo := new(MockUserRepository)
	limiter := new(MockLoginLimiter)

	limiter.On("Allowed", mock.Anything, "user").Return(false, nil)

	svc := newTestAuthService(t, repo, limiter)
	_, _, err := svc.Login(context.Background(), "user", "User@123")
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	repo.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
}

func TestLogin_LimiterErrorFailsOpen(t *testing.T) {
	repo := new(MockUserRepository)
	limiter := new(MockLoginLimiter)

	limiter.On("Allowed", mock.Anything, "user").Return(true, errors.New("redis down"))
	limiter.On("Reset", mock.Anything, "user").Return(errors.New("redis down"))
	repo.On("FindByUsername", mock.Anything, "user").Return(testUser(t, "User@123"), nil)

	svc := newTestAuthService(t, repo, limiter)
	_, tokens, err := svc.Login(context.Background(), "user", "User@123")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
}

func TestRefresh(t *testing.T) {
	repo := new(MockUserRepository)
	limiter := new(MockLoginLimiter)
	user := testUser(t, "User@123")

	limiter.On("Allowed", mock.Anything, mock.Anything).Return(true, nil)
	limiter.On("Reset", mock.Anything, mock.Anything).Return(nil)
	repo.On("FindByUsername", mock.Anything, "user").Return(user, nil)
	repo.On("FindByID", mock.Anything, user.ID).Return(user, nil)

	svc := newTestAuthService(t, repo, limiter)
	ctx := context.Background()

	_, tokens, err := svc.Login(ctx, "user", "User@123")
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	_, err = svc.Refresh(ctx, "unknown")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_DeletedUser(t *testing.T) {
	repo := new(MockUserRepository)
	limiter := new(MockLoginLimiter)
	user := testUser(t, "User@123")

	limiter.On("Allowed", mock.Anything, mock.Anything).Return(true, nil)
	limiter.On("Reset", mock.Anything, mock.Anything).Return(nil)
	repo.On("FindByUsername", mock.Anything, "user").Return(user, nil)
	repo.On("FindByID", mock.Anything, user.ID).Return(nil, repository.ErrUserNotFound)

	svc := newTestAuthService(t, repo, limiter)
	ctx := context.Background()

	_, tokens, err := svc.Login(ctx, "user", "User@123")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, token.ErrUnauthorized)
}

func TestRevokeUserTokens_UnknownUser(t *testing.T) {
	repo := new(MockUserRepository)
	repo.On("FindByID", mock.Anything, "missing").Return(nil, repository.ErrUserNotFound)

	svc := newTestAuthService(t, repo, new(MockLoginLimiter))
	_, err := svc.RevokeUserTokens(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSeedDefaultUsers(t *testing.T) {
	repo := new(MockUserRepository)
	repo.On("Count", mock.Anything).Return(int64(0), nil).Once()
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.User")).Return(nil).Times(len(DefaultSeedUsers))

	svc := &userService{userRepo: repo, bcryptCost: bcrypt.MinCost, logger: logger.Discard()}
	require.NoError(t, svc.SeedDefaultUsers(context.Background()))
	repo.AssertExpectations(t)

	populated := new(MockUserRepository)
	populated.On("Count", mock.Anything).Return(int64(3), nil)
	svc = &userService{userRepo: populated, bcryptCost: bcrypt.MinCost, logger: logger.Discard()}
	require.NoError(t, svc.SeedDefaultUsers(context.Background()))
	populated.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUserDirectory(t *testing.T) {
	repo := new(MockUserRepository)
	user := testUser(t, "x")
	repo.On("FindByID", mock.Anything, user.ID).Return(user, nil)
	repo.On("FindByID", mock.Anything, "gone").Return(nil, repository.ErrUserNotFound)

	dir := NewUserDirectory(repo)

	got, err := dir.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, got.Username)
	assert.Equal(t, user.Roles, got.Roles)

	_, err = dir.GetUserByID(context.Background(), "gone")
	assert.ErrorIs(t, err, token.ErrUserNotFound)
}
