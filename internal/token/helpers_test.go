package token

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/EgehanKilicarslan/authgate/internal/database"
	"github.com/EgehanKilicarslan/authgate/internal/logger"
)

const (
	testSecret      = "0123456789abcdef0123456789abcdef-test-secret"
	testAccessTTL   = 15 * time.Minute
	testRefreshTTL  = 14 * 24 * time.Hour
	testGracePeriod = 30 * time.Second
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubDirectory is a fixed in-memory UserDirectory
type stubDirectory map[string]*User

func (d stubDirectory) GetUserByID(ctx context.Context, id string) (*User, error) {
	if user, ok := d[id]; ok {
		return user, nil
	}
	return nil, ErrUserNotFound
}

// MockUserDirectory is a testify mock of UserDirectory
type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) GetUserByID(ctx context.Context, id string) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

var (
	alice = &User{ID: "user-alice", Username: "alice", Roles: []string{"User"}}
	bob   = &User{ID: "user-bob", Username: "bob", Roles: []string{"Admin", "User"}}
)

type testEnv struct {
	svc   *tokenService
	store *database.MemoryStore
	clock *fakeClock
}

func testOptions(clock *fakeClock) Options {
	return Options{
		Secret:          testSecret,
		Issuer:          "authgate-test",
		Audience:        "authgate-test-clients",
		AccessTokenTTL:  testAccessTTL,
		RefreshTokenTTL: testRefreshTTL,
		GracePeriod:     testGracePeriod,
		Now:             clock.Now,
	}
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()

	clock := newFakeClock()
	store := database.NewMemoryStoreWithClock(logger.Discard(), clock.Now)
	t.Cleanup(func() { store.Close() })

	svc, err := NewService(store, stubDirectory{alice.ID: alice, bob.ID: bob}, testOptions(clock), logger.Discard())
	require.NoError(t, err)

	return &testEnv{svc: svc.(*tokenService), store: store, clock: clock}
}

// login opens a family for user and returns its first refresh token and family id
func (e *testEnv) login(t testing.TB, user *User) (string, string) {
	t.Helper()

	refreshToken, err := e.svc.GenerateRefreshToken()
	require.NoError(t, err)
	familyID, err := e.svc.CreateFamily(context.Background(), user.ID, refreshToken)
	require.NoError(t, err)
	return refreshToken, familyID
}

func (e *testEnv) family(t *testing.T, familyID string) *Family {
	t.Helper()

	family, err := e.svc.families.Get(context.Background(), familyID)
	require.NoError(t, err)
	return family
}
