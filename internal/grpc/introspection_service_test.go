package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/EgehanKilicarslan/authgate/internal/database"
	"github.com/EgehanKilicarslan/authgate/internal/logger"
	"github.com/EgehanKilicarslan/authgate/internal/token"
)

type staticDirectory struct{}

func (staticDirectory) GetUserByID(ctx context.Context, id string) (*token.User, error) {
	return nil, token.ErrUserNotFound
}

func setupIntrospection(t *testing.T) (token.Service, *Client) {
	t.Helper()

	store := database.NewMemoryStore(logger.Discard())
	tokens, err := token.NewService(store, staticDirectory{}, token.Options{
		Secret:          "introspection-test-secret-0123456789abcdef",
		Issuer:          "authgate-test",
		Audience:        "authgate-test-clients",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		GracePeriod:     30 * time.Second,
	}, logger.Discard())
	require.NoError(t, err)

	lis := bufconn.Listen(1024 * 1024)
	server, _ := NewServer(tokens, logger.Discard())
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	client := NewClientFromConn(conn)
	t.Cleanup(client.Close)

	return tokens, client
}

func TestIntrospection_VerifyAccessToken(t *testing.T) {
	tokens, client := setupIntrospection(t)
	ctx := context.Background()

	signed, err := tokens.IssueAccessToken(&token.User{ID: "user-1", Username: "alice", Roles: []string{"User"}})
	require.NoError(t, err)

	claims, err := client.VerifyAccessToken(ctx, signed)
	require.NoError(t, err)

	fields := claims.AsMap()
	assert.Equal(t, "user-1", fields["sub"])
	assert.Equal(t, "alice", fields["username"])
	assert.Equal(t, []any{"User"}, fields["roles"])
	assert.NotEmpty(t, fields["jti"])
}

func TestIntrospection_RejectsBadAndRevokedTokens(t *testing.T) {
	tokens, client := setupIntrospection(t)
	ctx := context.Background()

	_, err := client.VerifyAccessToken(ctx, "garbage")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.VerifyAccessToken(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	signed, err := tokens.IssueAccessToken(&token.User{ID: "user-1", Username: "alice"})
	require.NoError(t, err)
	claims, err := tokens.AuthenticateAccessToken(ctx, signed)
	require.NoError(t, err)
	require.NoError(t, tokens.Blacklist(ctx, claims.ID, claims.ExpiresAt.Time))

	_, err = client.VerifyAccessToken(ctx, signed)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestIntrospection_IsBlacklisted(t *testing.T) {
	tokens, client := setupIntrospection(t)
	ctx := context.Background()

	listed, err := client.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, listed)

	require.NoError(t, tokens.Blacklist(ctx, "jti-1", time.Now().Add(time.Minute)))

	listed, err = client.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, listed)

	_, err = client.IsBlacklisted(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestIntrospection_Health(t *testing.T) {
	_, client := setupIntrospection(t)

	resp, err := client.Health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: IntrospectionServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
