package grpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/EgehanKilicarslan/authgate/internal/token"
)

// IntrospectionServiceName is the fully qualified gRPC service name
const IntrospectionServiceName = "authgate.v1.TokenIntrospection"

const (
	isBlacklistedMethod     = "/" + IntrospectionServiceName + "/IsBlacklisted"
	verifyAccessTokenMethod = "/" + IntrospectionServiceName + "/VerifyAccessToken"
)

// IntrospectionServer lets other services check access tokens without sharing
// the signing secret. Messages are protobuf well-known types.
type IntrospectionServer interface {
	IsBlacklisted(ctx context.Context, jti *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	VerifyAccessToken(ctx context.Context, accessToken *wrapperspb.StringValue) (*structpb.Struct, error)
}

var introspectionServiceDesc = grpc.ServiceDesc{
	ServiceName: IntrospectionServiceName,
	HandlerType: (*IntrospectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IsBlacklisted", Handler: isBlacklistedHandler},
		{MethodName: "VerifyAccessToken", Handler: verifyAccessTokenHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "authgate/v1/introspection.proto",
}

// RegisterIntrospectionServer registers srv on s
func RegisterIntrospectionServer(s grpc.ServiceRegistrar, srv IntrospectionServer) {
	s.RegisterService(&introspectionServiceDesc, srv)
}

func isBlacklistedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntrospectionServer).IsBlacklisted(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: isBlacklistedMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IntrospectionServer).IsBlacklisted(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func verifyAccessTokenHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntrospectionServer).VerifyAccessToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: verifyAccessTokenMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IntrospectionServer).VerifyAccessToken(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// TokenIntrospectionServer implements IntrospectionServer over the token service
type TokenIntrospectionServer struct {
	tokens token.Service
	logger *slog.Logger
}

func NewTokenIntrospectionServer(tokens token.Service, logger *slog.Logger) *TokenIntrospectionServer {
	return &TokenIntrospectionServer{
		tokens: tokens,
		logger: logger,
	}
}

func (s *TokenIntrospectionServer) IsBlacklisted(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	jti := req.GetValue()
	if jti == "" {
		return nil, status.Error(codes.InvalidArgument, "jti is required")
	}

	blacklisted, err := s.tokens.IsBlacklisted(ctx, jti)
	if err != nil {
		s.logger.Error("❌ [Introspection] Blacklist lookup failed", "jti", jti, "error", err)
		return nil, status.Error(codes.Internal, "blacklist lookup failed")
	}
	return wrapperspb.Bool(blacklisted), nil
}

func (s *TokenIntrospectionServer) VerifyAccessToken(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "access token is required")
	}

	claims, err := s.tokens.AuthenticateAccessToken(ctx, req.GetValue())
	if err != nil {
		if errors.Is(err, token.ErrUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, "invalid or revoked access token")
		}
		s.logger.Error("❌ [Introspection] Token verification failed", "error", err)
		return nil, status.Error(codes.Internal, "token verification failed")
	}

	result, err := claimsToStruct(claims)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode claims")
	}
	return result, nil
}

func claimsToStruct(claims *token.Claims) (*structpb.Struct, error) {
	roles := make([]any, len(claims.Roles))
	for i, role := range claims.Roles {
		roles[i] = role
	}
	audience := make([]any, len(claims.Audience))
	for i, aud := range claims.Audience {
		audience[i] = aud
	}

	fields := map[string]any{
		"sub":      claims.Subject,
		"username": claims.Username,
		"roles":    roles,
		"jti":      claims.ID,
		"iss":      claims.Issuer,
		"aud":      audience,
	}
	if claims.IssuedAt != nil {
		fields["iat"] = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		fields["exp"] = claims.ExpiresAt.Unix()
	}
	return structpb.NewStruct(fields)
}

// NewServer builds the gRPC server with introspection and health registered
func NewServer(tokens token.Service, logger *slog.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))

	RegisterIntrospectionServer(server, NewTokenIntrospectionServer(tokens, logger))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(IntrospectionServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return server, healthServer
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		logger.Debug("📡 [gRPC] Call handled",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}
