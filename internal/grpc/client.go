package grpc

import (
	"context"
	"crypto/tls"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls the introspection service of a remote authgate
type Client struct {
	Health healthpb.HealthClient
	conn   *grpc.ClientConn
}

// Creates a new gRPC client
func NewClient(addr string, useTLS bool) (*Client, error) {
	var opts []grpc.DialOption
	if useTLS {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: false,
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(
		addr,
		append(opts,
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                30 * time.Second,
				Timeout:             10 * time.Second,
				PermitWithoutStream: false,
			}),
		)...,
	)
	if err != nil {
		return nil, err
	}

	return NewClientFromConn(conn), nil
}

// NewClientFromConn wraps an existing connection; Close closes it
func NewClientFromConn(conn *grpc.ClientConn) *Client {
	return &Client{
		Health: healthpb.NewHealthClient(conn),
		conn:   conn,
	}
}

func (c *Client) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.conn.Invoke(ctx, isBlacklistedMethod, wrapperspb.String(jti), out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// VerifyAccessToken returns the token's claims; an invalid or revoked token
// fails with codes.Unauthenticated.
func (c *Client) VerifyAccessToken(ctx context.Context, accessToken string) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, verifyAccessTokenMethod, wrapperspb.String(accessToken), out); err != nil {
		return nil, err
	}
	return out, nil
}

// Closes the gRPC connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
