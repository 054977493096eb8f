package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest HMAC secret accepted, in bytes
const MinSecretLength = 32

// User is the identity embedded in access tokens
type User struct {
	ID       string
	Username string
	Roles    []string
}

// Claims carried by an access token. Subject is the user id, ID the jti.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// AccessTokenIssuer signs and verifies HS256 access tokens
type AccessTokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	lifetime time.Duration
	now      func() time.Time
}

// NewAccessTokenIssuer fails on a short secret so a bad key stops startup
// rather than individual requests.
func NewAccessTokenIssuer(secret, issuer, audience string, lifetime time.Duration, now func() time.Time) (*AccessTokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrWeakSecret, MinSecretLength, len(secret))
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("access token lifetime must be positive, got %s", lifetime)
	}
	if now == nil {
		now = time.Now
	}

	return &AccessTokenIssuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		lifetime: lifetime,
		now:      now,
	}, nil
}

func (i *AccessTokenIssuer) Lifetime() time.Duration {
	return i.lifetime
}

// Issue mints a token for user with a fresh jti
func (i *AccessTokenIssuer) Issue(user *User) (string, error) {
	signed, _, err := i.IssueWithClaims(user)
	return signed, err
}

func (i *AccessTokenIssuer) IssueWithClaims(user *User) (string, *Claims, error) {
	now := i.now()

	claims := &Claims{
		Username: user.Username,
		Roles:    append([]string(nil), user.Roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies signature, expiry, issuer and audience with no clock skew
func (i *AccessTokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	}
	if !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}
