package token

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, clock *fakeClock) *AccessTokenIssuer {
	t.Helper()
	issuer, err := NewAccessTokenIssuer(testSecret, "authgate-test", "authgate-test-clients", testAccessTTL, clock.Now)
	require.NoError(t, err)
	return issuer
}

func TestNewAccessTokenIssuer_RejectsWeakSecret(t *testing.T) {
	_, err := NewAccessTokenIssuer("too-short", "iss", "aud", time.Minute, nil)
	assert.ErrorIs(t, err, ErrWeakSecret)

	_, err = NewAccessTokenIssuer(testSecret, "iss", "aud", 0, nil)
	assert.Error(t, err)
}

func TestIssue_ClaimsRoundTrip(t *testing.T) {
	clock := newFakeClock()
	issuer := newTestIssuer(t, clock)

	signed, issued, err := issuer.IssueWithClaims(bob)
	require.NoError(t, err)

	claims, err := issuer.Parse(signed)
	require.NoError(t, err)

	assert.Equal(t, bob.ID, claims.Subject)
	assert.Equal(t, bob.Username, claims.Username)
	assert.Equal(t, bob.Roles, claims.Roles)
	assert.Equal(t, issued.ID, claims.ID)
	assert.Equal(t, "authgate-test", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"authgate-test-clients"}, claims.Audience)
	assert.Equal(t, clock.Now().Add(testAccessTTL).Unix(), claims.ExpiresAt.Unix())
}

func TestIssue_UniqueJTI(t *testing.T) {
	issuer := newTestIssuer(t, newFakeClock())

	_, first, err := issuer.IssueWithClaims(alice)
	require.NoError(t, err)
	_, second, err := issuer.IssueWithClaims(alice)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestParse_Failures(t *testing.T) {
	clock := newFakeClock()
	issuer := newTestIssuer(t, clock)
	signed, err := issuer.Issue(alice)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		late := newFakeClock()
		late.Advance(testAccessTTL + time.Second)
		_, err := newTestIssuer(t, late).Parse(signed)
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewAccessTokenIssuer(testSecret+"-other", "authgate-test", "authgate-test-clients", testAccessTTL, clock.Now)
		require.NoError(t, err)
		_, err = other.Parse(signed)
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other, err := NewAccessTokenIssuer(testSecret, "authgate-test", "someone-else", testAccessTTL, clock.Now)
		require.NoError(t, err)
		_, err = other.Parse(signed)
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewAccessTokenIssuer(testSecret, "elsewhere", "authgate-test-clients", testAccessTTL, clock.Now)
		require.NoError(t, err)
		_, err = other.Parse(signed)
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": alice.ID}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = issuer.Parse(none)
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Parse("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})
}

func TestGenerateRefreshToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := GenerateRefreshToken()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(tok)
		require.NoError(t, err)
		assert.Len(t, raw, 64)

		assert.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestGenerateSigningSecret(t *testing.T) {
	secret, err := GenerateSigningSecret()
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(secret)
	require.NoError(t, err)
	assert.Len(t, raw, 64)

	_, err = NewAccessTokenIssuer(secret, "iss", "aud", time.Minute, nil)
	assert.NoError(t, err)
}
