package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// Family is the chain of refresh tokens produced by one login.
//
// CurrentToken and ParentToken hold SHA-256 digests of the token values; the
// raw tokens only ever exist on the client. Version grows on every save, so
// two writes of the same family never produce the same bytes.
type Family struct {
	FamilyID        string     `json:"family_id"`
	UserID          string     `json:"user_id"`
	CurrentToken    string     `json:"current_token"`
	ParentToken     string     `json:"parent_token,omitempty"`
	ParentTokenUsed bool       `json:"parent_token_used"`
	IssuedAt        time.Time  `json:"issued_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	IsRevoked       bool       `json:"is_revoked"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	RevokedReason   string     `json:"revoked_reason,omitempty"`
	Version         int64      `json:"version"`

	// encoded form as last read or written, compared on save
	stored []byte
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func digestEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (f *Family) matchesCurrent(tokenDigest string) bool {
	return digestEqual(f.CurrentToken, tokenDigest)
}

func (f *Family) matchesParent(tokenDigest string) bool {
	return f.ParentToken != "" && digestEqual(f.ParentToken, tokenDigest)
}

// parentRedeemable reports whether the parent token is still inside its grace window
func (f *Family) parentRedeemable(now time.Time, grace time.Duration) bool {
	return !now.After(f.IssuedAt.Add(grace))
}

// advance makes next the current token and returns the digest it replaced
func (f *Family) advance(next string, now time.Time) string {
	old := f.CurrentToken
	f.ParentToken = old
	f.CurrentToken = next
	f.IssuedAt = now
	f.ParentTokenUsed = false
	return old
}

func (f *Family) markRevoked(reason string, now time.Time) {
	f.IsRevoked = true
	f.RevokedAt = &now
	f.RevokedReason = reason
}
