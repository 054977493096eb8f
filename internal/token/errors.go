package token

import "errors"

// Rotation failures. Callers outside this package only ever see ErrUnauthorized
// wrapped around one of them, so responses never reveal which check failed.
var (
	ErrInvalidToken = errors.New("invalid refresh token")
	ErrTokenRevoked = errors.New("refresh token family revoked")
	ErrUserMismatch = errors.New("refresh token does not belong to user")
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrFamilyNotFound     = errors.New("token family not found")
	ErrFamilyChanged      = errors.New("token family changed concurrently")
	ErrUserNotFound       = errors.New("user not found")
	ErrWeakSecret         = errors.New("signing secret too short")
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenRevoked = errors.New("access token revoked")
)

// Revocation reasons recorded on the family
const (
	ReasonUserMismatch  = "user mismatch"
	ReasonParentReused  = "parent token reused"
	ReasonReuseDetected = "token reuse detected"
	ReasonLogout        = "user logout"
	ReasonAdminRevoked  = "revoked by administrator"
)

func isAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenRevoked)
}
