// ABOUTME: Credential verification for password-protected boxes
// ABOUTME: Fast unsalted digest compare, with a no-credential fast path for public boxes

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// Credential errors. ErrPasswordRequired and ErrInvalidPassword are kept
// separate so the client can prompt for a password versus retry with an
// error message.
var (
	ErrPasswordRequired = errors.New("password required")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrBoxMisconfigured = errors.New("box marked protected but has no password hash")
)

// HashPassword returns the lowercase hex SHA-256 digest of a box password.
//
// This is deliberately a fast, unsalted digest: the protected asset is
// low-value and lives for at most the retention window, and verification must
// not depend on any stored state beyond the hash itself. It is not a general
// password-storage scheme.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword checks a supplied password against a box's stored
// credential. Boxes that are not password protected authorize any caller,
// including one supplying no password at all.
//
// Pure with respect to state: the only work is the digest and compare.
func VerifyPassword(passwordProtected bool, passwordHash, supplied string) error {
	if !passwordProtected {
		return nil
	}
	if supplied == "" {
		return ErrPasswordRequired
	}
	if passwordHash == "" {
		return ErrBoxMisconfigured
	}

	digest := HashPassword(supplied)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(passwordHash)) != 1 {
		return ErrInvalidPassword
	}
	return nil
}
