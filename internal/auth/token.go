// ABOUTME: Capability token issuance and verification for box access
// ABOUTME: HS256 JWTs carrying box subject, scope, and a fixed validity window

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification errors, one per check in the order the checks run. The gateway
// relies on these being distinguishable: ErrNoToken, ErrInvalidToken,
// ErrExpiredToken, and ErrSubjectMismatch mean "re-authenticate";
// ErrInsufficientScope is rejected outright because re-entering the same
// password cannot fix it.
var (
	ErrNoToken           = errors.New("no token presented")
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpiredToken      = errors.New("token expired")
	ErrInsufficientScope = errors.New("insufficient scope")
	ErrSubjectMismatch   = errors.New("token subject does not match box")
)

// Scope is the access level a capability token grants on its box.
type Scope string

const (
	ScopeRead      Scope = "box:read"
	ScopeReadWrite Scope = "box:read-write"
)

// ParseScope converts a claim string to a Scope, rejecting unknown values.
func ParseScope(s string) (Scope, bool) {
	switch Scope(s) {
	case ScopeRead, ScopeReadWrite:
		return Scope(s), true
	}
	return "", false
}

// Satisfies reports whether a token holding scope s may perform an operation
// requiring the given scope. Read-write implies read.
func (s Scope) Satisfies(required Scope) bool {
	switch s {
	case ScopeReadWrite:
		return required == ScopeRead || required == ScopeReadWrite
	case ScopeRead:
		return required == ScopeRead
	}
	return false
}

// Claims is the validated claim set of a capability token.
type Claims struct {
	BoxID     string
	Scope     Scope
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Tokens issues and verifies capability tokens with a single process-wide
// symmetric secret. The secret is loaded once at startup and never leaves
// the process.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens creates a token issuer/verifier. An empty secret is a startup
// configuration error and is rejected by config validation before this point.
func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	return &Tokens{secret: secret, ttl: ttl}
}

// TTL returns the validity window applied to issued tokens.
func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

// Issue mints a signed token scoped to one box and one access level.
func (t *Tokens) Issue(boxID string, scope Scope) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   boxID,
		"scope": string(scope),
		"iat":   now.Unix(),
		"exp":   now.Add(t.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify validates a token against the box and scope the operation requires.
// Checks run in a fixed order and short-circuit on the first failure:
// absence, signature/structure, expiry, scope, subject.
func (t *Tokens) Verify(tokenString, expectedBoxID string, required Scope) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	claims, err := claimsFromMap(mapClaims)
	if err != nil {
		return nil, err
	}

	if !claims.Scope.Satisfies(required) {
		return nil, ErrInsufficientScope
	}
	if claims.BoxID != expectedBoxID {
		return nil, ErrSubjectMismatch
	}

	return claims, nil
}

// claimsFromMap extracts the claim set. A missing or unrecognized scope
// string leaves Claims.Scope empty, which fails the scope check rather than
// the structure check.
func claimsFromMap(m jwt.MapClaims) (*Claims, error) {
	sub, ok := m["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	claims := &Claims{BoxID: sub}

	if raw, ok := m["scope"].(string); ok {
		if scope, valid := ParseScope(raw); valid {
			claims.Scope = scope
		}
	}

	if iat, ok := m["iat"].(float64); ok {
		claims.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := m["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return claims, nil
}
