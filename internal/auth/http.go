// ABOUTME: HTTP transport helpers for capability tokens
// ABOUTME: Per-box cookie naming, extraction, and re-authentication classification

package auth

import (
	"errors"
	"net/http"
	"time"
)

// CookieName returns the name of the token cookie for a box. Scoping the
// cookie name to the box keeps tokens for different boxes from clobbering
// each other in the same browser.
func CookieName(boxID string) string {
	return "box_token_" + boxID
}

// TokenFromRequest extracts the capability token for a box from the request
// cookie. Returns "" when no cookie is present, which the verifier reports
// as ErrNoToken.
func TokenFromRequest(r *http.Request, boxID string) string {
	cookie, err := r.Cookie(CookieName(boxID))
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetTokenCookie delivers a freshly issued token to the client as an
// HTTP-only cookie. Secure is set when the request arrived over TLS.
func SetTokenCookie(w http.ResponseWriter, r *http.Request, boxID, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName(boxID),
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearTokenCookie expires the token cookie for a box.
func ClearTokenCookie(w http.ResponseWriter, r *http.Request, boxID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName(boxID),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReauthRequired reports whether a verification failure should prompt the
// client to authenticate again. Scope failures are excluded: re-entering the
// same password cannot widen a token's scope, so they indicate a client bug
// rather than a recoverable state.
func ReauthRequired(err error) bool {
	return errors.Is(err, ErrNoToken) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrSubjectMismatch)
}

// ErrorMessage maps a verification failure to the user-facing message the
// API returns alongside a 401.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoToken):
		return "Unauthorized, no authorization token"
	case errors.Is(err, ErrExpiredToken):
		return "Token expired, please authenticate again"
	case errors.Is(err, ErrInsufficientScope):
		return "Unauthorized, invalid scope"
	case errors.Is(err, ErrSubjectMismatch):
		return "Unauthorized, box ID does not match token box ID"
	default:
		return "Unauthorized, invalid token"
	}
}
