// ABOUTME: Tests for token cookie transport and re-authentication classification
// ABOUTME: Verifies per-box cookie naming, attributes, and error mapping

package auth

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCookieName(t *testing.T) {
	if got := CookieName("abc-123"); got != "box_token_abc-123" {
		t.Errorf("CookieName() = %q", got)
	}
}

func TestSetAndReadTokenCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/box-auth", nil)

	SetTokenCookie(rec, req, "box-1", "tok-value", time.Hour)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "box_token_box-1" {
		t.Errorf("cookie name = %q", c.Name)
	}
	if !c.HttpOnly {
		t.Error("cookie must be HttpOnly")
	}
	if c.Path != "/" {
		t.Errorf("cookie path = %q, want /", c.Path)
	}
	if c.MaxAge != 3600 {
		t.Errorf("cookie max age = %d, want 3600", c.MaxAge)
	}

	// Round-trip through a follow-up request.
	next := httptest.NewRequest("GET", "/api/boxes/box-1/content", nil)
	next.AddCookie(c)
	if got := TokenFromRequest(next, "box-1"); got != "tok-value" {
		t.Errorf("TokenFromRequest() = %q, want tok-value", got)
	}
	if got := TokenFromRequest(next, "box-2"); got != "" {
		t.Errorf("TokenFromRequest() for other box = %q, want empty", got)
	}
}

func TestClearTokenCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/boxes/box-1/content", nil)

	ClearTokenCookie(rec, req, "box-1")

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != "box_token_box-1" || c.Value != "" {
		t.Errorf("cookie = %s=%q, want empty box_token_box-1", c.Name, c.Value)
	}
	if c.MaxAge >= 0 {
		t.Errorf("cookie max age = %d, want negative", c.MaxAge)
	}
}

func TestReauthRequired(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrNoToken, true},
		{ErrInvalidToken, true},
		{ErrExpiredToken, true},
		{ErrSubjectMismatch, true},
		{ErrInsufficientScope, false},
		{fmt.Errorf("wrapped: %w", ErrExpiredToken), true},
	}

	for _, tt := range tests {
		if got := ReauthRequired(tt.err); got != tt.want {
			t.Errorf("ReauthRequired(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	if got := ErrorMessage(ErrExpiredToken); got != "Token expired, please authenticate again" {
		t.Errorf("ErrorMessage(expired) = %q", got)
	}
	if got := ErrorMessage(ErrInsufficientScope); got != "Unauthorized, invalid scope" {
		t.Errorf("ErrorMessage(scope) = %q", got)
	}
	if got := ErrorMessage(ErrSubjectMismatch); got != "Unauthorized, box ID does not match token box ID" {
		t.Errorf("ErrorMessage(subject) = %q", got)
	}
}
