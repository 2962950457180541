// Package auth implements the access-control core of boxdrop: converting a
// box password (or the lack of one) into a short-lived, scoped capability
// token, and verifying that token at every content boundary.
//
// # Credentials
//
// A box is either public or password protected. Public boxes authorize any
// caller. Protected boxes store a fast unsalted digest of their password;
// VerifyPassword distinguishes "password required" from "invalid password"
// so clients can prompt versus retry.
//
// # Capability tokens
//
// Tokens are HS256 JWTs signed with a single process-wide secret:
//
//	tokens := auth.NewTokens(secret, time.Hour)
//	tok, err := tokens.Issue(boxID, auth.ScopeReadWrite)
//	claims, err := tokens.Verify(tok, boxID, auth.ScopeRead)
//
// A token carries subject (box id), scope (box:read or box:read-write, where
// read-write implies read), and a fixed validity window. Tokens are bearer
// credentials; there is no revocation beyond expiry.
//
// # Verification order
//
// Verify short-circuits on the first failing check, in order: absence,
// signature/structure, expiry, scope, subject. Each failure is a distinct
// sentinel error so the gateway can decide between prompting for
// re-authentication (ErrNoToken, ErrInvalidToken, ErrExpiredToken,
// ErrSubjectMismatch) and rejecting outright (ErrInsufficientScope).
//
// # Transport
//
// Tokens travel as an HTTP-only cookie named box_token_<boxID>, scoping each
// credential to its box. ReauthRequired and ErrorMessage map verification
// failures onto the wire contract.
package auth
