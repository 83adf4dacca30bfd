// Package service implements the auth core: single-use tokens, signed
// sessions, the process-wide auth config cache and email dispatch. The
// sentinel errors below form the failure taxonomy shared with the HTTP
// gate. Handlers log the precise reason but answer clients with a
// uniform message so failures cannot be used to enumerate tokens or
// sessions.
package service

import "errors"

var (
	// ErrSessionExpired covers both the idle timeout and the absolute
	// lifetime cap.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionInvalid means the presented token failed signature or
	// format checks. Externally indistinguishable from "no session".
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionNotFound means the signed token referenced a session that
	// no longer exists (signed out, purged, or account disabled).
	ErrSessionNotFound = errors.New("session not found")

	// ErrTokenInvalid means no live token matches the presented value.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired means the token exists but is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenAlreadyUsed means the token was consumed before, possibly
	// by a concurrent request that won the conditional update.
	ErrTokenAlreadyUsed = errors.New("token already used")

	// ErrStoreUnavailable wraps connectivity failures of the underlying
	// stores. The gate converts it into a security decision (fail open or
	// closed) instead of retrying.
	ErrStoreUnavailable = errors.New("store unavailable")
)
