package model

import "time"

// Session is the server-side half of a login session. The client holds a
// signed JWT carrying the session id; this row carries the state that has
// to be shared between workers: the idle-timeout marker (LastActivity)
// and the fact that the session still exists at all (sign-out and account
// disablement delete the row). ExpiresAt is the absolute cap fixed at
// creation; it never slides.
type Session struct {
	ID           string    // sessions.id (uuid, the JWT `sid` claim)
	UserID       uint64    // sessions.user_id
	Role         string    // sessions.role at creation time
	IssuedAt     time.Time // sessions.issued_at
	ExpiresAt    time.Time // sessions.expires_at (issued_at + max lifetime)
	LastActivity time.Time // sessions.last_activity, refreshed on each validated access
}
