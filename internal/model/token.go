package model

import "time"

// Token purposes. A token issued for one purpose never validates for
// another.
const (
	PurposeResetPassword = "RESET_PASSWORD"
	PurposeValidateEmail = "VALIDATE_EMAIL"
)

// Token models a single-use credential row in the `tokens` table. Only
// the SHA-256 hash of the raw value is stored; the raw value travels to
// the user out-of-band (email) and is never persisted or logged.
// Consumed is set exactly once by a conditional update, so a token can
// succeed at most one validation even under concurrent attempts.
type Token struct {
	ID        string    // tokens.id (uuid)
	Purpose   string    // tokens.purpose
	UserID    uint64    // tokens.user_id
	TokenHash string    // tokens.token_hash
	ExpiresAt time.Time // tokens.expires_at
	Consumed  bool      // tokens.consumed
	CreatedAt time.Time // tokens.created_at
}
