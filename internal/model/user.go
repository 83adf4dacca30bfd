package model

import "time"

// Role values stored in the `users.role` column and embedded in session
// claims. REGULAR users own their memos; SUPERUSER additionally controls
// the global auth configuration.
const (
	RoleRegular   = "REGULAR"
	RoleSuperuser = "SUPERUSER"
)

// Account status values. A session may only be created for a VALID user:
// NEW accounts still have to confirm their email address and DISABLED
// accounts are locked out entirely.
const (
	StatusNew      = "NEW"
	StatusValid    = "VALID"
	StatusDisabled = "DISABLED"
)

// User represents an application user record as stored in the `users`
// table. Emails are stored lower-cased so the unique index is effectively
// case-insensitive. Handlers define separate response types with JSON
// tags; these structs are used by the repository layer only.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash (bcrypt)
	Role         string    // users.role (REGULAR | SUPERUSER)
	Status       string    // users.status (NEW | VALID | DISABLED)
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// IsSuperuser reports whether the user carries the superuser role.
func (u User) IsSuperuser() bool { return u.Role == RoleSuperuser }
