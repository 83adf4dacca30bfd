package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/rm-info/finding-memos/internal/model"
)

// SessionRepo persists the server-side session rows. The row existing is
// what keeps a session alive: sign-out and account disablement delete it,
// so every worker observes the revocation immediately.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Insert stores a new session row.
func (r *SessionRepo) Insert(ctx context.Context, s model.Session) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, role, issued_at, expires_at, last_activity) VALUES (?,?,?,?,?,?)",
		s.ID, s.UserID, s.Role, s.IssuedAt, s.ExpiresAt, s.LastActivity)
	return err
}

// Get fetches a session by id.
func (r *SessionRepo) Get(ctx context.Context, id string) (model.Session, error) {
	var s model.Session
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, role, issued_at, expires_at, last_activity FROM sessions WHERE id=? LIMIT 1",
		id).Scan(&s.ID, &s.UserID, &s.Role, &s.IssuedAt, &s.ExpiresAt, &s.LastActivity)
	if err == sql.ErrNoRows {
		return model.Session{}, ErrNotFound
	}
	return s, err
}

// Touch refreshes the idle-timeout marker.
func (r *SessionRepo) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET last_activity=? WHERE id=?", at, id)
	return err
}

// Delete removes a session (sign-out, or lazy cleanup of an expired one).
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE id=?", id)
	return err
}

// DeleteAllForUser removes every session of a user, used after a password
// reset or when an account is disabled.
func (r *SessionRepo) DeleteAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE user_id=?", userID)
	return err
}

// PurgeExpired deletes sessions past their absolute expiry.
func (r *SessionRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
