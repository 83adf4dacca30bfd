package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/rm-info/finding-memos/internal/model"
)

// TokenRepo persists single-use tokens (password reset, email
// validation). Rows hold only the SHA-256 hash of the raw value.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Insert stores a freshly issued token row.
func (r *TokenRepo) Insert(ctx context.Context, t model.Token) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO tokens (id, purpose, user_id, token_hash, expires_at, consumed) VALUES (?,?,?,?,?,0)",
		t.ID, t.Purpose, t.UserID, t.TokenHash, t.ExpiresAt)
	return err
}

// FindByHash looks up a token by its at-rest hash and purpose.
func (r *TokenRepo) FindByHash(ctx context.Context, hash, purpose string) (model.Token, error) {
	var t model.Token
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, purpose, user_id, token_hash, expires_at, consumed, created_at FROM tokens WHERE token_hash=? AND purpose=? LIMIT 1",
		hash, purpose).
		Scan(&t.ID, &t.Purpose, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Consumed, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Token{}, ErrNotFound
	}
	return t, err
}

// Consume flips the consumed flag with a conditional update keyed on
// consumed=0. When two callers race, exactly one update matches a row;
// the loser gets ErrAlreadyConsumed. Never read-modify-write here.
func (r *TokenRepo) Consume(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tokens SET consumed=1 WHERE id=? AND consumed=0", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyConsumed
	}
	return nil
}

// PurgeExpired deletes tokens past their expiry. Consumed-but-unexpired
// rows are kept until expiry for diagnostics; they are inert either way.
func (r *TokenRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM tokens WHERE expires_at <= ?", now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
