package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rm-info/finding-memos/internal/model"
	"github.com/rm-info/finding-memos/internal/repository"
	"github.com/rm-info/finding-memos/internal/utils"
)

// TokenStore is the persistence surface the token service needs. The
// MySQL implementation lives in the repository package; tests plug in an
// in-memory store.
type TokenStore interface {
	Insert(ctx context.Context, t model.Token) error
	FindByHash(ctx context.Context, hash, purpose string) (model.Token, error)
	Consume(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenService issues and validates opaque single-use tokens for the
// password-reset and email-validation flows.
type TokenService struct {
	store TokenStore
	now   func() time.Time
}

func NewTokenService(store TokenStore) *TokenService {
	return &TokenService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Issue generates a raw token (32 random bytes, hex encoded), persists
// its hash and returns the raw value for out-of-band delivery. The raw
// value is never stored or logged.
func (s *TokenService) Issue(ctx context.Context, purpose string, userID uint64, ttl time.Duration) (raw, id string, err error) {
	raw, err = utils.RandomHex(32)
	if err != nil {
		return "", "", err
	}
	t := model.Token{
		ID:        uuid.NewString(),
		Purpose:   purpose,
		UserID:    userID,
		TokenHash: utils.HashTokenRaw(raw),
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	logrus.WithFields(logrus.Fields{"purpose": purpose, "user_id": userID, "token_id": t.ID}).
		Info("token issued")
	return raw, t.ID, nil
}

// ValidateAndConsume recomputes the hash, looks the token up and marks it
// consumed with a conditional update, so of N concurrent callers exactly
// one succeeds. The returned errors distinguish invalid, expired and
// already-used for internal diagnostics; handlers collapse them into one
// generic failure before answering the client.
func (s *TokenService) ValidateAndConsume(ctx context.Context, raw, purpose string) (uint64, error) {
	t, err := s.store.FindByHash(ctx, utils.HashTokenRaw(raw), purpose)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, ErrTokenInvalid
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !s.now().Before(t.ExpiresAt) {
		return 0, ErrTokenExpired
	}
	if t.Consumed {
		return 0, ErrTokenAlreadyUsed
	}
	// The consume step is the atomic gate: the update only matches while
	// consumed is still unset, so a racing caller loses here.
	switch err := s.store.Consume(ctx, t.ID); {
	case errors.Is(err, repository.ErrAlreadyConsumed):
		return 0, ErrTokenAlreadyUsed
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	logrus.WithFields(logrus.Fields{"purpose": purpose, "user_id": t.UserID, "token_id": t.ID}).
		Info("token consumed")
	return t.UserID, nil
}

// PurgeExpired removes tokens past their expiry; wired to the cron
// sweeper. Expired tokens are inert either way, this just keeps the
// table small.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.PurgeExpired(ctx, s.now())
}
