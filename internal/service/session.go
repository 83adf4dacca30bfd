package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rm-info/finding-memos/internal/model"
	"github.com/rm-info/finding-memos/internal/repository"
)

// SessionStore is the persistence surface the session manager needs.
type SessionStore interface {
	Insert(ctx context.Context, s model.Session) error
	Get(ctx context.Context, id string) (model.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID uint64) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Identity is what the gate attaches to a request once a session has
// been resolved. Implicit identities are handed out when authentication
// is globally disabled; they carry no session row.
type Identity struct {
	UserID    uint64
	Role      string
	SessionID string
	Implicit  bool
}

// SessionManager establishes, validates and destroys sessions. The
// client holds an HS256-signed JWT (tamper evidence only; the payload is
// not secret) with the session id, subject, role and the absolute
// expiry. The idle-timeout marker lives in the shared store so that all
// workers agree on it.
type SessionManager struct {
	store   SessionStore
	secret  []byte
	maxLife time.Duration
	idle    time.Duration
	now     func() time.Time
}

func NewSessionManager(store SessionStore, secret string, maxLife, idle time.Duration) *SessionManager {
	return &SessionManager{
		store:   store,
		secret:  []byte(secret),
		maxLife: maxLife,
		idle:    idle,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create signs a session token for a VALID user. The absolute expiry is
// fixed here and never extended; only the idle marker slides.
func (m *SessionManager) Create(ctx context.Context, user model.User) (string, time.Time, error) {
	if user.Status != model.StatusValid {
		return "", time.Time{}, fmt.Errorf("cannot create session for user in status %s", user.Status)
	}
	now := m.now()
	s := model.Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Role:         user.Role,
		IssuedAt:     now,
		ExpiresAt:    now.Add(m.maxLife),
		LastActivity: now,
	}
	claims := jwt.MapClaims{
		"sid":  s.ID,
		"sub":  s.UserID,
		"role": s.Role,
		"iat":  s.IssuedAt.Unix(),
		"exp":  s.ExpiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := m.store.Insert(ctx, s); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	logrus.WithFields(logrus.Fields{"user_id": user.ID, "session_id": s.ID}).Info("session created")
	return signed, s.ExpiresAt, nil
}

// Validate verifies the signature, checks the absolute and idle windows
// against the stored row and refreshes the activity marker. Expired
// sessions are deleted lazily so a later attempt reports "not found",
// matching the terminal EXPIRED state.
func (m *SessionManager) Validate(ctx context.Context, raw string) (Identity, error) {
	sid, err := m.parseSessionID(raw, false)
	if err != nil {
		return Identity{}, err
	}
	s, err := m.store.Get(ctx, sid)
	if errors.Is(err, repository.ErrNotFound) {
		return Identity{}, ErrSessionNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	now := m.now()
	if !now.Before(s.ExpiresAt) || now.Sub(s.LastActivity) >= m.idle {
		_ = m.store.Delete(ctx, sid)
		return Identity{}, ErrSessionExpired
	}
	if err := m.store.Touch(ctx, sid, now); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return Identity{UserID: s.UserID, Role: s.Role, SessionID: sid}, nil
}

// Destroy removes the session row; later Validate calls fail with
// ErrSessionNotFound. Claim expiry is not checked so an idle client can
// still sign out cleanly.
func (m *SessionManager) Destroy(ctx context.Context, raw string) error {
	sid, err := m.parseSessionID(raw, true)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, sid); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	logrus.WithField("session_id", sid).Info("session destroyed")
	return nil
}

// DestroyAllForUser revokes every session of a user (password reset,
// account disablement).
func (m *SessionManager) DestroyAllForUser(ctx context.Context, userID uint64) error {
	if err := m.store.DeleteAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// PurgeExpired removes sessions past their absolute expiry; wired to the
// cron sweeper.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.store.PurgeExpired(ctx, m.now())
}

// parseSessionID verifies the HS256 signature and extracts the sid
// claim. A bad signature is reported as ErrSessionInvalid and an expired
// exp claim as ErrSessionExpired; skipExpiry relaxes the latter for
// sign-out.
func (m *SessionManager) parseSessionID(raw string, skipExpiry bool) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if skipExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrSessionExpired
		}
		return "", ErrSessionInvalid
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrSessionInvalid
	}
	sid, ok := claims["sid"].(string)
	if !ok || sid == "" {
		return "", ErrSessionInvalid
	}
	return sid, nil
}
