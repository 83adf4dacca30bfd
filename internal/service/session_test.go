package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rm-info/finding-memos/internal/model"
	"github.com/rm-info/finding-memos/internal/repository"
)

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]*model.Session{}}
}

func (s *memSessionStore) Insert(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memSessionStore) Get(_ context.Context, id string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, repository.ErrNotFound
	}
	return *sess, nil
}

func (s *memSessionStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastActivity = at
	}
	return nil
}

func (s *memSessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memSessionStore) DeleteAllForUser(_ context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *memSessionStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

const (
	testMaxLife = 15 * 24 * time.Hour
	testIdle    = 24 * time.Hour
)

func newTestSessionManager(t *testing.T) (*SessionManager, *memSessionStore, *time.Time) {
	t.Helper()
	store := newMemSessionStore()
	m := NewSessionManager(store, "test-secret", testMaxLife, testIdle)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, store, &now
}

func validUser() model.User {
	return model.User{ID: 42, Email: "a@example.com", Role: model.RoleRegular, Status: model.StatusValid}
}

func TestSessionManager_CreateRequiresValidStatus(t *testing.T) {
	m, _, _ := newTestSessionManager(t)
	ctx := context.Background()

	for _, status := range []string{model.StatusNew, model.StatusDisabled} {
		u := validUser()
		u.Status = status
		_, _, err := m.Create(ctx, u)
		require.Error(t, err, "status %s must not get a session", status)
	}
}

func TestSessionManager_CreateAndValidate(t *testing.T) {
	m, _, now := newTestSessionManager(t)
	ctx := context.Background()

	token, exp, err := m.Create(ctx, validUser())
	require.NoError(t, err)
	require.Equal(t, now.Add(testMaxLife), exp)

	ident, err := m.Validate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, uint64(42), ident.UserID)
	require.Equal(t, model.RoleRegular, ident.Role)
	require.False(t, ident.Implicit)
}

func TestSessionManager_TamperedToken(t *testing.T) {
	m, _, _ := newTestSessionManager(t)
	ctx := context.Background()

	token, _, err := m.Create(ctx, validUser())
	require.NoError(t, err)

	// Flip a character of the signature.
	tampered := token[:len(token)-2] + strings.Map(func(r rune) rune {
		if r == 'a' {
			return 'b'
		}
		return 'a'
	}, token[len(token)-2:])

	_, err = m.Validate(ctx, tampered)
	require.ErrorIs(t, err, ErrSessionInvalid)
}

func TestSessionManager_IdleTimeout(t *testing.T) {
	m, _, now := newTestSessionManager(t)
	ctx := context.Background()

	token, _, err := m.Create(ctx, validUser())
	require.NoError(t, err)

	// Activity just inside the idle window keeps the session alive and
	// slides the marker.
	*now = now.Add(testIdle - time.Minute)
	_, err = m.Validate(ctx, token)
	require.NoError(t, err)

	// Another near-miss keeps working because the marker slid.
	*now = now.Add(testIdle - time.Minute)
	_, err = m.Validate(ctx, token)
	require.NoError(t, err)

	// A full idle window with no activity expires the session.
	*now = now.Add(testIdle)
	_, err = m.Validate(ctx, token)
	require.ErrorIs(t, err, ErrSessionExpired)

	// EXPIRED is terminal: the row is gone on the next attempt.
	_, err = m.Validate(ctx, token)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_AbsoluteLifetime(t *testing.T) {
	m, _, now := newTestSessionManager(t)
	ctx := context.Background()

	token, _, err := m.Create(ctx, validUser())
	require.NoError(t, err)

	// Keep the session active, stepping in increments below the idle
	// timeout until just before the absolute cap.
	step := testIdle - time.Hour
	for elapsed := time.Duration(0); elapsed+step < testMaxLife; elapsed += step {
		*now = now.Add(step)
		_, err = m.Validate(ctx, token)
		require.NoError(t, err)
	}

	// Crossing the absolute cap fails even though the session was
	// recently active. The signed exp claim trips first.
	*now = now.Add(step)
	_, err = m.Validate(ctx, token)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestSessionManager_Destroy(t *testing.T) {
	m, _, _ := newTestSessionManager(t)
	ctx := context.Background()

	token, _, err := m.Create(ctx, validUser())
	require.NoError(t, err)

	require.NoError(t, m.Destroy(ctx, token))

	_, err = m.Validate(ctx, token)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_DestroyAllForUser(t *testing.T) {
	m, _, _ := newTestSessionManager(t)
	ctx := context.Background()

	t1, _, err := m.Create(ctx, validUser())
	require.NoError(t, err)
	t2, _, err := m.Create(ctx, validUser())
	require.NoError(t, err)
	other := validUser()
	other.ID = 7
	t3, _, err := m.Create(ctx, other)
	require.NoError(t, err)

	require.NoError(t, m.DestroyAllForUser(ctx, 42))

	_, err = m.Validate(ctx, t1)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Validate(ctx, t2)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Validate(ctx, t3)
	require.NoError(t, err, "other user's session survives")
}
