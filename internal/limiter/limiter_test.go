package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rm-info/finding-memos/internal/config"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled: true,
		Prefix:  "rl",
		Scopes: map[string]config.RateScope{
			config.ScopeGlobal: {
				Name:   config.ScopeGlobal,
				Limits: []config.RateLimit{{Max: 100, Window: time.Hour}},
			},
			config.ScopeSignIn: {
				Name:       config.ScopeSignIn,
				Limits:     []config.RateLimit{{Max: 5, Window: time.Minute}},
				FailClosed: true,
			},
			config.ScopeSignUp: {
				Name:   config.ScopeSignUp,
				Limits: []config.RateLimit{{Max: 3, Window: time.Hour}},
			},
		},
	}
}

func setup(t *testing.T) (*Limiter, *miniredis.Miniredis, *time.Time) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := New(rdb, testConfig())
	l.now = func() time.Time { return now }
	return l, mr, &now
}

func TestCheck_BoundaryAndRollover(t *testing.T) {
	l, _, now := setup(t)
	ctx := context.Background()

	// The L-th request in the window passes, the L+1-th is denied.
	for i := 0; i < 5; i++ {
		d, err := l.Check(ctx, "1.2.3.4", config.ScopeSignIn)
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d should pass", i+1)
	}
	d, err := l.Check(ctx, "1.2.3.4", config.ScopeSignIn)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, config.ScopeSignIn, d.Scope)
	require.Greater(t, d.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, d.RetryAfter, time.Minute)

	// Just past the window boundary the counter is fresh again.
	*now = now.Add(d.RetryAfter + time.Millisecond)
	d, err = l.Check(ctx, "1.2.3.4", config.ScopeSignIn)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestCheck_ClientIsolation(t *testing.T) {
	l, _, _ := setup(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Check(ctx, "10.0.0.1", config.ScopeSignIn)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Check(ctx, "10.0.0.1", config.ScopeSignIn)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// Client B's quota is untouched by client A.
	d, err = l.Check(ctx, "10.0.0.2", config.ScopeSignIn)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestCheck_ScopeIsolation(t *testing.T) {
	l, _, _ := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Check(ctx, "10.0.0.1", config.ScopeSignUp)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Check(ctx, "10.0.0.1", config.ScopeSignUp)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// Sign-in still has its own budget for the same client.
	d, err = l.Check(ctx, "10.0.0.1", config.ScopeSignIn)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestCheck_GlobalScopeAlwaysApplies(t *testing.T) {
	l, _, _ := setup(t)
	ctx := context.Background()

	// 100 requests without a route scope exhaust the global ceiling.
	for i := 0; i < 100; i++ {
		d, err := l.Check(ctx, "9.9.9.9")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Check(ctx, "9.9.9.9")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, config.ScopeGlobal, d.Scope)

	// A route-scoped request from the same client is blocked by the
	// global scope too, before its own scope is even consulted.
	d, err = l.Check(ctx, "9.9.9.9", config.ScopeSignIn)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, config.ScopeGlobal, d.Scope)
}

func TestCheck_FailurePolicy(t *testing.T) {
	l, mr, _ := setup(t)
	ctx := context.Background()
	mr.Close() // simulate an unreachable counter store

	// Fail-closed scope: denied, error reported.
	d, err := l.Check(ctx, "1.1.1.1", config.ScopeSignIn)
	require.Error(t, err)
	require.False(t, d.Allowed)

	// Fail-open (global only): allowed, error reported.
	d, err = l.Check(ctx, "1.1.1.1")
	require.Error(t, err)
	require.True(t, d.Allowed)
}

func TestCheck_Disabled(t *testing.T) {
	l, mr, _ := setup(t)
	l.cfg.Enabled = false
	mr.Close() // even without Redis, disabled limiter always allows

	d, err := l.Check(context.Background(), "1.1.1.1", config.ScopeSignIn)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}
