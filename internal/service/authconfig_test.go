package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rm-info/finding-memos/internal/model"
)

type fakeConfigStore struct {
	mu    sync.Mutex
	cfg   model.AuthConfig
	err   error
	loads atomic.Int64
}

func (s *fakeConfigStore) Load(context.Context) (model.AuthConfig, error) {
	s.loads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.err
}

func (s *fakeConfigStore) set(cfg model.AuthConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func TestAuthConfigCache_CachesAfterFirstGet(t *testing.T) {
	store := &fakeConfigStore{cfg: model.AuthConfig{EnableAuth: true}}
	cache := NewAuthConfigCache(store)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		cfg, err := cache.Get(ctx)
		require.NoError(t, err)
		require.True(t, cfg.EnableAuth)
	}
	require.Equal(t, int64(1), store.loads.Load(), "only the first Get hits the store")
}

func TestAuthConfigCache_InvalidateForcesReload(t *testing.T) {
	store := &fakeConfigStore{cfg: model.AuthConfig{EnableAuth: true}}
	cache := NewAuthConfigCache(store)
	ctx := context.Background()

	cfg, err := cache.Get(ctx)
	require.NoError(t, err)
	require.True(t, cfg.EnableAuth)

	// Write + invalidate: the very next Get must observe the new value.
	store.set(model.AuthConfig{EnableAuth: false, AllowedDomains: []string{"example.com"}})
	cache.Invalidate()

	cfg, err = cache.Get(ctx)
	require.NoError(t, err)
	require.False(t, cfg.EnableAuth)
	require.Equal(t, []string{"example.com"}, cfg.AllowedDomains)
}

func TestAuthConfigCache_InvalidateIsIdempotent(t *testing.T) {
	store := &fakeConfigStore{cfg: model.AuthConfig{EnableAuth: true}}
	cache := NewAuthConfigCache(store)

	cache.Invalidate()
	cache.Invalidate()

	cfg, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.True(t, cfg.EnableAuth)
}

func TestAuthConfigCache_FailedLoadDoesNotPoison(t *testing.T) {
	store := &fakeConfigStore{err: errors.New("connection refused")}
	cache := NewAuthConfigCache(store)
	ctx := context.Background()

	_, err := cache.Get(ctx)
	require.ErrorIs(t, err, ErrStoreUnavailable)

	// Store recovers; the next Get retries instead of serving a broken
	// cached state.
	store.mu.Lock()
	store.err = nil
	store.cfg = model.AuthConfig{EnableAuth: true}
	store.mu.Unlock()

	cfg, err := cache.Get(ctx)
	require.NoError(t, err)
	require.True(t, cfg.EnableAuth)
}

func TestAuthConfigCache_ConcurrentAccess(t *testing.T) {
	store := &fakeConfigStore{cfg: model.AuthConfig{EnableAuth: true}}
	cache := NewAuthConfigCache(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%4 == 0 {
					cache.Invalidate()
				}
				_, err := cache.Get(ctx)
				require.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()
}
