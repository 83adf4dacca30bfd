package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rm-info/finding-memos/internal/model"
)

// ConfigStore loads the persisted auth config singleton.
type ConfigStore interface {
	Load(ctx context.Context) (model.AuthConfig, error)
}

// AuthConfigCache is the process-wide cache of the auth config row. It
// is populated lazily on the first Get and refreshed only by an explicit
// Invalidate after a write; there is deliberately no timer refresh, so an
// admin toggling auth is reflected by the very next Get. The cache is
// process-local: other workers converge on their next write-triggered
// invalidation or restart, which the config contract tolerates.
type AuthConfigCache struct {
	store ConfigStore

	mu     sync.RWMutex
	loaded bool
	cfg    model.AuthConfig
}

func NewAuthConfigCache(store ConfigStore) *AuthConfigCache {
	return &AuthConfigCache{store: store}
}

// Get returns the cached config, loading it on first use. A failed load
// leaves the cache unpopulated rather than poisoned, so a later Get
// retries.
func (c *AuthConfigCache) Get(ctx context.Context) (model.AuthConfig, error) {
	c.mu.RLock()
	if c.loaded {
		cfg := c.cfg
		c.mu.RUnlock()
		return cfg, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded { // another goroutine filled it meanwhile
		return c.cfg, nil
	}
	cfg, err := c.store.Load(ctx)
	if err != nil {
		return model.AuthConfig{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.cfg = cfg
	c.loaded = true
	logrus.WithFields(logrus.Fields{"enable_auth": cfg.EnableAuth, "allowed_domains": cfg.AllowedDomains}).
		Debug("auth config loaded")
	return cfg, nil
}

// Invalidate drops the cached value. Idempotent; must be called after
// every write to the underlying config.
func (c *AuthConfigCache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.cfg = model.AuthConfig{}
	c.mu.Unlock()
}
