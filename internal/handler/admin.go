package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rm-info/finding-memos/internal/model"
	"github.com/rm-info/finding-memos/internal/service"
)

// ConfigStore is the read/write surface for the auth config singleton;
// the MySQL implementation is repository.ConfigRepo.
type ConfigStore interface {
	Load(ctx context.Context) (model.AuthConfig, error)
	Save(ctx context.Context, cfg model.AuthConfig) error
}

// AdminHandler exposes the superuser-only configuration endpoints. The
// routes are gated with RequireSuperuser, which demands a real superuser
// session even while authentication is globally disabled; otherwise
// toggling auth off would permanently unlock these endpoints.
type AdminHandler struct {
	Store ConfigStore
	Cache *service.AuthConfigCache
}

func NewAdminHandler(store ConfigStore, cache *service.AuthConfigCache) *AdminHandler {
	return &AdminHandler{Store: store, Cache: cache}
}

type authConfigReq struct {
	AllowedDomains []string `json:"allowed_domains"`
}

// ToggleAuth flips the global enable_auth flag and invalidates the cache
// so the very next request observes the new value.
func (h *AdminHandler) ToggleAuth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	cfg, err := h.Store.Load(ctx)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
	}
	cfg.EnableAuth = !cfg.EnableAuth
	if err := h.Store.Save(ctx, cfg); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save config failed"})
	}
	h.Cache.Invalidate()

	state := "disabled"
	if cfg.EnableAuth {
		state = "enabled"
	}
	c.Logger().Warnf("authentication %s by superuser", state)
	return c.JSON(http.StatusOK, echo.Map{
		"message":     "authentication " + state,
		"enable_auth": cfg.EnableAuth,
	})
}

// UpdateAuthConfig replaces the allowed self-registration domains. An
// empty list means unrestricted.
func (h *AdminHandler) UpdateAuthConfig(c echo.Context) error {
	var req authConfigReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	domains := make([]string, 0, len(req.AllowedDomains))
	for _, d := range req.AllowedDomains {
		d = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(d, "@")))
		if d == "" || !strings.Contains(d, ".") {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid domain: " + d})
		}
		domains = append(domains, d)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cfg, err := h.Store.Load(ctx)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
	}
	cfg.AllowedDomains = domains
	if err := h.Store.Save(ctx, cfg); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save config failed"})
	}
	h.Cache.Invalidate()

	return c.JSON(http.StatusOK, echo.Map{
		"message":         "auth config updated",
		"allowed_domains": domains,
	})
}
