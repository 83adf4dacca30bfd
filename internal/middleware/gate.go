// Package middleware contains the per-request auth gate. Every route
// declares a Policy; a single gate function evaluates it in a fixed
// order: rate limit first (cheap rejection before any signature work),
// then the auth toggle, then session validation, then the role check.
package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rm-info/finding-memos/internal/limiter"
	"github.com/rm-info/finding-memos/internal/metrics"
	"github.com/rm-info/finding-memos/internal/model"
	"github.com/rm-info/finding-memos/internal/service"
)

// SessionCookieName is the cookie carrying the signed session token for
// browser clients; API clients send it as a bearer token instead.
const SessionCookieName = "fm_session"

const identityKey = "identity"

// Policy is the per-route gating declaration. RequireSuperuser implies
// a real superuser session even while authentication is globally
// disabled; plain RequireAuth routes pass with an implicit identity in
// that case. Scopes names the rate-limit scopes checked in addition to
// the global one.
type Policy struct {
	RequireAuth      bool
	RequireSuperuser bool
	Scopes           []string
}

// Gate bundles the components the middleware composes.
type Gate struct {
	Limiter  *limiter.Limiter
	Config   *service.AuthConfigCache
	Sessions *service.SessionManager
}

// Middleware returns the Echo middleware enforcing the given policy.
func (g *Gate) Middleware(p Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			// 1. Rate limit. Runs before any session work so abusive
			// traffic is rejected without spending CPU on signatures.
			d, err := g.Limiter.Check(ctx, c.RealIP(), p.Scopes...)
			if err != nil {
				outcome := "failed_open"
				if !d.Allowed {
					outcome = "failed_closed"
				}
				metrics.RateLimitDecisions.WithLabelValues(d.Scope, outcome).Inc()
				c.Logger().Warnf("rate limit store unavailable (scope=%s, %s): %v", d.Scope, outcome, err)
			} else {
				outcome := "allowed"
				if !d.Allowed {
					outcome = "denied"
				}
				metrics.RateLimitDecisions.WithLabelValues(d.Scope, outcome).Inc()
			}
			if d.Limit >= 0 {
				c.Response().Header().Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
				c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			}
			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 0 {
					secs = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"retry_after": secs,
				})
			}

			if !p.RequireAuth && !p.RequireSuperuser {
				return next(c)
			}

			// 2. Auth toggle. Superuser routes ignore it: the toggle
			// endpoint itself must stay protected or disabling auth would
			// be a privilege-escalation hole.
			if !p.RequireSuperuser {
				cfg, err := g.Config.Get(ctx)
				if err != nil {
					metrics.GateDenials.WithLabelValues("store_unavailable").Inc()
					c.Logger().Errorf("auth config unavailable: %v", err)
					return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
				}
				if !cfg.EnableAuth {
					setIdentity(c, service.Identity{Role: model.RoleSuperuser, Implicit: true})
					return next(c)
				}
			}

			// 3. Session. Signature failures are answered exactly like a
			// missing session; details go to the log only.
			raw := sessionToken(c)
			if raw == "" {
				metrics.GateDenials.WithLabelValues("unauthenticated").Inc()
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			ident, err := g.Sessions.Validate(ctx, raw)
			if err != nil {
				return denySession(c, err)
			}

			// 4. Role.
			if p.RequireSuperuser && ident.Role != model.RoleSuperuser {
				metrics.GateDenials.WithLabelValues("forbidden").Inc()
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}

			// 5. Attach identity and proceed.
			setIdentity(c, ident)
			return next(c)
		}
	}
}

// denySession maps a session validation failure to its HTTP answer. The
// client only ever learns "authentication required"; the precise reason
// is logged. Idle or absolute expiry additionally sets the
// X-Session-Timeout header the frontend watches for.
func denySession(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrSessionExpired):
		metrics.GateDenials.WithLabelValues("session_expired").Inc()
		c.Logger().Infof("session expired: %v", err)
		c.Response().Header().Set("X-Session-Timeout", "true")
	case errors.Is(err, service.ErrStoreUnavailable):
		metrics.GateDenials.WithLabelValues("store_unavailable").Inc()
		c.Logger().Errorf("session store unavailable: %v", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
	default:
		metrics.GateDenials.WithLabelValues("unauthenticated").Inc()
		c.Logger().Infof("session rejected: %v", err)
	}
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
}

// sessionToken reads the signed session token from the Authorization
// header, falling back to the session cookie.
func sessionToken(c echo.Context) string {
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := c.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func setIdentity(c echo.Context, ident service.Identity) {
	c.Set(identityKey, ident)
	c.Set("user_id", ident.UserID)
	c.Set("role", ident.Role)
}

// CurrentIdentity returns the identity the gate attached to the request.
func CurrentIdentity(c echo.Context) (service.Identity, bool) {
	ident, ok := c.Get(identityKey).(service.Identity)
	return ident, ok
}
