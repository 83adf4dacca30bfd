// Package router wires routes to handlers and declares each route's
// gating policy in one place, so the per-route requirements are not
// scattered across the codebase.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rm-info/finding-memos/internal/config"
	"github.com/rm-info/finding-memos/internal/handler"
	"github.com/rm-info/finding-memos/internal/middleware"
)

// RegisterRoutes attaches every endpoint of the auth subsystem. Each
// route carries an explicit middleware.Policy; routes without auth
// requirements still pass through the gate for rate limiting.
func RegisterRoutes(e *echo.Echo, gate *middleware.Gate,
	auth *handler.AuthHandler, admin *handler.AdminHandler, users *handler.UserHandler) {

	open := gate.Middleware(middleware.Policy{})

	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Public auth flows under /v1/auth. Credential endpoints carry their
	// named rate-limit scope on top of the global one.
	g := e.Group("/v1/auth")
	g.POST("/sign-in", auth.SignIn,
		gate.Middleware(middleware.Policy{Scopes: []string{config.ScopeSignIn}}))
	g.POST("/sign-up", auth.SignUp,
		gate.Middleware(middleware.Policy{Scopes: []string{config.ScopeSignUp}}))
	g.POST("/forgot-password", auth.ForgotPassword,
		gate.Middleware(middleware.Policy{Scopes: []string{config.ScopeForgotPassword}}))
	g.POST("/reset-password", auth.ResetPassword,
		gate.Middleware(middleware.Policy{Scopes: []string{config.ScopeResetPassword}}))
	g.POST("/resend-validation", auth.ResendValidation,
		gate.Middleware(middleware.Policy{Scopes: []string{config.ScopeResendValidation}}))
	g.POST("/validate-email", auth.ValidateEmail, open)
	g.GET("/session-check", auth.SessionCheck, open)
	g.POST("/sign-out", auth.SignOut,
		gate.Middleware(middleware.Policy{RequireAuth: true}))

	// Signed-in surface.
	authed := gate.Middleware(middleware.Policy{RequireAuth: true})
	e.GET("/v1/me", users.Me, authed)

	// Superuser surface. RequireSuperuser demands a real superuser
	// session even while the global auth toggle is off.
	super := gate.Middleware(middleware.Policy{RequireAuth: true, RequireSuperuser: true})
	e.GET("/v1/users", users.List, super)
	e.POST("/v1/admin/toggle-auth", admin.ToggleAuth, super)
	e.PUT("/v1/admin/auth-config", admin.UpdateAuthConfig, super)
}
