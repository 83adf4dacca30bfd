package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rm-info/finding-memos/internal/config"
	"github.com/rm-info/finding-memos/internal/metrics"
	"github.com/rm-info/finding-memos/internal/middleware"
	"github.com/rm-info/finding-memos/internal/model"
	"github.com/rm-info/finding-memos/internal/repository"
	"github.com/rm-info/finding-memos/internal/service"
	"github.com/rm-info/finding-memos/internal/utils"
)

// UserStore is the persistence surface the auth handlers need; the MySQL
// implementation is repository.UserRepo.
type UserStore interface {
	Create(ctx context.Context, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	UpdatePassword(ctx context.Context, id uint64, password string, cost int) error
	UpdateStatus(ctx context.Context, id uint64, status string) error
	List(ctx context.Context) ([]model.User, error)
}

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Users    UserStore
	Sessions *service.SessionManager
	Tokens   *service.TokenService
	AuthCfg  *service.AuthConfigCache
	Mailer   service.Mailer
}

func NewAuthHandler(cfg config.Config, users UserStore, sessions *service.SessionManager,
	tokens *service.TokenService, authCfg *service.AuthConfigCache, mailer service.Mailer) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Sessions: sessions, Tokens: tokens, AuthCfg: authCfg, Mailer: mailer}
}

// ----- DTOs -----

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type emailReq struct {
	Email string `json:"email"`
}
type tokenReq struct {
	Token string `json:"token"`
}
type resetPasswordReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type userPart struct {
	Email       string `json:"email"`
	IsSuperuser bool   `json:"is_superuser"`
}
type sessionPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

const dbTimeout = 5 * time.Second

// SignIn verifies credentials and establishes a session. Unknown emails
// and wrong passwords get the same answer.
func (h *AuthHandler) SignIn(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.SignInAttempts.WithLabelValues("invalid_credentials").Inc()
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		metrics.SignInAttempts.WithLabelValues("invalid_credentials").Inc()
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	switch u.Status {
	case model.StatusNew:
		metrics.SignInAttempts.WithLabelValues("not_validated").Inc()
		return c.JSON(http.StatusForbidden, echo.Map{"error": "email address not validated"})
	case model.StatusDisabled:
		metrics.SignInAttempts.WithLabelValues("disabled").Inc()
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}

	token, exp, err := h.Sessions.Create(ctx, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create session failed"})
	}
	h.setSessionCookie(c, token, exp)
	metrics.SignInAttempts.WithLabelValues("success").Inc()

	return c.JSON(http.StatusOK, echo.Map{
		"user":    userPart{Email: u.Email, IsSuperuser: u.IsSuperuser()},
		"session": sessionPart{Token: token, Expires: exp},
	})
}

// SignUp registers a user when their email domain is allowed, then
// issues an email-validation token. The account stays in NEW status
// until the token is consumed.
func (h *AuthHandler) SignUp(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	at := strings.LastIndex(req.Email, "@")
	if at <= 0 || at == len(req.Email)-1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid email is required"})
	}
	if reason := utils.ValidatePassword(req.Password); reason != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": reason})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	authCfg, err := h.AuthCfg.Get(ctx)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
	}
	domain := req.Email[at+1:]
	if !authCfg.DomainAllowed(domain) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": fmt.Sprintf("domain '@%s' not allowed", domain)})
	}

	uid, err := h.Users.Create(ctx, req.Email, req.Password, model.RoleRegular, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "user already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	h.sendValidationEmail(c, uid, req.Email)
	return c.JSON(http.StatusCreated, echo.Map{"message": "sign-up successful, check your inbox to validate your email"})
}

// SignOut destroys the current session.
func (h *AuthHandler) SignOut(c echo.Context) error {
	ident, ok := middleware.CurrentIdentity(c)
	if ok && ident.Implicit {
		// Auth is globally disabled; there is no session to destroy.
		return c.JSON(http.StatusOK, echo.Map{"message": "signed out successfully"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()
	if raw := sessionTokenFromRequest(c); raw != "" {
		if err := h.Sessions.Destroy(ctx, raw); err != nil && errors.Is(err, service.ErrStoreUnavailable) {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sign out failed"})
		}
	}
	h.clearSessionCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "signed out successfully"})
}

// ForgotPassword issues a reset token when the account exists. The
// answer is the same either way, so the endpoint cannot be used to probe
// for registered emails.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err == nil && u.Status != model.StatusDisabled {
		raw, _, err := h.Tokens.Issue(ctx, model.PurposeResetPassword, u.ID, h.Cfg.ResetTokenTTL)
		if err != nil {
			c.Logger().Errorf("issue reset token failed: %v", err)
		} else {
			metrics.TokensIssued.WithLabelValues(model.PurposeResetPassword).Inc()
			link := fmt.Sprintf("%s/reset-password?token=%s", h.Cfg.FrontendURL, raw)
			body := fmt.Sprintf("A password reset was requested for your account.\n\n"+
				"Open this link to choose a new password:\n%s\n\n"+
				"The link expires in %s. If you did not request this, ignore this email.",
				link, h.Cfg.ResetTokenTTL)
			// Delivery is best-effort: the token is already issued and
			// stays valid until expiry even if the mail bounces.
			if err := h.Mailer.Send(ctx, u.Email, "Reset your password - Finding Memos", body); err != nil {
				c.Logger().Errorf("send reset email failed: %v", err)
			}
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "if the address is registered, a reset link has been sent"})
}

// ResetPassword consumes a reset token, replaces the credential and
// revokes every session of the user.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}
	if reason := utils.ValidatePassword(req.NewPassword); reason != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": reason})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	uid, err := h.Tokens.ValidateAndConsume(ctx, strings.TrimSpace(req.Token), model.PurposeResetPassword)
	if err != nil {
		return denyToken(c, err)
	}
	if err := h.Users.UpdatePassword(ctx, uid, req.NewPassword, h.Cfg.BcryptCost); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "password reset failed"})
	}
	if err := h.Sessions.DestroyAllForUser(ctx, uid); err != nil {
		c.Logger().Errorf("revoke sessions after reset failed: %v", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password reset successful"})
}

// ValidateEmail consumes an email-validation token and moves the account
// from NEW to VALID.
func (h *AuthHandler) ValidateEmail(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	uid, err := h.Tokens.ValidateAndConsume(ctx, strings.TrimSpace(req.Token), model.PurposeValidateEmail)
	if err != nil {
		return denyToken(c, err)
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "validation failed"})
	}
	// A disabled account stays disabled; validating the email must not
	// re-enable it.
	if u.Status == model.StatusNew {
		if err := h.Users.UpdateStatus(ctx, uid, model.StatusValid); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "validation failed"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "email validated, you can now sign in"})
}

// ResendValidation re-issues the validation token for a NEW account.
// Uniform answer regardless of account state, same reasoning as
// ForgotPassword.
func (h *AuthHandler) ResendValidation(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if u, err := h.Users.GetByEmail(ctx, email); err == nil && u.Status == model.StatusNew {
		h.sendValidationEmail(c, u.ID, u.Email)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "if the address is registered and pending validation, a new link has been sent"})
}

// SessionCheck reports the current identity. With authentication
// globally disabled it answers with the pseudo superuser the frontend
// expects; otherwise it validates the presented session.
func (h *AuthHandler) SessionCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	authCfg, err := h.AuthCfg.Get(ctx)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
	}
	if !authCfg.EnableAuth {
		return c.JSON(http.StatusOK, echo.Map{"user": userPart{Email: "no_auth@required", IsSuperuser: true}})
	}

	raw := sessionTokenFromRequest(c)
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "no active session"})
	}
	ident, err := h.Sessions.Validate(ctx, raw)
	if err != nil {
		if errors.Is(err, service.ErrSessionExpired) {
			c.Response().Header().Set("X-Session-Timeout", "true")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session timeout, please log in again"})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "no active session"})
	}
	u, err := h.Users.GetByID(ctx, ident.UserID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "user not found, please log in again"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": userPart{Email: u.Email, IsSuperuser: u.IsSuperuser()}})
}

// sendValidationEmail issues a VALIDATE_EMAIL token and mails the link.
// Both steps are best-effort from the caller's point of view; failures
// are logged and surfaced through resend-validation.
func (h *AuthHandler) sendValidationEmail(c echo.Context, uid uint64, email string) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	raw, _, err := h.Tokens.Issue(ctx, model.PurposeValidateEmail, uid, h.Cfg.SignupTokenTTL)
	if err != nil {
		c.Logger().Errorf("issue validation token failed: %v", err)
		return
	}
	metrics.TokensIssued.WithLabelValues(model.PurposeValidateEmail).Inc()
	link := fmt.Sprintf("%s/validate-email?token=%s", h.Cfg.FrontendURL, raw)
	body := fmt.Sprintf("Welcome to Finding Memos!\n\n"+
		"Open this link to validate your email address:\n%s\n\n"+
		"The link expires in %s.", link, h.Cfg.SignupTokenTTL)
	if err := h.Mailer.Send(ctx, email, "Validate your email - Finding Memos", body); err != nil {
		c.Logger().Errorf("send validation email failed: %v", err)
	}
}

// denyToken collapses every token failure into one generic answer so the
// endpoint leaks nothing about whether a token exists, expired or was
// already used. The precise reason goes to the log.
func denyToken(c echo.Context, err error) error {
	if errors.Is(err, service.ErrStoreUnavailable) {
		c.Logger().Errorf("token store unavailable: %v", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
	}
	c.Logger().Infof("token rejected: %v", err)
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
}

func (h *AuthHandler) setSessionCookie(c echo.Context, token string, exp time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Expires:  exp,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.Cfg.Env == "prod",
		SameSite: http.SameSiteNoneMode,
	})
}

func (h *AuthHandler) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		HttpOnly: true,
	})
}

// sessionTokenFromRequest mirrors the gate's token extraction for the
// endpoints that handle the session themselves (sign-out, session-check).
func sessionTokenFromRequest(c echo.Context) string {
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := c.Cookie(middleware.SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
