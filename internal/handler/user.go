package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rm-info/finding-memos/internal/middleware"
)

// UserHandler exposes the identity endpoints for signed-in users.
type UserHandler struct {
	Users UserStore
}

func NewUserHandler(users UserStore) *UserHandler { return &UserHandler{Users: users} }

// Me returns the identity the gate resolved for this request.
func (h *UserHandler) Me(c echo.Context) error {
	ident, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	if ident.Implicit {
		return c.JSON(http.StatusOK, echo.Map{"user": userPart{Email: "no_auth@required", IsSuperuser: true}})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*5)
	defer cancel()
	u, err := h.Users.GetByID(ctx, ident.UserID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": userPart{Email: u.Email, IsSuperuser: u.IsSuperuser()}})
}

type userRow struct {
	ID     uint64 `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

// List returns all users. Superuser-only; password hashes never leave
// the repository layer.
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*5)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]userRow, 0, len(users))
	for _, u := range users {
		out = append(out, userRow{ID: u.ID, Email: u.Email, Role: u.Role, Status: u.Status})
	}
	return c.JSON(http.StatusOK, out)
}
