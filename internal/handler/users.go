package handler

import (
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-auth/internal/middleware"
	"github.com/iliyamo/contacts-auth/internal/model"
)

// UserHandler serves /api/users. Routes are mounted behind
// middleware.RequireRole, so the caller is always resolved.
type UserHandler struct {
	Auth AuthService
}

func NewUserHandler(a AuthService) *UserHandler {
	return &UserHandler{Auth: a}
}

type roleReq struct {
	Role model.Role `json:"role" form:"role"`
}

func (r roleReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required,
			validation.In(model.RoleAdmin, model.RoleModerator, model.RoleUser)),
	)
}

func parseID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// Me returns the caller's own identity.
func (h *UserHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, toUserResponse(middleware.CurrentUser(c)))
}

// GetUser returns any identity by id.
func (h *UserHandler) GetUser(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := h.Auth.GetUser(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

// UpdateRole is admin only. The bootstrap address keeps the admin role
// whatever is requested.
func (h *UserHandler) UpdateRole(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := h.Auth.UpdateRole(ctx, id, req.Role)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

// UpdateEmail moves an account to a new address. Moving onto the bootstrap
// address makes the account admin.
func (h *UserHandler) UpdateEmail(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := h.Auth.UpdateEmail(ctx, id, req.Email)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

func (h *UserHandler) DeleteUser(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Auth.DeleteUser(ctx, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
