package middleware // middleware holds the echo middleware shared by the route groups

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-auth/internal/logging"
	"github.com/iliyamo/contacts-auth/internal/model"
	"github.com/iliyamo/contacts-auth/internal/service"
)

const identityKey = "identity"

// BearerToken extracts the raw token from an "Authorization: Bearer" header.
func BearerToken(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(auth[7:])
	return raw, raw != ""
}

func unauthorized(c echo.Context, msg string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
}

// RequireRole guards a route with gate: the bearer access token is resolved
// to an identity whose role must be in the gate's allow-set. On success the
// identity is available to handlers through CurrentUser.
func RequireRole(gate service.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := BearerToken(c)
			if !ok {
				return unauthorized(c, "not authenticated")
			}
			ctx := c.Request().Context()
			u, err := gate.Check(ctx, raw)
			switch {
			case errors.Is(err, service.ErrForbidden):
				return c.JSON(http.StatusForbidden, echo.Map{"error": "operation forbidden"})
			case errors.Is(err, service.ErrUnauthenticated):
				return unauthorized(c, "could not validate credentials")
			case err != nil:
				logging.FromContext(ctx).Error("identity resolution failed", "error", err)
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "service unavailable"})
			}
			c.Set(identityKey, u)
			return next(c)
		}
	}
}

// CurrentUser returns the identity stored by RequireRole, or nil.
func CurrentUser(c echo.Context) *model.User {
	u, _ := c.Get(identityKey).(*model.User)
	return u
}
