package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-auth/internal/logging"
	"github.com/iliyamo/contacts-auth/internal/service"
	"github.com/iliyamo/contacts-auth/internal/utils"
)

// writeError maps service and token errors to a response that carries only
// the reason. Anything unrecognised is logged and reported as 500.
func writeError(c echo.Context, err error) error {
	var se *service.StoreError
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrEmailNotConfirmed),
		errors.Is(err, service.ErrInvalidRefreshToken),
		errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, utils.ErrInvalidToken):
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrVerification), errors.Is(err, service.ErrInvalidRole):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrAccountExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.As(err, &se):
		logging.FromContext(c.Request().Context()).Error("store failure", "op", se.Op, "error", se.Err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "service unavailable"})
	default:
		logging.FromContext(c.Request().Context()).Error("unhandled error", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request", "details": err})
}

// requestTimeout bounds the store and cache work of one request.
const requestTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}
