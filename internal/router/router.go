package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/contacts-auth/internal/config"
	"github.com/iliyamo/contacts-auth/internal/handler"
	"github.com/iliyamo/contacts-auth/internal/middleware"
	"github.com/iliyamo/contacts-auth/internal/service"
)

// RegisterRoutes registers routes that need no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth mounts the credential endpoints under /api/auth behind the
// rate limiter. rdb may be nil, which disables limiting.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/api/auth", middleware.RateLimit(rl, rdb))
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.GET("/refresh_token", a.RefreshToken)
	g.GET("/confirmed_email/:token", a.ConfirmedEmail)
	g.POST("/request_email", a.RequestEmail)
}

// RegisterUsers mounts /api/users. Reads are open to every role, email
// changes to moderators and admins, role changes and deletion to admins.
// The limiter runs after the gate so per-user key strategies see the caller.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, resolver service.IdentityResolver, rl config.RateLimitConfig, rdb *redis.Client) {
	limit := middleware.RateLimit(rl, rdb)
	read := middleware.RequireRole(service.NewGate(resolver, service.ReadRoles...))
	moderate := middleware.RequireRole(service.NewGate(resolver, service.ModerateRoles...))
	admin := middleware.RequireRole(service.NewGate(resolver, service.AdminRoles...))

	g := e.Group("/api/users")
	g.GET("/me", u.Me, read, limit)
	g.GET("/:id", u.GetUser, read, limit)
	g.PATCH("/:id", u.UpdateEmail, moderate, limit)
	g.PATCH("/:id/role", u.UpdateRole, admin, limit)
	g.DELETE("/:id", u.DeleteUser, admin, limit)
}
