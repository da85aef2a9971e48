package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/contacts-auth/internal/config"
	"github.com/iliyamo/contacts-auth/internal/model"
	"github.com/iliyamo/contacts-auth/internal/service"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRateLimit_BlocksWhenBucketEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		Prefix:         "rl",
	}
	e := echo.New()
	e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RateLimit(cfg, rdb))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_DisabledOrNoRedis(t *testing.T) {
	for _, mw := range []echo.MiddlewareFunc{
		RateLimit(config.RateLimitConfig{Enabled: false}, nil),
		RateLimit(config.RateLimitConfig{Enabled: true}, nil),
	} {
		e := echo.New()
		e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, mw)
		for i := 0; i < 5; i++ {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	}
}

func TestRateLimit_RedisDownFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
	e := echo.New()
	e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RateLimit(cfg, rdb))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_UserStrategyBehindGate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       1,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		KeyStrategy:    "user_route",
		Prefix:         "rl",
		Debug:          true,
	}
	resolver := tokenResolver{
		"alice": {ID: 11, Role: model.RoleUser},
		"bob":   {ID: 12, Role: model.RoleUser},
	}
	gate := RequireRole(service.NewGate(resolver, service.ReadRoles...))

	e := echo.New()
	e.GET("/me", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, gate, RateLimit(cfg, rdb))

	call := func(tok string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := call("alice")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rl:user:11:route:GET /me", rec.Header().Get("X-RateLimit-Key"))
	assert.Equal(t, http.StatusTooManyRequests, call("alice").Code)

	rec = call("bob")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rl:user:12:route:GET /me", rec.Header().Get("X-RateLimit-Key"))
}
