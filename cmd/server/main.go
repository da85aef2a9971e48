package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-auth/internal/cache"
	"github.com/iliyamo/contacts-auth/internal/config"
	"github.com/iliyamo/contacts-auth/internal/database"
	"github.com/iliyamo/contacts-auth/internal/handler"
	"github.com/iliyamo/contacts-auth/internal/logging"
	"github.com/iliyamo/contacts-auth/internal/middleware"
	"github.com/iliyamo/contacts-auth/internal/queue"
	"github.com/iliyamo/contacts-auth/internal/repository"
	"github.com/iliyamo/contacts-auth/internal/router"
	"github.com/iliyamo/contacts-auth/internal/service"
	"github.com/iliyamo/contacts-auth/internal/utils"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	users := repository.NewUserRepo(db)

	rdb := config.NewRedisClient(cfg.Redis)
	var backend cache.Backend
	if rdb != nil {
		defer rdb.Close()
		backend = cache.NewRedisBackend(rdb)
	} else {
		logger.Warn("redis unavailable, using in-process identity cache and no rate limiting")
		backend = cache.NewMemoryBackend(time.Now)
	}
	identities := cache.NewIdentityCache(backend, users, cfg.IdentityCacheTTL)

	codec := utils.NewTokenCodec([]byte(cfg.JWTSecret), utils.Lifetimes{
		Access:  cfg.AccessTTL,
		Refresh: cfg.RefreshTTL,
		Email:   cfg.EmailTokenTTL,
	}, time.Now)

	auth := service.NewAuthenticator(users, identities, codec, queue.NewPublisher(cfg.RabbitMQURL), service.Options{
		BcryptCost:    cfg.BcryptCost,
		AdminEmail:    cfg.AdminEmail,
		PublicBaseURL: cfg.PublicBaseURL,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := queue.StartMailConsumer(ctx, cfg.RabbitMQURL, "logs", logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("mail consumer stopped", "error", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger(logger))
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(auth), cfg.RateLimit, rdb)
	router.RegisterUsers(e, handler.NewUserHandler(auth), auth, cfg.RateLimit, rdb)

	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	auth.Wait()
}
