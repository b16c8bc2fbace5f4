package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"authsvc/docs" // swagger docs
	"authsvc/internal/auth"
	"authsvc/internal/cache"
	"authsvc/internal/config"
	"authsvc/internal/db"
	"authsvc/internal/handler"
	"authsvc/internal/logger"
	"authsvc/internal/model"
	"authsvc/internal/notify"
	"authsvc/internal/repository"
	"authsvc/internal/router"
	"authsvc/internal/service"
)

const shutdownTimeout = 10 * time.Second

// @title Auth Service API
// @version 1.0
// @description Credential lifecycle API: registration, email verification, session login, password reset.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.
// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name token
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	users, err := openUserRepository(cfg, log)
	if err != nil {
		log.Fatal("database init", zap.Error(err))
	}

	store := openCache(cfg, log)

	notifier, closeNotifier, err := openNotifier(cfg, log)
	if err != nil {
		log.Fatal("notifier init", zap.Error(err))
	}
	defer closeNotifier()

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.SessionTTL)
	var revoker auth.SessionRevoker
	if cfg.SessionRevocation {
		revoker = auth.NewTokenStore(store)
	}

	authService := service.NewAuthService(service.Dependencies{
		Users:    users,
		Profiles: service.NewUserService(users, store),
		Issuer:   jwtService,
		Hasher:   auth.NewBcryptHasher(cfg.BcryptCost),
		Revoker:  revoker,
		Notifier: notifier,
		Logger:   log,
	}, service.Options{
		ResetTokenTTL:    cfg.ResetTokenTTL,
		OperationTimeout: cfg.OperationTimeout,
		PublicBaseURL:    cfg.PublicBaseURL,
		RevokeOnLogout:   cfg.SessionRevocation,
	})

	authHandler := handler.NewAuthHandler(authService, handler.CookieConfig{
		Secure: cfg.IsProduction(),
		MaxAge: cfg.SessionTTL,
	}, log)

	e := echo.New()
	e.HideBanner = true
	router.Register(e, cfg, authHandler, jwtService, revoker, log)

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "http://"), "https://")
	}
	log.Info("swagger documentation available", zap.String("url", "http://"+docs.SwaggerInfo.Host+"/swagger/index.html"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		addr := ":" + cfg.ServerPort
		log.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.AppEnv), zap.String("db_driver", cfg.DBDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
}

func openUserRepository(cfg *config.Config, log *zap.Logger) (repository.UserRepository, error) {
	if cfg.DBDriver == "memory" {
		log.Warn("using in-memory user store; data is lost on restart")
		return repository.NewMemoryUserRepository(), nil
	}

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN, log)
	if err != nil {
		return nil, err
	}

	// Drop tables if RESET_DB environment variable is set
	if os.Getenv("RESET_DB") == "true" {
		log.Warn("RESET_DB=true detected, dropping users table")
		if err := gormDB.Migrator().DropTable(&model.User{}); err != nil {
			log.Warn("failed to drop table (may not exist)", zap.Error(err))
		}
	}

	if err := db.Migrate(gormDB); err != nil {
		return nil, err
	}
	return repository.NewUserRepository(gormDB), nil
}

func openCache(cfg *config.Config, log *zap.Logger) cache.Store {
	if cfg.RedisAddr == "" {
		return cache.NewMemory()
	}
	client := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		// The client fails safe; the service keeps running without a cache.
		log.Warn("redis unreachable, cache degraded", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	return client
}

func openNotifier(cfg *config.Config, log *zap.Logger) (notify.Notifier, func(), error) {
	if cfg.NATSURL == "" {
		return notify.NewLogNotifier(log), func() {}, nil
	}
	nc, err := notify.Connect(cfg.NATSURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("publishing notifications to nats", zap.String("prefix", cfg.NATSSubjectPrefix))
	return notify.NewNATSNotifier(nc, cfg.NATSSubjectPrefix), func() { _ = nc.Drain() }, nil
}
