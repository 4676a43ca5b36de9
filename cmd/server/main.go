package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"librarian/docs"
	"librarian/internal/auth"
	"librarian/internal/cache"
	"librarian/internal/config"
	"librarian/internal/db"
	"librarian/internal/handler"
	"librarian/internal/lock"
	"librarian/internal/metrics"
	"librarian/internal/repository"
	"librarian/internal/router"
	"librarian/internal/service"
)

// @title Librarian API
// @version 1.0
// @description Library catalog with borrow/return lifecycle and session-token authentication.
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := config.NewLogger(cfg.Logging, os.Stdout)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Open(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database init: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.Migrate(gormDB, cfg.Database.Reset, log); err != nil {
		return err
	}

	cacheClient := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer cacheClient.Close()
	// Sessions live in Redis, so the API cannot serve without it.
	if err := cacheClient.Ping(ctx); err != nil {
		return fmt.Errorf("redis init: %w", err)
	}

	m := metrics.New()

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	bookRepo := repository.NewBookRepository(gormDB)
	borrowRepo := repository.NewBorrowRepository(gormDB)

	// Initialize auth components
	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	sessions := auth.NewRedisSessionStore(cacheClient.Redis(), jwtService)
	authenticator := auth.NewAuthenticator(sessions, m, log)

	// Initialize services
	authService := service.NewAuthService(userRepo, sessions, m, log, cfg.Auth.AllowAdminRegistration)
	bookService := service.NewBookService(bookRepo, cacheClient, log)
	borrowService := service.NewBorrowService(
		bookService,
		borrowRepo,
		newLocker(cfg.Borrow, cacheClient),
		service.BorrowConfig{
			LoanPeriod: cfg.Borrow.LoanPeriod,
			LockTTL:    cfg.Borrow.LockTTL,
			LockWait:   cfg.Borrow.LockWait,
		},
		m,
		log,
	)
	userService := service.NewUserService(userRepo, sessions, cacheClient, log)

	e := echo.New()
	router.Register(e, cfg, log, authenticator, m, router.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		Book:   handler.NewBookHandler(bookService),
		Borrow: handler.NewBorrowHandler(borrowService),
		User:   handler.NewUserHandler(userService),
		Health: handler.NewHealthHandler(
			handler.Check{Name: "database", Probe: sqlDB.PingContext},
			handler.Check{Name: "redis", Probe: cacheClient.Ping},
		),
	})

	docs.SwaggerInfo.Host = cfg.Swagger.Host

	addr := ":" + cfg.Server.Port
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("swagger", "/swagger/index.html").Msg("server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newLocker(cfg config.BorrowConfig, cacheClient *cache.Client) lock.Locker {
	if cfg.LockBackend == "memory" {
		return lock.NewMemoryLocker()
	}
	return lock.NewRedisLocker(cacheClient.Redis())
}
