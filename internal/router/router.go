package router

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"librarian/internal/auth"
	"librarian/internal/config"
	apperrors "librarian/internal/errors"
	"librarian/internal/handler"
	"librarian/internal/metrics"
	"librarian/internal/model"
)

// Handlers groups the HTTP handlers mounted by Register.
type Handlers struct {
	Auth   *handler.AuthHandler
	Book   *handler.BookHandler
	Borrow *handler.BorrowHandler
	User   *handler.UserHandler
	Health *handler.HealthHandler
}

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	log zerolog.Logger,
	authn *auth.Authenticator,
	m *metrics.Metrics,
	h Handlers,
) {
	e.HideBanner = true
	e.HTTPErrorHandler = apperrors.HTTPErrorHandler(log)
	e.Validator = handler.NewValidator()

	e.Use(middleware.RequestID())
	e.Use(requestLogger(log))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	e.GET("/healthz", h.Health.Live)
	e.GET("/readyz", h.Health.Ready)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api")
	if cfg.Server.RequestTimeout > 0 {
		api.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: cfg.Server.RequestTimeout,
		}))
	}

	required := authn.RequireIdentity
	adminOnly := auth.RequireRole(model.RoleAdmin)

	// Auth
	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/logout", h.Auth.Logout)
	api.GET("/auth/me", h.Auth.Me, required)

	// Catalog
	api.GET("/books", h.Book.ListBooks, authn.OptionalIdentity)
	api.GET("/books/check-isbn", h.Book.CheckISBN)
	api.GET("/books/:id", h.Book.GetBook, authn.OptionalIdentity)
	api.POST("/books", h.Book.CreateBook, required, adminOnly)
	api.POST("/books/import", h.Book.ImportBooks, required, adminOnly)
	api.PUT("/books/:id", h.Book.UpdateBook, required, adminOnly)
	api.DELETE("/books/:id", h.Book.DeleteBook, required, adminOnly)

	// Borrowing
	api.POST("/books/:id/borrow", h.Borrow.Borrow, required)
	api.POST("/books/:id/return", h.Borrow.Return, required)
	api.GET("/books/:id/borrow-status", h.Borrow.Status, required)
	api.GET("/books/:id/borrow-history", h.Borrow.History, required, adminOnly)

	// Users
	users := api.Group("/users", required, adminOnly)
	users.GET("", h.User.ListUsers)
	users.GET("/:id", h.User.GetUser)
	users.PUT("/:id", h.User.UpdateUser)
	users.DELETE("/:id", h.User.DeleteUser)
	users.GET("/:id/sessions", h.User.Sessions)
	users.GET("/:id/borrowings", h.Borrow.UserBorrowings)
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	httpLog := log.With().Str("component", "http").Logger()
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := httpLog.Info()
			if v.Status >= 500 {
				event = httpLog.Warn()
			}
			event.
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
