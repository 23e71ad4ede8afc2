// internal/api/api.go
package api

import (
	"crypto/rand"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fieldquest/fieldquest-go/internal/conf"
	"github.com/fieldquest/fieldquest-go/internal/errors"
	"github.com/fieldquest/fieldquest-go/internal/identify"
	"github.com/fieldquest/fieldquest-go/internal/logging"
)

// ActorFunc extracts the acting user's ID from the request. The default
// implementation reads the X-User-ID header; deployments sitting behind an
// authenticating proxy replace it with their own extraction.
type ActorFunc func(ctx echo.Context) string

func defaultActorFunc(ctx echo.Context) string {
	return ctx.Request().Header.Get("X-User-ID")
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Service  *identify.Service
	Settings *conf.Settings

	actor          ActorFunc
	logger         *log.Logger
	apiLogger      *slog.Logger
	apiLevelVar    *slog.LevelVar
	apiLoggerClose func() error
	startTime      time.Time
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithActorFunc sets the user extraction function for the controller.
func WithActorFunc(fn ActorFunc) Option {
	return func(c *Controller) {
		if fn != nil {
			c.actor = fn
		}
	}
}

// New creates a new API controller and registers all routes.
func New(e *echo.Echo, service *identify.Service, settings *conf.Settings, logger *log.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = log.Default()
	}

	c := &Controller{
		Echo:        e,
		Service:     service,
		Settings:    settings,
		actor:       defaultActorFunc,
		logger:      logger,
		apiLevelVar: new(slog.LevelVar),
		startTime:   time.Now(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if settings != nil && settings.Debug {
		c.apiLevelVar.Set(slog.LevelDebug)
	} else {
		c.apiLevelVar.Set(slog.LevelInfo)
	}

	var err error
	c.apiLogger, c.apiLoggerClose, err = logging.NewFileLogger(
		filepath.Join("logs", "api.log"), "api", c.apiLevelVar)
	if err != nil {
		logger.Printf("Failed to initialize API file logger: %v", err)
		c.apiLogger = slog.Default().With("service", "api")
		c.apiLoggerClose = func() error { return nil }
	}

	e.Use(middleware.Recover())
	c.Group = e.Group("/api/v1")
	c.initRoutes()

	return c
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	c.Group.POST("/identify", c.SubmitIdentification)
	c.Group.GET("/identifications", c.ListIdentifications)
	c.Group.GET("/identifications/:id", c.GetIdentification)
	c.Group.POST("/identifications/:id/review", c.ReviewIdentification)
}

// Shutdown closes the controller's log file.
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			c.logger.Printf("Error closing API logger: %v", err)
		}
	}
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().Format(time.RFC3339),
		"uptime_seconds": time.Since(c.startTime).Seconds(),
	})
}

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates a unique identifier for error tracking
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError constructs and returns an appropriate error response. The HTTP
// status is derived from the error's category unless the caller supplies one.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	if code == 0 {
		code = httpStatusFor(err)
	}
	errorResp := NewErrorResponse(err, message, code)

	c.apiLogger.Error("API error",
		"correlation_id", errorResp.CorrelationID,
		"message", message,
		"error", errorResp.Error,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP())

	return ctx.JSON(code, errorResp)
}

// httpStatusFor maps error categories onto HTTP status codes.
func httpStatusFor(err error) int {
	switch {
	case errors.IsValidation(err):
		return http.StatusBadRequest
	case errors.IsAuthorization(err):
		return http.StatusForbidden
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// logAPIRequest is a helper to log API requests with common context fields.
func (c *Controller) logAPIRequest(ctx echo.Context, level slog.Level, msg string, args ...any) {
	if c.apiLogger == nil {
		return
	}
	baseAttrs := []any{
		"path", ctx.Request().URL.Path,
		"ip", ctx.RealIP(),
	}
	baseAttrs = append(baseAttrs, args...)
	c.apiLogger.Log(ctx.Request().Context(), level, msg, baseAttrs...)
}
