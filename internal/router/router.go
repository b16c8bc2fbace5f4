package router

import (
	"math"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"authsvc/internal/auth"
	"authsvc/internal/config"
	apperrors "authsvc/internal/errors"
	"authsvc/internal/handler"
	"authsvc/internal/logger"
)

// Register wires routes and middleware. A nil revoker disables the
// revocation check on session routes.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	jwtService *auth.JWTService,
	revoker auth.SessionRevoker,
	log *zap.Logger,
) {
	if log == nil {
		log = logger.L()
	}

	e.Use(middleware.RequestID())
	e.Use(requestLogger(log))
	e.Use(middleware.Recover())

	// Add validator
	e.Validator = &CustomValidator{validator: validator.New()}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api/auth")

	// Credential endpoints are rate limited per client IP.
	limited := api.Group("", rateLimiter(cfg.RateLimitRPS))
	limited.POST("/register", authHandler.Register)
	limited.POST("/login", authHandler.Login)
	limited.POST("/forgot-password", authHandler.ForgotPassword)
	limited.POST("/reset-password/:token", authHandler.ResetPassword)

	api.GET("/verify/:token", authHandler.VerifyEmail)
	api.POST("/logout", authHandler.Logout, auth.OptionalSessionMiddleware(jwtService, revoker))

	// Secured routes (require a session)
	api.GET("/me", authHandler.Me, auth.SessionMiddleware(jwtService, revoker))
}

func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("request_id", v.RequestID),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Status >= http.StatusInternalServerError {
				log.Error("request", append(fields, zap.Error(v.Error))...)
			} else {
				log.Info("request", fields...)
			}
			return nil
		},
	})
}

// rateLimiter allows rps requests per second per client IP, with a burst of
// twice that. rps <= 0 disables limiting.
func rateLimiter(rps float64) echo.MiddlewareFunc {
	if rps <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	burst := int(math.Ceil(rps * 2))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(rps),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, apperrors.ErrorResponse{
				Error: "unable to identify client",
				Code:  "FORBIDDEN",
			})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, apperrors.ErrorResponse{
				Error: "too many requests",
				Code:  "RATE_LIMITED",
			})
		},
	})
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
