package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"authsvc/internal/auth"
	apperrors "authsvc/internal/errors"
	"authsvc/internal/logger"
	"authsvc/internal/model"
	"authsvc/internal/service"
)

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Secure bool
	MaxAge time.Duration
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService service.AuthService
	cookie      CookieConfig
	log         *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService service.AuthService, cookie CookieConfig, log *zap.Logger) *AuthHandler {
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = auth.DefaultSessionTTL
	}
	if log == nil {
		log = logger.L()
	}
	return &AuthHandler{authService: authService, cookie: cookie, log: log.Named("http")}
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ForgotPasswordRequest represents a password reset request.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest carries the new password.
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// MessageResponse is a plain confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserResponse wraps the public view of a user.
type UserResponse struct {
	Message string            `json:"message,omitempty"`
	User    *model.PublicUser `json:"user"`
}

// LoginResponse is returned alongside the session cookie.
type LoginResponse struct {
	Message   string            `json:"message"`
	User      *model.PublicUser `json:"user"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Register godoc
// @Summary Register a new user
// @Description Creates an unverified account and issues an email verification token.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration data"
// @Success 201 {object} UserResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.authService.Register(c.Request().Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusCreated, UserResponse{
		Message: "user registered successfully, please verify your email",
		User:    user,
	})
}

// Login godoc
// @Summary Login user
// @Description Checks credentials and sets an HttpOnly session cookie.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return err
	}

	session, err := h.authService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return h.fail(c, err)
	}

	c.SetCookie(h.sessionCookie(session.Token, int(h.cookie.MaxAge.Seconds())))
	return c.JSON(http.StatusOK, LoginResponse{
		Message:   "login successful",
		User:      session.User,
		ExpiresAt: session.ExpiresAt,
	})
}

// VerifyEmail godoc
// @Summary Verify email address
// @Tags auth
// @Produce json
// @Param token path string true "Verification token"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /auth/verify/{token} [get]
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	if err := h.authService.VerifyEmail(c.Request().Context(), c.Param("token")); err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return h.failWithStatus(c, http.StatusBadRequest, err)
		}
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "email verified successfully"})
}

// ForgotPassword godoc
// @Summary Request a password reset
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ForgotPasswordRequest true "Account email"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody()
	}

	if err := h.authService.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "password reset link sent"})
}

// ResetPassword godoc
// @Summary Reset password with a reset token
// @Tags auth
// @Accept json
// @Produce json
// @Param token path string true "Reset token"
// @Param request body ResetPasswordRequest true "New password"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /auth/reset-password/{token} [post]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := h.bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.authService.ResetPassword(c.Request().Context(), c.Param("token"), req.Password); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "password reset successfully"})
}

// Me godoc
// @Summary Current user
// @Tags auth
// @Produce json
// @Security CookieAuth
// @Security BearerAuth
// @Success 200 {object} UserResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
			Error: "authentication required",
			Code:  "UNAUTHORIZED",
		})
	}

	user, err := h.authService.GetCurrentUser(c.Request().Context(), identity)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, UserResponse{User: user})
}

// Logout godoc
// @Summary Logout user
// @Description Clears the session cookie.
// @Tags auth
// @Produce json
// @Success 200 {object} MessageResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	if identity, ok := auth.IdentityFromContext(c); ok {
		if err := h.authService.Logout(c.Request().Context(), identity); err != nil {
			return h.fail(c, err)
		}
	}

	c.SetCookie(h.sessionCookie("", -1))
	return c.JSON(http.StatusOK, MessageResponse{Message: "logged out successfully"})
}

func (h *AuthHandler) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (h *AuthHandler) bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return invalidBody()
	}
	if err := c.Validate(req); err != nil {
		h.log.Debug("request validation failed",
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusBadRequest, apperrors.ErrorResponse{
			Error: validationMessage(err),
			Code:  "VALIDATION_FAILED",
		})
	}
	return nil
}

// validationMessage describes failed fields by their request names only.
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email address")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func (h *AuthHandler) fail(c echo.Context, err error) error {
	return h.failWithStatus(c, 0, err)
}

// failWithStatus renders err through MapErrorToHTTP. A non-zero status
// overrides the mapped one. The cause is logged, never returned.
func (h *AuthHandler) failWithStatus(c echo.Context, status int, err error) error {
	httpErr := apperrors.MapErrorToHTTP(err)
	if status != 0 {
		httpErr.StatusCode = status
	}

	fields := []zap.Field{
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.String("path", c.Path()),
		zap.Int("status", httpErr.StatusCode),
		zap.Stringer("kind", apperrors.KindOf(err)),
		zap.Error(err),
	}
	if httpErr.StatusCode >= http.StatusInternalServerError {
		h.log.Error("request failed", fields...)
	} else {
		h.log.Debug("request rejected", fields...)
	}

	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
}

func invalidBody() error {
	return echo.NewHTTPError(http.StatusBadRequest, apperrors.ErrorResponse{
		Error: "invalid request body",
		Code:  "INVALID_REQUEST",
	})
}
