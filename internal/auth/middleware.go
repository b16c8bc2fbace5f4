package auth

import (
	"errors"
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	apperrors "authsvc/internal/errors"
)

const (
	// SessionCookieName is the cookie carrying the session token.
	SessionCookieName = "token"

	identityContextKey = "session"
)

// ErrSessionRevoked is returned for a token that was logged out.
var ErrSessionRevoked = errors.New("session revoked")

// SessionMiddleware authenticates requests by session cookie or bearer
// header. A nil revoker disables the revocation check.
func SessionMiddleware(jwtService *JWTService, revoker SessionRevoker) echo.MiddlewareFunc {
	cfg := sessionConfig(jwtService, revoker)
	cfg.ErrorHandler = func(c echo.Context, err error) error {
		return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
			Error: "authentication required",
			Code:  "UNAUTHORIZED",
		})
	}
	return echojwt.WithConfig(cfg)
}

// OptionalSessionMiddleware resolves the identity when a valid session is
// present and lets the request through either way.
func OptionalSessionMiddleware(jwtService *JWTService, revoker SessionRevoker) echo.MiddlewareFunc {
	cfg := sessionConfig(jwtService, revoker)
	cfg.ContinueOnIgnoredError = true
	cfg.ErrorHandler = func(c echo.Context, err error) error { return nil }
	return echojwt.WithConfig(cfg)
}

func sessionConfig(jwtService *JWTService, revoker SessionRevoker) echojwt.Config {
	return echojwt.Config{
		TokenLookup: "cookie:" + SessionCookieName + ",header:" + echo.HeaderAuthorization + ":Bearer ",
		ContextKey:  identityContextKey,
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				return nil, err
			}
			identity, err := claims.Identity()
			if err != nil {
				return nil, err
			}
			if revoker != nil {
				revoked, err := revoker.IsSessionRevoked(c.Request().Context(), identity.TokenID)
				if err != nil {
					return nil, err
				}
				if revoked {
					return nil, ErrSessionRevoked
				}
			}
			return identity, nil
		},
	}
}

// IdentityFromContext returns the identity stored by the session middleware.
func IdentityFromContext(c echo.Context) (Identity, bool) {
	identity, ok := c.Get(identityContextKey).(Identity)
	return identity, ok
}
