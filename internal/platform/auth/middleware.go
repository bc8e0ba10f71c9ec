package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/healthassist/healthassist/pkg/apperr"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	ClaimsKey contextKey = "claims"
)

// TokenExpiredHeader is set on 401 responses caused by an expired access
// token.
const TokenExpiredHeader = "X-Token-Expired"

// Verifier validates access tokens. *TokenService implements it.
type Verifier interface {
	VerifyAccessToken(token string) (*Claims, error)
}

// Middleware requires a valid bearer access token on every request the
// skipper does not exempt, and attaches the user id to the request context.
func Middleware(v Verifier, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			token, err := BearerToken(c)
			if err != nil {
				return err
			}

			claims, err := v.VerifyAccessToken(token)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					c.Response().Header().Set(TokenExpiredHeader, "true")
				}
				return err
			}

			c.Set("user_id", claims.Subject)
			ctx := context.WithValue(c.Request().Context(), UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, ClaimsKey, claims)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return "", apperr.Unauthorized("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperr.Unauthorized("invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsKey).(*Claims)
	return claims
}

// WithUserID returns ctx carrying userID as the authenticated user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
