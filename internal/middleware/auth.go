package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Xalid7/oshxona/internal/account"
	"github.com/Xalid7/oshxona/internal/model"
	"github.com/Xalid7/oshxona/pkg/jwtutil"
	"github.com/Xalid7/oshxona/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Context keys set by AuthMiddleware
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextUserRole = "user_role"
)

// TokenValidator parses bearer tokens
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwtutil.UserClaims, error)
}

// UserLookup loads the account behind a token
type UserLookup interface {
	GetUser(ctx context.Context, id uint) (*model.User, error)
}

// AuthMiddleware validates the JWT token and rejects deactivated accounts.
// The role comes from the stored user, so role changes apply without a new token.
func AuthMiddleware(tokens TokenValidator, users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := tokens.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid JWT token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			user, err := users.GetUser(c.Request().Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, account.ErrUserNotFound) {
					log.Warn("Token for unknown user", zap.Uint("user_id", claims.UserID))
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
				}
				log.Error("Failed to load user", zap.Uint("user_id", claims.UserID), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to authenticate"})
			}
			if !user.IsActive {
				log.Warn("Request from deactivated user", zap.Uint("user_id", user.ID))
				return c.JSON(http.StatusForbidden, echo.Map{"error": "user is deactivated"})
			}

			c.Set(ContextUserID, user.ID)
			c.Set(ContextUsername, user.Username)
			c.Set(ContextUserRole, user.Role)

			reqLog := log.With(zap.Uint("user_id", user.ID), zap.String("role", user.Role))
			c.Set("logger", reqLog)
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithContext(req.Context(), reqLog)))

			return next(c)
		}
	}
}

// RequireRole allows the request only for the listed roles. It must run after AuthMiddleware.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(ContextUserRole).(string)
			for _, r := range roles {
				if r == role {
					return next(c)
				}
			}
			logger.FromEcho(c).Warn("Role not allowed",
				zap.String("role", role),
				zap.Strings("allowed", roles),
				zap.String("path", c.Path()))
			return c.JSON(http.StatusForbidden, echo.Map{"error": "not enough permissions"})
		}
	}
}

// GetUserIDFromContext retrieves the authenticated user ID
func GetUserIDFromContext(c echo.Context) (uint, bool) {
	userID, ok := c.Get(ContextUserID).(uint)
	return userID, ok
}
