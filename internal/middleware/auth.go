// Package middleware provides HTTP middleware components for the application.
// It includes authentication and authorization middleware for the fiber web framework.
package middleware

import (
	"context"
	"strings"

	"settlr/internal/models"
	"settlr/internal/utils"
	"settlr/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// UserLookup loads the user a token was issued for.
type UserLookup interface {
	GetUser(ctx context.Context, userID uint) (*models.User, error)
}

// AuthMiddleware handles JWT token validation and user authentication.
// It extracts the JWT token from the Authorization header, validates it,
// and adds the user claims to the request context.
type AuthMiddleware struct {
	secret string
	users  UserLookup
	log    *zap.Logger
}

func NewAuthMiddleware(secret string, users UserLookup, log *zap.Logger) *AuthMiddleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthMiddleware{
		secret: secret,
		users:  users,
		log:    log.Named("auth"),
	}
}

// Handler validates JWT tokens and adds claims to the request context.
// It checks for:
// - Presence of Authorization header with Bearer token
// - Valid JWT signature and expiration
// - Token version matches current user version
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return response.Unauthorized(c, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return response.Unauthorized(c, "invalid authorization format")
	}

	claims, err := utils.ParseToken(strings.TrimPrefix(authHeader, "Bearer "), m.secret)
	if err != nil {
		m.log.Debug("token validation failed", zap.String("ip", c.IP()), zap.Error(err))
		return response.Unauthorized(c, "invalid token")
	}

	if m.users != nil {
		user, err := m.users.GetUser(c.UserContext(), claims.UserID)
		if err != nil {
			m.log.Info("token for unknown user", zap.Uint("user_id", claims.UserID))
			return response.Unauthorized(c, "invalid token")
		}
		if user.TokenVersion != claims.TokenVersion {
			return response.Unauthorized(c, "session expired")
		}
	}

	c.Locals("claims", claims)
	c.Locals("userID", claims.UserID)
	return c.Next()
}

// AdminAuthMiddleware verifies that the request has valid admin claims.
func AdminAuthMiddleware(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return response.Unauthorized(c, "invalid claims")
	}
	if !claims.IsAdmin() {
		return response.Forbidden(c, "insufficient permissions")
	}
	return c.Next()
}

// HasPermission returns a middleware that checks for a specific permission.
func HasPermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := utils.GetUserClaims(c)
		if err != nil {
			return response.Unauthorized(c, "invalid claims")
		}
		// If user is admin, allow all permissions
		if claims.IsAdmin() || claims.HasPermission(permission) {
			return c.Next()
		}
		return response.Forbidden(c, "insufficient permissions")
	}
}
