package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/towlink/towlink/internal/apperr"
	"github.com/towlink/towlink/internal/auth"
)

const (
	userIDLocal = "user_id"
	roleLocal   = "role"
)

// TokenVerifier validates an access token and its version.
type TokenVerifier interface {
	VerifyAccess(ctx context.Context, token string) (auth.Claims, error)
}

// JWTAuth validates bearer access tokens and stores the caller in Locals.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return apperr.New(apperr.CodeUnauthorized, "missing bearer token")
		}
		claims, err := verifier.VerifyAccess(c.UserContext(), strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return apperr.Wrap(apperr.CodeUnauthorized, err, "invalid token")
		}

		c.Locals(userIDLocal, claims.UserID)
		c.Locals(roleLocal, claims.Role)
		return c.Next()
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := Role(c)
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return apperr.New(apperr.CodeForbidden, "access denied")
	}
}

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDLocal).(string)
	return id
}

// Role returns the authenticated user's role.
func Role(c *fiber.Ctx) string {
	role, _ := c.Locals(roleLocal).(string)
	return role
}
