// middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	localUserID   = "user_id"
	localUsername = "username"
	localRoles    = "user_roles"
)

// UserContextMiddleware extracts the caller identity forwarded by the gateway.
// Requests without X-User-ID are rejected: every duel operation needs a caller.
func UserContextMiddleware(logger *zap.Logger) fiber.Handler {
	log := logger.Named("user_ctx")
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Debug("missing X-User-ID", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
				"code":  "unauthenticated",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(localUserID, userID)
		c.Locals(localUsername, strings.TrimSpace(c.Get("X-Username")))
		c.Locals(localRoles, roles)
		return c.Next()
	}
}

// UserID returns the authenticated caller, or "" outside the user context.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

// Username returns the gateway-provided username, if any.
func Username(c *fiber.Ctx) string {
	name, _ := c.Locals(localUsername).(string)
	return name
}

// Roles returns the caller's roles.
func Roles(c *fiber.Ctx) []string {
	roles, _ := c.Locals(localRoles).([]string)
	return roles
}
