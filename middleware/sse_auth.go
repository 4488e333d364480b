// middleware/sse_auth.go
package middleware

import (
	"context"
	"strings"

	"duel-arena/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenValidator resolves a browser access token to a user.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*services.ValidateResponse, error)
}

// SSEAuthMiddleware authenticates EventSource requests. A gateway-forwarded
// X-User-ID wins; otherwise `token` and `device_id` query params are checked
// with the auth service.
//
// Usage:
//
//	app.Get("/notifications/stream", middleware.SSEAuthMiddleware(authClient, logger), h.Stream)
func SSEAuthMiddleware(validator TokenValidator, logger *zap.Logger) fiber.Handler {
	log := logger.Named("sse_auth")
	return func(c *fiber.Ctx) error {
		if userID := strings.TrimSpace(c.Get("X-User-ID")); userID != "" {
			c.Locals(localUserID, userID)
			return c.Next()
		}

		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))
		if accessToken == "" || deviceID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing token or device_id in query",
				"code":  "unauthenticated",
			})
		}
		if validator == nil {
			log.Warn("query token received but no auth service is configured")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "token authentication is not available",
				"code":  "unauthenticated",
			})
		}

		resp, err := validator.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			log.Info("token validation failed",
				zap.String("token_prefix", accessToken[:min(6, len(accessToken))]),
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
				"code":  "unauthenticated",
			})
		}

		c.Locals(localUserID, resp.UserID)
		c.Locals(localRoles, resp.Roles)
		log.Debug("sse client authenticated", zap.String("user_id", resp.UserID), zap.String("device_id", resp.DeviceID))
		return c.Next()
	}
}
