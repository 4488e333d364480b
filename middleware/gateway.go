// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// GatewayAuthMiddleware validates the Bearer token sent by the gateway.
// Every route sits behind it; the service is never exposed directly.
func GatewayAuthMiddleware(expectedToken string, logger *zap.Logger) fiber.Handler {
	log := logger.Named("gateway_auth")
	if expectedToken == "" {
		log.Fatal("GAME_SERVICE_TOKEN is not set, service cannot authenticate gateway")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			log.Debug("missing authorization header", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
				"code":  "unauthenticated",
			})
		}

		// The gateway may send the raw token without the Bearer prefix.
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Warn("invalid gateway token", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
				"code":  "unauthenticated",
			})
		}
		return c.Next()
	}
}
