// handlers/notification_routes.go
package handlers

import (
	"bufio"
	"context"
	"errors"
	"time"

	"duel-arena/middleware"
	"duel-arena/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupNotificationRoutes(
	app *fiber.App,
	notificationService *services.NotificationService,
	validator middleware.TokenValidator,
	pollInterval time.Duration,
	logger *zap.Logger,
) {
	log := logger.Named("http.notifications")

	// Registered before the group so the header-based user context does not
	// shadow the query-token auth.
	app.Get("/notifications/stream", middleware.SSEAuthMiddleware(validator, logger), func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		ctx := c.Context()
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			err := notificationService.Stream(ctx, w, userID, pollInterval)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Debug("sse stream closed", zap.String("user_id", userID), zap.Error(err))
			}
		})
		return nil
	})

	secured := app.Group("/notifications", middleware.UserContextMiddleware(logger))

	secured.Get("/", func(c *fiber.Ctx) error {
		list, err := notificationService.List(c.UserContext(), middleware.UserID(c), services.ListOptions{
			Limit:      c.QueryInt("limit", 20),
			UnreadOnly: c.QueryBool("unread", false),
		})
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"notifications": list})
	})

	secured.Get("/unread-count", func(c *fiber.Ctx) error {
		count, err := notificationService.UnreadCount(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"unread": count})
	})

	secured.Post("/read-all", func(c *fiber.Ctx) error {
		n, err := notificationService.MarkAllRead(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"updated": n})
	})

	secured.Post("/:id/read", func(c *fiber.Ctx) error {
		if err := notificationService.MarkRead(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
			return respondError(c, log, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	secured.Delete("/:id", func(c *fiber.Ctx) error {
		if err := notificationService.Delete(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
			return respondError(c, log, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
