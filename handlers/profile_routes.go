// handlers/profile_routes.go
package handlers

import (
	"duel-arena/middleware"
	"duel-arena/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupProfileRoutes(app *fiber.App, profileService *services.ProfileService, logger *zap.Logger) {
	log := logger.Named("http.profiles")
	userCtx := middleware.UserContextMiddleware(logger)

	profiles := app.Group("/profiles", userCtx)

	// Bootstraps the caller's profile on first visit.
	profiles.Get("/me", func(c *fiber.Ctx) error {
		profile, err := profileService.Ensure(c.UserContext(), middleware.UserID(c), middleware.Username(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(profile)
	})

	// Used by the challenge dialog to pick an invitee.
	profiles.Get("/", func(c *fiber.Ctx) error {
		found, err := profileService.Search(c.UserContext(), c.Query("q"), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"profiles": found})
	})

	profiles.Get("/:id", func(c *fiber.Ctx) error {
		profile, err := profileService.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(profile)
	})

	app.Get("/leaderboard", userCtx, func(c *fiber.Ctx) error {
		by := services.LeaderboardBy(c.Query("by", string(services.LeaderboardByCoins)))
		defaultLimit := 20
		if by == services.LeaderboardByWins {
			defaultLimit = 10
		}
		top, err := profileService.Leaderboard(c.UserContext(), by, c.QueryInt("limit", defaultLimit))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"by": by, "profiles": top})
	})
}
