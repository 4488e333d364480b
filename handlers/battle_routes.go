// handlers/battle_routes.go
package handlers

import (
	"duel-arena/combat"
	"duel-arena/middleware"
	"duel-arena/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type submitMoveRequest struct {
	MoveID string `json:"move_id"`
}

func SetupBattleRoutes(app *fiber.App, battleService *services.BattleService, logger *zap.Logger) {
	log := logger.Named("http.battles")

	app.Get("/moves", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"moves": combat.Moves()})
	})

	secured := app.Group("/battles", middleware.UserContextMiddleware(logger))

	secured.Get("/:id", func(c *fiber.Ctx) error {
		battle, err := battleService.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, log, err)
		}
		if !battle.IsParticipant(middleware.UserID(c)) {
			return respondError(c, log, services.ErrNotParticipant)
		}
		return c.JSON(battle)
	})

	secured.Post("/:id/moves", func(c *fiber.Ctx) error {
		var req submitMoveRequest
		if err := c.BodyParser(&req); err != nil || req.MoveID == "" {
			return badRequest(c, "move_id is required")
		}
		result, err := battleService.SubmitMove(c.UserContext(), c.Params("id"), middleware.UserID(c), req.MoveID)
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(result)
	})
}
