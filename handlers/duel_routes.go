// handlers/duel_routes.go
package handlers

import (
	"strings"

	"duel-arena/middleware"
	"duel-arena/models"
	"duel-arena/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// duelView is a duel as shown to players.
type duelView struct {
	models.Duel
	PotentialWinnings int64 `json:"potential_winnings"`
}

func viewDuel(d *models.Duel, economy services.Economy) duelView {
	return duelView{Duel: *d, PotentialWinnings: economy.Payout(d.BetAmount)}
}

func viewDuels(ds []models.Duel, economy services.Economy) []duelView {
	out := make([]duelView, 0, len(ds))
	for i := range ds {
		out = append(out, viewDuel(&ds[i], economy))
	}
	return out
}

func pageFrom(c *fiber.Ctx) services.Page {
	return services.Page{
		Limit:  c.QueryInt("limit", 20),
		Offset: c.QueryInt("offset", 0),
	}
}

type createDuelRequest struct {
	BetAmount    int64  `json:"bet_amount"`
	InviteUserID string `json:"invite_user_id"`
}

func SetupDuelRoutes(app *fiber.App, duelService *services.DuelService, battleService *services.BattleService, logger *zap.Logger) {
	log := logger.Named("http.duels")
	economy := duelService.Economy()

	secured := app.Group("/duels", middleware.UserContextMiddleware(logger))

	secured.Post("/", func(c *fiber.Ctx) error {
		var req createDuelRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		duel, err := duelService.Create(c.UserContext(), middleware.UserID(c), req.BetAmount, services.CreateOptions{
			InviteUserID: strings.TrimSpace(req.InviteUserID),
		})
		if err != nil {
			return respondError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(viewDuel(duel, economy))
	})

	secured.Get("/open", func(c *fiber.Ctx) error {
		duels, err := duelService.ListOpen(c.UserContext(), middleware.UserID(c), pageFrom(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"duels": viewDuels(duels, economy)})
	})

	// Dashboard feed: the caller's duels, optionally filtered by ?status=a,b
	secured.Get("/mine", func(c *fiber.Ctx) error {
		var statuses []models.DuelStatus
		for _, s := range strings.Split(c.Query("status"), ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, models.DuelStatus(s))
			}
		}
		duels, err := duelService.ListForUser(c.UserContext(), middleware.UserID(c), statuses, pageFrom(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(fiber.Map{"duels": viewDuels(duels, economy)})
	})

	secured.Get("/:id", func(c *fiber.Ctx) error {
		duel, err := duelService.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(viewDuel(duel, economy))
	})

	secured.Post("/:id/accept", func(c *fiber.Ctx) error {
		duel, err := duelService.Accept(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(viewDuel(duel, economy))
	})

	secured.Post("/:id/cancel", func(c *fiber.Ctx) error {
		if err := duelService.Cancel(c.UserContext(), c.Params("id"), middleware.UserID(c)); err != nil {
			return respondError(c, log, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Entering the arena creates the battle on first call.
	secured.Post("/:id/battle", func(c *fiber.Ctx) error {
		battle, err := battleService.GetOrCreate(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, log, err)
		}
		return c.JSON(battle)
	})
}
