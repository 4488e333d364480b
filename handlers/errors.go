// handlers/errors.go
package handlers

import (
	"errors"

	"duel-arena/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrUnauthenticated):
		return fiber.StatusUnauthorized
	case errors.Is(err, services.ErrAuthorization):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrAlreadySettled):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrInsufficientFunds):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes {"error", "code"} for err. Lost races are routine and
// logged at debug; anything unclassified is logged as an error and its
// details are not leaked.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := statusFor(err)
	msg := err.Error()

	switch {
	case status == fiber.StatusInternalServerError:
		log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("code", services.ErrorCode(err)),
			zap.Error(err),
		)
		if !errors.Is(err, services.ErrConsistencyViolation) {
			msg = "internal server error"
		}
	case status == fiber.StatusConflict:
		log.Debug("conflict", zap.String("path", c.Path()), zap.Error(err))
	}

	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"code":  services.ErrorCode(err),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"code":  "invalid_request",
	})
}
