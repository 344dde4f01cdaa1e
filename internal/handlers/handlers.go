package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"bechedin/internal/escrow"
)

var validate = validator.New()

// failWith maps engine errors onto the API's status codes: unknown ids are
// 404, stale preconditions are 409, party violations 403, collaborator
// failures 502.
func failWith(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, escrow.ErrInvalidState):
		status = fiber.StatusConflict
	case errors.Is(err, escrow.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, escrow.ErrGateway):
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
