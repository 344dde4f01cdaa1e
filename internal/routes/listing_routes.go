package routes

import (
	"github.com/gofiber/fiber/v2"

	"bechedin/internal/handlers"
	"bechedin/internal/middleware"
)

func SetupListingRoutes(app *fiber.App, h *handlers.ListingHandler, jwtSecret string) {
	listings := app.Group("/api/listings")

	listings.Post("/", middleware.Protected(jwtSecret), h.Create)
	listings.Get("/", h.List)
	listings.Get("/:id", h.GetByID)
}
