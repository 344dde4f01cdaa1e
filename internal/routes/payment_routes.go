package routes

import (
	"github.com/gofiber/fiber/v2"

	"bechedin/internal/handlers"
	"bechedin/internal/middleware"
)

func SetupPaymentRoutes(app *fiber.App, h *handlers.PaymentHandler, jwtSecret string) {
	payment := app.Group("/api/payment")

	// Buyer starts hosted checkout
	payment.Post("/init", middleware.Protected(jwtSecret), h.Init)

	// Gateway callbacks: server-to-server IPN plus browser redirects
	payment.Post("/ipn", h.IPN)
	payment.Post("/success", h.Success)
	payment.Post("/fail", h.Fail)
	payment.Post("/cancel", h.Cancel)
}
