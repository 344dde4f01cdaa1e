package routes

import (
	"github.com/gofiber/fiber/v2"

	"bechedin/internal/handlers"
	"bechedin/internal/middleware"
)

func SetupEscrowRoutes(app *fiber.App, h *handlers.EscrowHandler, jwtSecret string) {
	escrow := app.Group("/api/escrow")
	auth := middleware.Protected(jwtSecret)

	// Buyer starts the escrow for a listing
	escrow.Post("/initiate", auth, h.Initiate)

	// Manual payment confirmation after gateway validation
	escrow.Post("/:id/confirm-payment", auth, h.ConfirmPayment)

	// Courier webhooks (untrusted; state-guarded)
	escrow.Post("/:id/courier-pickup", h.CourierPickup)
	escrow.Post("/:id/courier-delivered", h.CourierDelivered)

	// Seller books the parcel, recording the tracking handle
	escrow.Post("/:id/create-parcel", auth, h.CreateParcel)

	// Buyer accepts or rejects during inspection
	escrow.Post("/:id/resolve", auth, h.Resolve)

	// Buyer abandons a pre-shipment transaction
	escrow.Post("/:id/cancel", auth, h.Cancel)

	// Listings of my transactions, then single lookup
	escrow.Get("/my-escrows", auth, h.MyEscrows)
	escrow.Get("/:id", auth, h.GetByID)
}
