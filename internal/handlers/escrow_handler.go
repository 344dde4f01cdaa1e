package handlers

import (
	"github.com/gofiber/fiber/v2"

	"bechedin/internal/escrow"
	"bechedin/internal/services"
)

type EscrowHandler struct {
	Engine  *escrow.Engine
	Courier *services.CourierService
}

func NewEscrowHandler(engine *escrow.Engine, courier *services.CourierService) *EscrowHandler {
	return &EscrowHandler{Engine: engine, Courier: courier}
}

type InitiateEscrowRequest struct {
	ListingID string `json:"listing_id" validate:"required"`
}

type ResolveEscrowRequest struct {
	Action string `json:"action" validate:"required,oneof=ACCEPT REJECT"`
}

type CreateParcelRequest struct {
	RecipientName  string `json:"recipient_name" validate:"required"`
	RecipientPhone string `json:"recipient_phone" validate:"required"`
	Address        string `json:"address" validate:"required"`
}

// Initiate creates an escrow transaction for a listing on behalf of the
// authenticated buyer.
func (h *EscrowHandler) Initiate(c *fiber.Ctx) error {
	req := new(InitiateEscrowRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "listing_id is required",
		})
	}

	txn, err := h.Engine.Initiate(c.Context(), req.ListingID, userID(c))
	if err != nil {
		return failWith(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":     "Escrow initiated",
		"transaction": txn,
	})
}

// ConfirmPayment is the manual confirmation path once gateway validation
// succeeded. The IPN drives the same transition server-to-server.
func (h *EscrowHandler) ConfirmPayment(c *fiber.Ctx) error {
	txn, err := h.Engine.ConfirmPayment(c.Context(), c.Params("id"))
	if err != nil {
		return failWith(c, err)
	}
	return c.JSON(fiber.Map{
		"message":     "Payment confirmed, funds held",
		"transaction": txn,
	})
}

// CourierPickup is the courier's pickup webhook. Untrusted input: the state
// guard rejects anything out of order.
func (h *EscrowHandler) CourierPickup(c *fiber.Ctx) error {
	txn, err := h.Engine.RecordCourierPickup(c.Context(), c.Params("id"))
	if err != nil {
		return failWith(c, err)
	}
	return c.JSON(fiber.Map{
		"message":     "Item picked up by courier",
		"transaction": txn,
	})
}

// CourierDelivered is the courier's delivery webhook; it opens the
// inspection window.
func (h *EscrowHandler) CourierDelivered(c *fiber.Ctx) error {
	txn, err := h.Engine.RecordDelivery(c.Context(), c.Params("id"))
	if err != nil {
		return failWith(c, err)
	}
	return c.JSON(fiber.Map{
		"message":     "Item delivered. Inspection period started.",
		"transaction": txn,
	})
}

// Resolve settles an inspecting transaction with ACCEPT or REJECT.
func (h *EscrowHandler) Resolve(c *fiber.Ctx) error {
	req := new(ResolveEscrowRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "action must be ACCEPT or REJECT",
		})
	}

	txn, err := h.Engine.Resolve(c.Context(), c.Params("id"), req.Action, userID(c))
	if err != nil {
		return failWith(c, err)
	}
	return c.JSON(fiber.Map{
		"message":     "Escrow resolved",
		"transaction": txn,
	})
}

// Cancel abandons a pre-shipment transaction and releases the listing.
func (h *EscrowHandler) Cancel(c *fiber.Ctx) error {
	txn, err := h.Engine.Cancel(c.Context(), c.Params("id"), userID(c))
	if err != nil {
		return failWith(c, err)
	}
	return c.JSON(fiber.Map{
		"message":     "Escrow cancelled",
		"transaction": txn,
	})
}

// CreateParcel books the courier pickup for a funds-held transaction and
// records the tracking handle. Seller action.
func (h *EscrowHandler) CreateParcel(c *fiber.Ctx) error {
	req := new(CreateParcelRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "recipient_name, recipient_phone and address are required",
		})
	}

	id := c.Params("id")
	txn, err := h.Engine.Get(c.Context(), id)
	if err != nil {
		return failWith(c, err)
	}
	if txn.SellerID != userID(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Only the seller can create the parcel",
		})
	}

	handle, err := h.Courier.CreateParcel(c.Context(), req.RecipientName, req.RecipientPhone, req.Address, id)
	if err != nil {
		return failWith(c, err)
	}

	txn, err = h.Engine.AttachTrackingHandle(c.Context(), id, handle)
	if err != nil {
		return failWith(c, err)
	}
	return c.JSON(fiber.Map{
		"message":         "Parcel created",
		"tracking_handle": handle,
		"transaction":     txn,
	})
}

// GetByID returns the full transaction record to one of its parties.
func (h *EscrowHandler) GetByID(c *fiber.Ctx) error {
	txn, err := h.Engine.Get(c.Context(), c.Params("id"))
	if err != nil {
		return failWith(c, err)
	}

	uid := userID(c)
	if txn.BuyerID != uid && txn.SellerID != uid {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have access to this escrow",
		})
	}
	return c.JSON(fiber.Map{
		"transaction": txn,
	})
}

// MyEscrows lists the caller's transactions, optionally filtered by role.
func (h *EscrowHandler) MyEscrows(c *fiber.Ctx) error {
	txns, err := h.Engine.ListByUser(c.Context(), userID(c), c.Query("role"))
	if err != nil {
		return failWith(c, err)
	}
	return c.JSON(fiber.Map{
		"transactions": txns,
		"count":        len(txns),
	})
}
