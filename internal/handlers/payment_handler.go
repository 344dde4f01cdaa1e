package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"bechedin/internal/config"
	"bechedin/internal/escrow"
	"bechedin/internal/models"
	"bechedin/internal/services"
)

type PaymentHandler struct {
	Engine  *escrow.Engine
	Gateway *services.SSLCommerzService

	frontendURL string
	backendURL  string
}

func NewPaymentHandler(engine *escrow.Engine, gateway *services.SSLCommerzService, cfg config.Config) *PaymentHandler {
	return &PaymentHandler{
		Engine:      engine,
		Gateway:     gateway,
		frontendURL: cfg.FrontendURL,
		backendURL:  cfg.BackendURL,
	}
}

type InitPaymentRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
}

// Init starts hosted checkout for an initialized transaction and returns
// the gateway redirect URL.
func (h *PaymentHandler) Init(c *fiber.Ctx) error {
	req := new(InitPaymentRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "transaction_id is required",
		})
	}

	txn, err := h.Engine.Get(c.Context(), req.TransactionID)
	if err != nil {
		return failWith(c, err)
	}
	if txn.BuyerID != userID(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Only the buyer can pay for this escrow",
		})
	}
	if txn.Status != models.EscrowInitialized {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": fmt.Sprintf("Transaction is already %s", txn.Status),
		})
	}

	tranID := fmt.Sprintf("BDIN_%s_%d", txn.ID, time.Now().Unix())
	urls := services.ReturnURLs{
		Success: h.backendURL + "/api/payment/success",
		Fail:    h.backendURL + "/api/payment/fail",
		Cancel:  h.backendURL + "/api/payment/cancel",
		IPN:     h.backendURL + "/api/payment/ipn",
	}

	pageURL, err := h.Gateway.InitiateCheckout(c.Context(), tranID, txn.ID, txn.Amount, "Bechedin Purchase", urls)
	if err != nil {
		return failWith(c, err)
	}

	if _, err := h.Engine.AttachPaymentRef(c.Context(), txn.ID, tranID); err != nil {
		return failWith(c, err)
	}
	return c.JSON(fiber.Map{
		"url": pageURL,
	})
}

// IPN is the gateway's server-to-server payment notification. It validates
// val_id with the gateway before trusting anything, then drives the
// funds-held transition. Duplicate deliveries hit the engine's state guard
// and are acknowledged without effect.
func (h *PaymentHandler) IPN(c *fiber.Ctx) error {
	valID := c.FormValue("val_id")
	txnID := c.FormValue("value_a")
	if valID == "" || txnID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing val_id or value_a",
		})
	}

	valid, echoedTxnID, err := h.Gateway.ValidatePayment(c.Context(), valID)
	if err != nil {
		return failWith(c, err)
	}
	if !valid || (echoedTxnID != "" && echoedTxnID != txnID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Payment validation failed",
		})
	}

	if _, err := h.Engine.ConfirmPayment(c.Context(), txnID); err != nil {
		if errors.Is(err, escrow.ErrInvalidState) {
			// Already confirmed by an earlier delivery; acknowledge so the
			// gateway stops retrying.
			return c.JSON(fiber.Map{"message": "IPN received"})
		}
		return failWith(c, err)
	}
	return c.JSON(fiber.Map{"message": "IPN received"})
}

// Success is where the gateway redirects the buyer's browser after a
// completed charge. Confirmation still goes through validation, same as
// the IPN path.
func (h *PaymentHandler) Success(c *fiber.Ctx) error {
	valID := c.FormValue("val_id")
	txnID := c.FormValue("value_a")
	if txnID == "" {
		return c.Redirect(h.frontendURL + "/payment/result?status=error")
	}

	valid, _, err := h.Gateway.ValidatePayment(c.Context(), valID)
	if err != nil || !valid {
		return c.Redirect(fmt.Sprintf("%s/escrow/%s?payment=failed", h.frontendURL, txnID))
	}

	if _, err := h.Engine.ConfirmPayment(c.Context(), txnID); err != nil && !errors.Is(err, escrow.ErrInvalidState) {
		return c.Redirect(fmt.Sprintf("%s/escrow/%s?payment=failed", h.frontendURL, txnID))
	}
	return c.Redirect(fmt.Sprintf("%s/escrow/%s?payment=success", h.frontendURL, txnID))
}

func (h *PaymentHandler) Fail(c *fiber.Ctx) error {
	return c.Redirect(fmt.Sprintf("%s/escrow/%s?payment=failed", h.frontendURL, c.FormValue("value_a")))
}

func (h *PaymentHandler) Cancel(c *fiber.Ctx) error {
	return c.Redirect(fmt.Sprintf("%s/escrow/%s?payment=cancelled", h.frontendURL, c.FormValue("value_a")))
}
