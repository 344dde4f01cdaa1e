package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"bechedin/internal/listings"
	"bechedin/internal/models"
)

// ListingHandler is the thin catalog surface that feeds the escrow engine.
// Search, media and moderation live elsewhere.
type ListingHandler struct {
	Registry *listings.Registry
}

func NewListingHandler(registry *listings.Registry) *ListingHandler {
	return &ListingHandler{Registry: registry}
}

type CreateListingRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Price       int64  `json:"price" validate:"required,gt=0"`
}

func (h *ListingHandler) Create(c *fiber.Ctx) error {
	req := new(CreateListingRequest)
	if err := c.BodyParser(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "title and a positive price are required",
		})
	}

	listing := &models.Listing{
		SellerID:    userID(c),
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
	}
	if err := h.Registry.Create(c.Context(), listing); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create listing",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Listing created",
		"listing": listing,
	})
}

func (h *ListingHandler) GetByID(c *fiber.Ctx) error {
	listing, err := h.Registry.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Listing not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Database error",
		})
	}
	return c.JSON(fiber.Map{
		"listing": listing,
	})
}

func (h *ListingHandler) List(c *fiber.Ctx) error {
	active, err := h.Registry.ListActive(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve listings",
		})
	}
	return c.JSON(fiber.Map{
		"listings": active,
		"count":    len(active),
	})
}
