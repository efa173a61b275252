package handlers

import (
	"github.com/gofiber/fiber/v2"

	"stockroom/internal/bridge"
	applog "stockroom/internal/log"
	"stockroom/internal/validate"
)

// ItemHandler is the read-only JSON view of the authoritative rows.
type ItemHandler struct {
	Inv *bridge.Inventory
}

// GET /api/v1/items
func (h *ItemHandler) List(c *fiber.Ctx) error {
	return c.JSON(h.Inv.List())
}

// GET /api/v1/items/:rfid
func (h *ItemHandler) Get(c *fiber.Ctx) error {
	tag, ok := validate.Tag(c.Params("rfid"))
	if !ok {
		applog.Warn(c, "api.item.invalid", nil, map[string]any{"tag": c.Params("rfid")})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid rfid"})
	}
	rec, ok := h.Inv.Get(tag)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}
	return c.JSON(rec)
}
