package handlers

import (
	"github.com/gofiber/fiber/v2"

	"stockroom/internal/bridge"
)

type DashboardHandler struct {
	Server *bridge.Server
}

// GET /
func (h *DashboardHandler) Home(c *fiber.Ctx) error {
	return render(c, "dashboard", fiber.Map{
		"Status": h.Server.Status(),
		"Items":  h.Server.Inventory().List(),
	})
}

// GET /status
func (h *DashboardHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.Server.Status())
}
