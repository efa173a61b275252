package handlers

import (
	"github.com/gofiber/fiber/v2"

	"stockroom/internal/discovery"
	applog "stockroom/internal/log"
)

// DiscoveryHandler answers the LAN probe with where the socket server listens.
type DiscoveryHandler struct {
	BridgePort int
	// LocalIP defaults to discovery.LocalIP.
	LocalIP func() string
}

// GET /ip
func (h *DiscoveryHandler) IP(c *fiber.Ctx) error {
	lookup := h.LocalIP
	if lookup == nil {
		lookup = discovery.LocalIP
	}
	ip := lookup()
	if ip == "" {
		applog.Warn(c, "discovery.no_ip", nil, nil)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no LAN address"})
	}
	return c.JSON(discovery.Answer{IP: ip, Port: h.BridgePort})
}
