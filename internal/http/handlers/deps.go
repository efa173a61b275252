package handlers

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"stockroom/internal/bridge"
	"stockroom/internal/config"
	"stockroom/internal/http/views"
	applog "stockroom/internal/log"
)

type Deps struct {
	SocketHandler    *SocketHandler
	ItemHandler      *ItemHandler
	DashboardHandler *DashboardHandler
	DiscoveryHandler *DiscoveryHandler
}

func NewDeps(srv *bridge.Server, cfg config.Config) *Deps {
	return &Deps{
		SocketHandler:    &SocketHandler{Server: srv},
		ItemHandler:      &ItemHandler{Inv: srv.Inventory()},
		DashboardHandler: &DashboardHandler{Server: srv},
		DiscoveryHandler: &DiscoveryHandler{BridgePort: cfg.BridgePort},
	}
}

// ErrorHandler logs the cause and answers with a generic message.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok && fe.Code < 500 {
		code = fe.Code
		applog.Warn(c, "server.client_error", err, nil)
		return c.Status(code).JSON(fiber.Map{"error": fe.Message})
	}
	applog.Error(c, "server.error", err, nil)
	return c.Status(code).JSON(fiber.Map{"error": "Something went wrong. Please try again."})
}

// NewBridgeApp builds the socket server app. It serves the sync endpoint and
// the dashboard on /, plus the JSON API and a health check.
func NewBridgeApp(d *Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		Views:                 views.Engine(),
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Server().MaxRequestBodySize = 1 << 20

	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{Next: websocket.IsWebSocketUpgrade}))
	app.Use(helmet.New(helmet.Config{Next: websocket.IsWebSocketUpgrade}))

	// sync channel on / and /ws; browsers hitting / get the dashboard
	app.Get("/", d.SocketHandler.Upgrade(d.DashboardHandler.Home), d.SocketHandler.Serve())
	app.Get("/ws", d.SocketHandler.Upgrade(nil), d.SocketHandler.Serve())
	app.Get("/status", d.DashboardHandler.Status)

	api := app.Group("/api/v1", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.api.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}))
	api.Get("/items", d.ItemHandler.List)
	api.Get("/items/:rfid", d.ItemHandler.Get)

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).Render("notfound", fiber.Map{"Message": "Page not found"})
	})
	return app
}

// NewDiscoveryApp builds the /ip responder probed by clients.
func NewDiscoveryApp(d *Deps) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler, DisableStartupMessage: true})
	app.Get("/ip", d.DiscoveryHandler.IP)
	return app
}
