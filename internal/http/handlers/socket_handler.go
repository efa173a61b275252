package handlers

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"stockroom/internal/bridge"
	applog "stockroom/internal/log"
)

// SocketHandler serves the sync channel. Every upgraded connection becomes a
// bridge peer with a fresh uuid and its own read loop.
type SocketHandler struct {
	Server       *bridge.Server
	WriteTimeout time.Duration
}

// Upgrade lets WebSocket handshakes through to Serve. Plain requests go to
// fallback, or get 426 when there is none.
func (h *SocketHandler) Upgrade(fallback fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("conn_id", uuid.NewString())
			return c.Next()
		}
		if fallback != nil {
			return fallback(c)
		}
		return fiber.ErrUpgradeRequired
	}
}

// Serve returns the fiber handler running one connection.
func (h *SocketHandler) Serve() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		id, _ := c.Locals("conn_id").(string)
		if id == "" {
			id = uuid.NewString()
		}
		p := &wsPeer{id: id, c: c, writeTimeout: h.WriteTimeout}
		if p.writeTimeout <= 0 {
			p.writeTimeout = 5 * time.Second
		}
		h.Server.Connect(p)
		defer h.Server.Disconnect(id)

		for {
			kind, data, err := c.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					applog.Warn(nil, "bridge.read", err, map[string]any{"conn": id})
				}
				return
			}
			if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
				continue
			}
			h.Server.Handle(p, string(data))
		}
	})
}

type wsPeer struct {
	id           string
	c            *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (p *wsPeer) ID() string { return p.id }

func (p *wsPeer) Send(frame string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.c.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	return p.c.WriteMessage(websocket.TextMessage, []byte(frame))
}
