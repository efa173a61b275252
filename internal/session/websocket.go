package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
)

// WSDialer dials the bridge over WebSocket. Addresses without a scheme get ws://.
type WSDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func (d WSDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 5 * time.Second
	}
	c, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, err
	}
	wt := d.WriteTimeout
	if wt <= 0 {
		wt = 5 * time.Second
	}
	return &wsConn{c: c, writeTimeout: wt}, nil
}

type wsConn struct {
	c            *websocket.Conn
	writeTimeout time.Duration
	wmu          sync.Mutex
}

func (w *wsConn) ReadMessage() (string, error) {
	for {
		kind, p, err := w.c.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return string(p), nil
		}
	}
}

func (w *wsConn) WriteMessage(frame string) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.c.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (w *wsConn) Close() error {
	w.wmu.Lock()
	_ = w.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	w.wmu.Unlock()
	return w.c.Close()
}
