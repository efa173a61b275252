// Package session keeps one duplex connection to the bridge alive: it resolves
// the address, dials, reconnects with backoff after loss, and queues outbound
// frames while the link is down.
package session

import (
	"context"

	"stockroom/internal/protocol"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	}
	return "unknown"
}

// Conn is one live transport. ReadMessage blocks until a frame arrives or the
// transport fails; Close unblocks it.
type Conn interface {
	ReadMessage() (string, error)
	WriteMessage(frame string) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// Resolver finds the bridge address when none is configured.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Handler receives every decoded inbound message on the read goroutine.
type Handler interface {
	HandleMessage(ctx context.Context, msg protocol.Message)
}

type HandlerFunc func(ctx context.Context, msg protocol.Message)

func (f HandlerFunc) HandleMessage(ctx context.Context, msg protocol.Message) { f(ctx, msg) }
