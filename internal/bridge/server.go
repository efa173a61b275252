package bridge

import (
	"errors"
	"strings"
	"sync"
	"time"

	applog "stockroom/internal/log"
	"stockroom/internal/protocol"
	"stockroom/internal/validate"
)

// Server applies the command vocabulary to the authoritative inventory and
// fans the results out to connected peers.
type Server struct {
	hub *Hub
	inv *Inventory
	arb *Arbiter

	// writeMu makes apply, persist, ack and broadcast one step per write.
	writeMu sync.Mutex
}

func NewServer(inv *Inventory, scanTimeout time.Duration) *Server {
	s := &Server{hub: NewHub(), inv: inv}
	s.arb = NewArbiter(scanTimeout, s.scanTimedOut)
	return s
}

func (s *Server) Hub() *Hub             { return s.hub }
func (s *Server) Inventory() *Inventory { return s.inv }
func (s *Server) Arbiter() *Arbiter     { return s.arb }

// Status is a point-in-time view for the dashboard and health checks.
type Status struct {
	Connections []string     `json:"connections"`
	Items       int          `json:"items"`
	Categories  []string     `json:"categories"`
	Scan        *PendingScan `json:"scan,omitempty"`
}

func (s *Server) Status() Status {
	st := Status{Connections: s.hub.IDs(), Items: s.inv.Len(), Categories: s.inv.Categories()}
	if p, ok := s.arb.Pending(); ok {
		st.Scan = &p
	}
	return st
}

func (s *Server) Connect(p Peer) {
	s.hub.Register(p)
	applog.Info(nil, "bridge.connect", map[string]any{"conn": p.ID(), "peers": s.hub.Len()})
}

// Disconnect drops the peer and frees the scan slot if it was waiting on one.
func (s *Server) Disconnect(id string) {
	s.hub.Unregister(id)
	if s.arb.Release(id) {
		applog.Info(nil, "scan.released", map[string]any{"conn": id})
	}
	applog.Info(nil, "bridge.disconnect", map[string]any{"conn": id, "peers": s.hub.Len()})
}

// Handle processes one frame received from a peer. Nothing here fails the
// connection: bad input is logged and answered with ERROR.
func (s *Server) Handle(from Peer, raw string) {
	msg, err := protocol.Decode(raw)
	if errors.Is(err, protocol.ErrEmpty) {
		return
	}
	if err != nil {
		applog.Warn(nil, "bridge.decode", err, map[string]any{"conn": from.ID(), "frame": raw})
		s.reply(from, protocol.Errorf("%v", err))
		return
	}
	switch msg.Command {
	case protocol.CmdAddItem, protocol.CmdUpdateItem:
		s.upsertItem(from, msg)
	case protocol.CmdDeleteItem:
		s.deleteItem(from, msg)
	case protocol.CmdAddCategory:
		s.addCategory(from, msg)
	case protocol.CmdPingRFID:
		s.requestScan(from)
	case protocol.CmdRFID:
		s.scanResult(from, msg)
	case protocol.CmdLookup:
		s.lookup(from, msg)
	case protocol.CmdListItems:
		s.listItems(from)
	default:
		applog.Warn(nil, "bridge.unsupported", nil, map[string]any{"conn": from.ID(), "cmd": msg.Command.String()})
		s.reply(from, protocol.Errorf("unsupported command %s", msg.Command))
	}
}

func (s *Server) upsertItem(from Peer, msg protocol.Message) {
	rec := msg.Record()
	var missing []string
	if rec.RFID == "" {
		missing = append(missing, "tag")
	}
	if rec.Name == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		applog.Warn(nil, "bridge.item.rejected", nil, map[string]any{"conn": from.ID(), "missing": missing})
		s.reply(from, protocol.Errorf("missing fields: %s", strings.Join(missing, ", ")))
		return
	}
	if !protocol.ValidTag(rec.RFID) {
		s.reply(from, protocol.Errorf("invalid tag %q", rec.RFID))
		return
	}
	price, ok := validate.Price(rec.Price)
	if !ok {
		applog.Warn(nil, "bridge.item.rejected", nil, map[string]any{"conn": from.ID(), "tag": rec.RFID, "price": rec.Price})
		s.reply(from, protocol.Errorf("invalid price %q", rec.Price))
		return
	}
	rec.Price = price

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	created, err := s.inv.Upsert(rec)
	if err != nil {
		applog.Error(nil, "bridge.item.persist", err, map[string]any{"conn": from.ID(), "tag": rec.RFID})
		s.reply(from, protocol.New(protocol.CmdItemNotSaved))
		return
	}
	s.reply(from, protocol.New(protocol.CmdItemSaved))
	n := s.hub.Broadcast(protocol.ItemMessage(protocol.CmdItemUpdated, rec), from.ID())
	applog.Audit(nil, "bridge.item.saved", map[string]any{
		"conn": from.ID(), "tag": rec.RFID, "created": created, "cmd": msg.Command.String(), "fanout": n,
	})
}

func (s *Server) deleteItem(from Peer, msg protocol.Message) {
	tag := msg.Arg(0)
	if tag == "" {
		s.reply(from, protocol.Errorf("missing fields: tag"))
		return
	}
	if !protocol.ValidTag(tag) {
		s.reply(from, protocol.Errorf("invalid tag %q", tag))
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	removed, err := s.inv.Delete(tag)
	if err != nil {
		applog.Error(nil, "bridge.item.persist", err, map[string]any{"conn": from.ID(), "tag": tag})
		s.reply(from, protocol.New(protocol.CmdItemNotSaved))
		return
	}
	s.reply(from, protocol.New(protocol.CmdItemSaved))
	n := s.hub.Broadcast(protocol.New(protocol.CmdItemRemoved, tag), from.ID())
	applog.Audit(nil, "bridge.item.removed", map[string]any{"conn": from.ID(), "tag": tag, "existed": removed, "fanout": n})
}

// addCategory is not acknowledged; clients treat ERROR as the reply to their
// oldest item write, so failures are only logged.
func (s *Server) addCategory(from Peer, msg protocol.Message) {
	name := msg.Arg(0)
	if name == "" {
		applog.Warn(nil, "bridge.category.rejected", nil, map[string]any{"conn": from.ID()})
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	created, err := s.inv.AddCategory(name)
	if err != nil {
		applog.Error(nil, "bridge.category.persist", err, map[string]any{"conn": from.ID(), "name": name})
		return
	}
	if !created {
		return
	}
	n := s.hub.Broadcast(protocol.New(protocol.CmdCategoryAdd, name), from.ID())
	applog.Audit(nil, "bridge.category.added", map[string]any{"conn": from.ID(), "name": name, "fanout": n})
}

// requestScan claims the arbiter and asks every other peer, scanners
// included, to read a tag.
func (s *Server) requestScan(from Peer) {
	if err := s.arb.Request(from.ID()); err != nil {
		applog.Info(nil, "scan.busy", map[string]any{"conn": from.ID()})
		s.reply(from, protocol.New(protocol.CmdRFIDBusy))
		return
	}
	n := s.hub.Broadcast(protocol.New(protocol.CmdPingRFID), from.ID())
	applog.Info(nil, "scan.request", map[string]any{"conn": from.ID(), "fanout": n})
}

func (s *Server) scanResult(from Peer, msg protocol.Message) {
	tag := msg.Arg(0)
	if !protocol.ValidTag(tag) {
		applog.Warn(nil, "scan.invalid", nil, map[string]any{"conn": from.ID(), "tag": tag})
		return
	}
	requester, ok := s.arb.Resolve()
	if !ok {
		applog.Warn(nil, "scan.unsolicited", nil, map[string]any{"conn": from.ID(), "tag": tag})
		return
	}
	if err := s.hub.Send(requester, protocol.ScanResult(tag)); err != nil {
		applog.Warn(nil, "scan.deliver", err, map[string]any{"conn": requester, "tag": tag})
		return
	}
	applog.Info(nil, "scan.result", map[string]any{"conn": requester, "scanner": from.ID(), "tag": tag})
}

func (s *Server) scanTimedOut(requester string) {
	applog.Info(nil, "scan.timeout", map[string]any{"conn": requester})
	if err := s.hub.Send(requester, protocol.New(protocol.CmdRFIDTimeout)); err != nil {
		applog.Warn(nil, "scan.deliver", err, map[string]any{"conn": requester})
	}
}

func (s *Server) lookup(from Peer, msg protocol.Message) {
	tag := msg.Arg(0)
	if !protocol.ValidTag(tag) {
		s.reply(from, protocol.Errorf("missing fields: tag"))
		return
	}
	if rec, ok := s.inv.Get(tag); ok {
		s.reply(from, protocol.ItemMessage(protocol.CmdItemFound, rec))
		return
	}
	s.reply(from, protocol.New(protocol.CmdItemNotFound, tag))
}

func (s *Server) listItems(from Peer) {
	msg, err := protocol.ItemList(s.inv.List())
	if err != nil {
		applog.Error(nil, "bridge.list", err, map[string]any{"conn": from.ID()})
		return
	}
	s.reply(from, msg)
}

func (s *Server) reply(to Peer, msg protocol.Message) {
	raw, err := protocol.Encode(msg)
	if err != nil {
		applog.Error(nil, "bridge.reply", err, map[string]any{"conn": to.ID(), "cmd": msg.Command.String()})
		return
	}
	if err := to.Send(raw); err != nil {
		applog.Warn(nil, "bridge.reply", err, map[string]any{"conn": to.ID(), "cmd": msg.Command.String()})
	}
}
