package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"stockroom/internal/domain"
	applog "stockroom/internal/log"
	"stockroom/internal/protocol"
)

var ErrRemoteNotFound = errors.New("tag not known to bridge")

type lookupReply struct {
	rec   domain.Record
	found bool
}

type listReply struct {
	rows []domain.Record
	err  error
}

// QueryService asks the bridge about its authoritative rows. Replies are
// matched to callers by tag (LOOKUP) or arrival (LIST_ITEMS); concurrent
// callers for the same key share one reply.
type QueryService struct {
	Link    Sender
	Timeout time.Duration

	mu      sync.Mutex
	lookups map[string][]chan lookupReply
	lists   []chan listReply
}

func NewQueryService(link Sender, timeout time.Duration) *QueryService {
	return &QueryService{Link: link, Timeout: timeout}
}

func tagKey(tag string) string { return strings.ToUpper(strings.TrimSpace(tag)) }

func (s *QueryService) wait(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout > 0 {
		return context.WithTimeout(ctx, s.Timeout)
	}
	return context.WithCancel(ctx)
}

// Lookup fetches the bridge row for tag. Unknown tags return ErrRemoteNotFound.
func (s *QueryService) Lookup(ctx context.Context, tag string) (domain.Record, error) {
	key := tagKey(tag)
	if !protocol.ValidTag(key) {
		return domain.Record{}, ErrInvalid
	}
	ch := make(chan lookupReply, 1)
	s.mu.Lock()
	if s.lookups == nil {
		s.lookups = map[string][]chan lookupReply{}
	}
	s.lookups[key] = append(s.lookups[key], ch)
	s.mu.Unlock()

	if err := s.Link.Send(protocol.New(protocol.CmdLookup, key)); err != nil {
		s.dropLookup(key, ch)
		return domain.Record{}, err
	}
	ctx, cancel := s.wait(ctx)
	defer cancel()
	select {
	case r := <-ch:
		if !r.found {
			return domain.Record{}, ErrRemoteNotFound
		}
		return r.rec, nil
	case <-ctx.Done():
		s.dropLookup(key, ch)
		return domain.Record{}, ctx.Err()
	}
}

func (s *QueryService) dropLookup(key string, ch chan lookupReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.lookups[key]
	for i, w := range ws {
		if w == ch {
			ws = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(ws) == 0 {
		delete(s.lookups, key)
		return
	}
	s.lookups[key] = ws
}

// ListRemote fetches every bridge row.
func (s *QueryService) ListRemote(ctx context.Context) ([]domain.Record, error) {
	ch := make(chan listReply, 1)
	s.mu.Lock()
	s.lists = append(s.lists, ch)
	s.mu.Unlock()

	if err := s.Link.Send(protocol.New(protocol.CmdListItems)); err != nil {
		s.dropList(ch)
		return nil, err
	}
	ctx, cancel := s.wait(ctx)
	defer cancel()
	select {
	case r := <-ch:
		return r.rows, r.err
	case <-ctx.Done():
		s.dropList(ch)
		return nil, ctx.Err()
	}
}

func (s *QueryService) dropList(ch chan listReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.lists {
		if w == ch {
			s.lists = append(s.lists[:i], s.lists[i+1:]...)
			return
		}
	}
}

// Deliver routes a query reply to its waiters and reports whether msg was one.
func (s *QueryService) Deliver(msg protocol.Message) bool {
	switch msg.Command {
	case protocol.CmdItemFound, protocol.CmdItemNotFound:
		rec := msg.Record()
		r := lookupReply{rec: rec, found: msg.Command == protocol.CmdItemFound}
		key := tagKey(rec.RFID)
		s.mu.Lock()
		ws := s.lookups[key]
		delete(s.lookups, key)
		s.mu.Unlock()
		if len(ws) == 0 {
			applog.Info(nil, "query.stale", map[string]any{"cmd": msg.Command.String(), "tag": key})
		}
		for _, w := range ws {
			w <- r
		}
		return true
	case protocol.CmdItemList:
		rows, err := msg.Records()
		s.mu.Lock()
		ws := s.lists
		s.lists = nil
		s.mu.Unlock()
		for _, w := range ws {
			w <- listReply{rows: rows, err: err}
		}
		return true
	}
	return false
}
