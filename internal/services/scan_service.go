package services

import (
	"context"
	"errors"
	"sync"
	"time"

	applog "stockroom/internal/log"
	"stockroom/internal/protocol"
)

var (
	// ErrScanPending means this client already has a scan outstanding.
	ErrScanPending = errors.New("scan already pending")
	// ErrScanBusy means another client holds the scanner.
	ErrScanBusy    = errors.New("scanner busy")
	ErrScanTimeout = errors.New("scan timed out")
)

// Withdrawer is a link that can take back a frame it has not sent yet.
type Withdrawer interface {
	Withdraw(msg protocol.Message) bool
}

type scanReply struct {
	tag string
	err error
}

// ScanService turns PING_RFID into a blocking call. At most one request is
// outstanding per client, matching the bridge's single scan slot.
type ScanService struct {
	Link Sender
	// Backstop bounds the wait when the bridge never answers, e.g. because the
	// connection dropped after the request was sent.
	Backstop time.Duration

	mu     sync.Mutex
	waiter chan scanReply
}

func NewScanService(link Sender, backstop time.Duration) *ScanService {
	return &ScanService{Link: link, Backstop: backstop}
}

// RequestScan asks the bridge for a tag and waits for RFID, RFID_BUSY,
// RFID_TIMEOUT, the backstop or ctx, whichever comes first.
func (s *ScanService) RequestScan(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.waiter != nil {
		s.mu.Unlock()
		return "", ErrScanPending
	}
	ch := make(chan scanReply, 1)
	s.waiter = ch
	s.mu.Unlock()
	defer s.clear(ch)

	ping := protocol.New(protocol.CmdPingRFID)
	if err := s.Link.Send(ping); err != nil {
		return "", err
	}
	applog.Info(nil, "scan.request", nil)

	var backstop <-chan time.Time
	if s.Backstop > 0 {
		t := time.NewTimer(s.Backstop)
		defer t.Stop()
		backstop = t.C
	}
	select {
	case r := <-ch:
		return r.tag, r.err
	case <-backstop:
		applog.Warn(nil, "scan.backstop", ErrScanTimeout, nil)
		s.withdraw(ping)
		return "", ErrScanTimeout
	case <-ctx.Done():
		s.withdraw(ping)
		return "", ctx.Err()
	}
}

// withdraw drops a ping still waiting in the offline queue, so a later
// reconnect does not claim the bridge's scan slot for nobody.
func (s *ScanService) withdraw(ping protocol.Message) {
	if w, ok := s.Link.(Withdrawer); ok && w.Withdraw(ping) {
		applog.Info(nil, "scan.withdrawn", nil)
	}
}

func (s *ScanService) clear(ch chan scanReply) {
	s.mu.Lock()
	if s.waiter == ch {
		s.waiter = nil
	}
	s.mu.Unlock()
}

// Deliver hands a scan reply to the waiting request. It reports whether msg
// was a scan reply; replies nobody waits for are logged and dropped.
func (s *ScanService) Deliver(msg protocol.Message) bool {
	var r scanReply
	switch msg.Command {
	case protocol.CmdRFID:
		r.tag = msg.Arg(0)
	case protocol.CmdRFIDBusy:
		r.err = ErrScanBusy
	case protocol.CmdRFIDTimeout:
		r.err = ErrScanTimeout
	default:
		return false
	}
	s.mu.Lock()
	ch := s.waiter
	s.waiter = nil
	s.mu.Unlock()
	if ch == nil {
		applog.Info(nil, "scan.stale", map[string]any{"cmd": msg.Command.String()})
		return true
	}
	ch <- r
	return true
}
