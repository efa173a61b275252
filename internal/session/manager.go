package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	applog "stockroom/internal/log"
	"stockroom/internal/protocol"
)

var ErrNoResolver = errors.New("no address and no resolver")

type Options struct {
	Dialer   Dialer
	Resolver Resolver
	Handler  Handler

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	QueueLimit        int

	// OnStateChange runs with the manager locked and must not call back into it.
	OnStateChange func(State)
}

type frame struct {
	raw   string
	write bool
}

// Manager owns the connection lifecycle. All methods are safe for concurrent use
// and none of them block on the network except Send, which writes inline when
// the link is open.
type Manager struct {
	opts Options

	mu           sync.Mutex
	state        State
	conn         Conn
	addr         string // last resolved address, reused by reconnects
	closedByUser bool
	queue        []frame
	inflight     []frame // writes sent but not yet acknowledged
	timer        *time.Timer
	bo           *backoff.ExponentialBackOff
	cancelDial   context.CancelFunc
	gen          uint64
	changed      chan struct{}
}

func NewManager(opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.MaxReconnectDelay < opts.ReconnectDelay {
		opts.MaxReconnectDelay = opts.ReconnectDelay
	}
	if opts.QueueLimit <= 0 {
		opts.QueueLimit = 1000
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.ReconnectDelay
	bo.MaxInterval = opts.MaxReconnectDelay
	bo.MaxElapsedTime = 0
	bo.Reset()
	return &Manager{opts: opts, bo: bo, changed: make(chan struct{})}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Addr is the last address that was resolved or given to Connect.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// Pending counts queued frames plus writes awaiting acknowledgement.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) + len(m.inflight)
}

// Connect starts dialing addr, or the resolver's answer when addr is empty.
// It returns at once and is a no-op while connecting or open.
func (m *Manager) Connect(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Connecting || m.state == Open {
		return
	}
	m.closedByUser = false
	m.stopTimerLocked()
	m.dialLocked(addr)
}

// Disconnect closes the link and suppresses reconnects until the next Connect.
// Unacknowledged writes go back to the queue.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closedByUser = true
	m.stopTimerLocked()
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.gen++
	if m.conn != nil {
		m.setStateLocked(Closing)
		_ = m.conn.Close()
		m.conn = nil
	}
	m.requeueLocked()
	if m.state != Disconnected {
		m.setStateLocked(Disconnected)
		applog.Info(nil, "session.closed", map[string]any{"addr": m.addr, "pending": len(m.queue)})
	}
}

// Send transmits msg now when open, otherwise queues it. Only encoding
// failures are returned; transport trouble never is.
func (m *Manager) Send(msg protocol.Message) error {
	raw, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	f := frame{raw: raw, write: msg.Command.IsWrite()}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Open {
		if err := m.writeLocked(f); err != nil {
			m.enqueueLocked(f)
			m.lostLocked(err)
		}
		return nil
	}
	m.enqueueLocked(f)
	m.signalLocked()
	return nil
}

// Withdraw removes msg from the queue if it has not been sent yet. It reports
// whether a queued copy was found.
func (m *Manager) Withdraw(msg protocol.Message) bool {
	raw, err := protocol.Encode(msg)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.queue {
		if f.raw == raw {
			m.queue = append(m.queue[:i:i], m.queue[i+1:]...)
			m.signalLocked()
			return true
		}
	}
	return false
}

// ackLocked retires the oldest unacknowledged write.
func (m *Manager) ackLocked() {
	if len(m.inflight) > 0 {
		m.inflight = m.inflight[1:]
		m.signalLocked()
	}
}

// Drain waits until every queued frame has been sent and every write
// acknowledged, or ctx ends.
func (m *Manager) Drain(ctx context.Context) error {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 && len(m.inflight) == 0 {
			m.mu.Unlock()
			return nil
		}
		ch := m.changed
		m.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) dialLocked(addr string) {
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	m.setStateLocked(Connecting)
	go m.dial(ctx, gen, addr)
}

func (m *Manager) dial(ctx context.Context, gen uint64, addr string) {
	if addr == "" {
		if m.opts.Resolver == nil {
			m.dialFailed(gen, addr, ErrNoResolver)
			return
		}
		var err error
		if addr, err = m.opts.Resolver.Resolve(ctx); err != nil {
			m.dialFailed(gen, addr, err)
			return
		}
	}
	m.mu.Lock()
	if gen == m.gen {
		m.addr = addr
	}
	m.mu.Unlock()

	conn, err := m.opts.Dialer.Dial(ctx, addr)
	if err != nil {
		m.dialFailed(gen, addr, err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.closedByUser || m.state != Connecting {
		_ = conn.Close()
		return
	}
	m.cancelDial = nil
	m.conn = conn
	m.bo.Reset()
	m.setStateLocked(Open)
	applog.Info(nil, "session.open", map[string]any{"addr": addr, "queued": len(m.queue)})
	m.flushLocked()
	if m.state == Open {
		go m.readLoop(gen, conn)
	}
}

func (m *Manager) dialFailed(gen uint64, addr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.state != Connecting {
		return
	}
	m.cancelDial = nil
	m.setStateLocked(Disconnected)
	applog.Warn(nil, "session.dial", err, map[string]any{"addr": addr})
	m.scheduleLocked()
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	ctx := context.Background()
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			if gen == m.gen && m.state == Open {
				m.lostLocked(err)
			}
			m.mu.Unlock()
			return
		}
		msg, err := protocol.Decode(raw)
		if err != nil {
			applog.Warn(nil, "session.decode", err, map[string]any{"frame": raw})
			continue
		}
		// frames a torn-down transport still had buffered are not ours to ack
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			applog.Info(nil, "session.stale", map[string]any{"cmd": msg.Command.String()})
			return
		}
		if msg.Command.IsAck() {
			m.ackLocked()
		}
		m.mu.Unlock()
		if m.opts.Handler != nil {
			m.opts.Handler.HandleMessage(ctx, msg)
		}
	}
}

func (m *Manager) writeLocked(f frame) error {
	if err := m.conn.WriteMessage(f.raw); err != nil {
		return err
	}
	if f.write {
		m.inflight = append(m.inflight, f)
	}
	return nil
}

// flushLocked sends the queue in FIFO order, stopping at the first failure.
func (m *Manager) flushLocked() {
	for len(m.queue) > 0 {
		if err := m.writeLocked(m.queue[0]); err != nil {
			m.lostLocked(err)
			return
		}
		m.queue = m.queue[1:]
	}
	m.queue = nil
	m.signalLocked()
}

// lostLocked tears down a failed transport and schedules a reconnect.
func (m *Manager) lostLocked(err error) {
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.gen++
	m.requeueLocked()
	m.setStateLocked(Disconnected)
	applog.Warn(nil, "session.lost", err, map[string]any{"addr": m.addr, "pending": len(m.queue)})
	m.scheduleLocked()
}

// requeueLocked puts unacknowledged writes back at the head of the queue; the
// remote outcome is unknown, so they are replayed on the next open.
func (m *Manager) requeueLocked() {
	if len(m.inflight) == 0 {
		return
	}
	q := make([]frame, 0, len(m.inflight)+len(m.queue))
	q = append(q, m.inflight...)
	m.queue = append(q, m.queue...)
	m.inflight = nil
	m.trimLocked()
}

func (m *Manager) enqueueLocked(f frame) {
	m.queue = append(m.queue, f)
	m.trimLocked()
}

// trimLocked evicts the oldest frames beyond QueueLimit.
func (m *Manager) trimLocked() {
	over := len(m.queue) - m.opts.QueueLimit
	if over <= 0 {
		return
	}
	for _, f := range m.queue[:over] {
		applog.Warn(nil, "session.queue.drop", nil, map[string]any{"frame": f.raw, "limit": m.opts.QueueLimit})
	}
	m.queue = append([]frame(nil), m.queue[over:]...)
}

func (m *Manager) scheduleLocked() {
	if m.closedByUser {
		return
	}
	m.stopTimerLocked()
	d := m.bo.NextBackOff()
	if d == backoff.Stop {
		d = m.opts.MaxReconnectDelay
	}
	gen := m.gen
	m.timer = time.AfterFunc(d, func() { m.reconnect(gen) })
	applog.Info(nil, "session.retry", map[string]any{"addr": m.addr, "delay_ms": d.Milliseconds()})
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.closedByUser || m.state != Disconnected {
		return
	}
	m.timer = nil
	m.dialLocked(m.addr)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(s)
	}
	m.signalLocked()
}

// signalLocked wakes Drain waiters.
func (m *Manager) signalLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}
