package bridge

import (
	"errors"
	"sync"
	"time"
)

var ErrScanBusy = errors.New("scan already pending")

// PendingScan is the single outstanding hardware scan.
type PendingScan struct {
	Requester string    `json:"requester"`
	Since     time.Time `json:"since"`
	Deadline  time.Time `json:"deadline"`
}

// Arbiter admits one scan at a time. It is Idle when no scan is pending and
// AwaitingScan otherwise; every exit from AwaitingScan stops the timer.
type Arbiter struct {
	timeout   time.Duration
	onTimeout func(requester string)

	mu    sync.Mutex
	cur   *PendingScan
	timer *time.Timer
	gen   uint64
}

// NewArbiter calls onTimeout, without the lock held, when a scan expires.
func NewArbiter(timeout time.Duration, onTimeout func(requester string)) *Arbiter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Arbiter{timeout: timeout, onTimeout: onTimeout}
}

// Request claims the slot for requester or returns ErrScanBusy. A busy
// request neither queues nor extends the pending one.
func (a *Arbiter) Request(requester string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur != nil {
		return ErrScanBusy
	}
	now := time.Now()
	a.cur = &PendingScan{Requester: requester, Since: now, Deadline: now.Add(a.timeout)}
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(a.timeout, func() { a.expire(gen) })
	return nil
}

// Resolve hands a scan result to the waiting requester and frees the slot.
// ok is false when nothing was pending.
func (a *Arbiter) Resolve() (requester string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur == nil {
		return "", false
	}
	requester = a.cur.Requester
	a.clearLocked()
	return requester, true
}

// Release frees the slot if requester holds it. Called on disconnect.
func (a *Arbiter) Release(requester string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur == nil || a.cur.Requester != requester {
		return false
	}
	a.clearLocked()
	return true
}

func (a *Arbiter) Pending() (PendingScan, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur == nil {
		return PendingScan{}, false
	}
	return *a.cur, true
}

func (a *Arbiter) expire(gen uint64) {
	a.mu.Lock()
	if a.cur == nil || gen != a.gen {
		a.mu.Unlock()
		return
	}
	requester := a.cur.Requester
	a.clearLocked()
	a.mu.Unlock()
	if a.onTimeout != nil {
		a.onTimeout(requester)
	}
}

func (a *Arbiter) clearLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.cur = nil
	a.gen++
}
