// Package budget provides an atomic spend ledger so concurrent fan-out tasks
// never collectively exceed a research call's budget.
package budget

import (
	"sync"

	"github.com/rotisserie/eris"
)

// ErrExceeded is returned when a reservation would overrun the budget.
var ErrExceeded = eris.New("budget exceeded")

// Ledger tracks committed and reserved spend against a fixed limit. A task
// reserves before making a paid call, then either commits the actual cost or
// releases the reservation on failure.
type Ledger struct {
	mu        sync.Mutex
	limit     float64
	committed float64
	reserved  float64
}

// NewLedger creates a ledger with the given limit.
func NewLedger(limit float64) *Ledger {
	return &Ledger{limit: limit}
}

// Reserve sets aside amount for an upcoming call. Returns ErrExceeded when
// committed + reserved + amount would exceed the limit.
func (l *Ledger) Reserve(amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.committed+l.reserved+amount > l.limit {
		return ErrExceeded
	}
	l.reserved += amount
	return nil
}

// Commit converts a prior reservation into actual spend. The committed
// amount may be lower than reserved; the difference is released.
func (l *Ledger) Commit(reserved, actual float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserved -= reserved
	if l.reserved < 0 {
		l.reserved = 0
	}
	l.committed += actual
}

// Release returns a reservation unspent.
func (l *Ledger) Release(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserved -= amount
	if l.reserved < 0 {
		l.reserved = 0
	}
}

// Spent returns the committed total.
func (l *Ledger) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committed
}

// Remaining returns the uncommitted, unreserved headroom.
func (l *Ledger) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.limit - l.committed - l.reserved
	if r < 0 {
		return 0
	}
	return r
}

// Limit returns the ledger's fixed limit.
func (l *Ledger) Limit() float64 {
	return l.limit
}
