package rendcache

import (
	"log/slog"
	"math"
	"sync"
)

// accountant is the Allocation Accountant of rendcache.spec.md §4.A: a
// single non-negative, saturating running total of resident bytes. It
// exists to drive the sweeper's force-eviction loop, not to report exact
// memory usage, so both add and sub saturate instead of wrapping.
type accountant struct {
	mu    sync.Mutex
	total uint64

	warnedOverflow  bool
	warnedUnderflow bool

	logger *slog.Logger
}

func newAccountant(logger *slog.Logger) *accountant {
	if logger == nil {
		logger = slog.Default()
	}
	return &accountant{logger: logger}
}

// add credits n bytes, saturating at math.MaxUint64 and warning once per
// process lifetime the first time saturation occurs.
func (a *accountant) add(n uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n > math.MaxUint64-a.total {
		a.total = math.MaxUint64
		if !a.warnedOverflow {
			a.warnedOverflow = true
			a.logger.Warn("rendcache: accountant overflow, saturating at max", "attempted_add", n)
		}
		return
	}
	a.total += n
}

// sub debits n bytes, clamping to zero and warning once per process
// lifetime the first time an over-debit occurs.
func (a *accountant) sub(n uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n > a.total {
		prev := a.total
		a.total = 0
		if !a.warnedUnderflow {
			a.warnedUnderflow = true
			a.logger.Warn("rendcache: accountant underflow, clamping to zero", "attempted_sub", n, "had", prev)
		}
		return
	}
	a.total -= n
}

func (a *accountant) get() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

func (a *accountant) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total = 0
}
