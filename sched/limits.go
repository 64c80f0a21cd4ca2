package sched

import (
	"time"

	"golang.org/x/time/rate"
)

// budget wraps a golang.org/x/time/rate.Limiter as the per-second byte
// budget for one direction (up or down). A zero configured limit maps to
// rate.Inf, matching spec.md §4.E's "0 ⇒ unlimited".
type budget struct {
	lim *rate.Limiter
	cap int64 // configured bytes/sec; 0 means unlimited
}

func newBudget(bytesPerSec int64) *budget {
	b := &budget{cap: bytesPerSec}
	b.reset(bytesPerSec)
	return b
}

func (b *budget) reset(bytesPerSec int64) {
	b.cap = bytesPerSec
	if bytesPerSec <= 0 {
		b.lim = rate.NewLimiter(rate.Inf, 0)
		return
	}
	// Burst equals one second of budget: a tick can spend the whole
	// per-second allowance at once, matching spec.md's "remaining
	// per-second budget" framing rather than smoothing within the second.
	b.lim = rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
}

// quota returns how many of the requested bytes the budget currently has
// available, without blocking. It does not reserve anything; Debit does
// that once the request's actual usage is known.
func (b *budget) quota(requested int) int {
	if b.cap <= 0 {
		return requested
	}
	avail := int(b.lim.Tokens())
	if avail < 0 {
		avail = 0
	}
	if avail > requested {
		return requested
	}
	return avail
}

// debit removes n bytes from the budget after a request reports actual
// usage. Unlimited budgets are a no-op (spec.md §4.E item 2: "its bytes do
// not deplete the shared budget").
func (b *budget) debit(n int) {
	if b.cap <= 0 || n <= 0 {
		return
	}
	b.lim.ReserveN(time.Now(), n)
}
