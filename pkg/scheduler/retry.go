package scheduler

import "time"

const (
	// DefaultBackoffBase is the delay after the first failed attempt.
	DefaultBackoffBase = 2 * time.Second
	// DefaultBackoffMax caps the retry delay.
	DefaultBackoffMax = 5 * time.Minute
)

// Backoff computes exponential retry delays: Base after the first failed
// attempt, doubling for each one after, never above Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before re-queueing a job whose attempt n failed.
func (b Backoff) Delay(n int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if n < 1 {
		n = 1
	}

	d := base
	for i := 1; i < n; i++ {
		if b.Max > 0 && d >= b.Max {
			break
		}
		// stop doubling well before the int64 range runs out
		if d > time.Duration(1<<62)/2 {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
