package keeshond

import (
	"math/rand"
	"time"
)

/*
 * Time and randomness are injected services so the CSMA hold-off, the
 * retransmit schedule, the dedup window and the digipeat expiry are all
 * testable with a stepped clock.  Everything that waits goes through
 * Schedule; nothing in the stack calls time.After directly.
 */

// Clock supplies the current instant, uniform randomness in [0,1), and
// one-shot timers.  The cancel function returned by Schedule stops the
// timer if it has not fired yet; calling it after firing is a no-op.
type Clock interface {
	Now() time.Time
	Random() float64
	Schedule(d time.Duration, fn func()) (cancel func())
}

type wallClock struct{}

// WallClock returns the real-time Clock used outside of tests.
func WallClock() Clock {
	return wallClock{}
}

func (wallClock) Now() time.Time {
	return time.Now()
}

func (wallClock) Random() float64 {
	return rand.Float64()
}

func (wallClock) Schedule(d time.Duration, fn func()) func() {
	var t = time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// jitter returns base plus a uniformly random extra in [0, spread).
func jitter(c Clock, base, spread time.Duration) time.Duration {
	if spread <= 0 {
		return base
	}
	return base + time.Duration(c.Random()*float64(spread))
}
