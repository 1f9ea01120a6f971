package keeshond

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The retry schedule with count=2, base=30s, no jitter, scale=1.5:
// transmits at t=0, t=30 and t=75, the third wait is 67.5s, and the
// handler times out at t=142.5 having sent three copies.
func TestRetrySchedule(t *testing.T) {
	var b = newAPRSBench(t, APRSConfig{
		RetransmitCount:       2,
		RetransmitTimeoutBase: 30 * time.Second,
	})

	var h, err = b.aprs.SendMessage("VK4ABC", "anyone there", nil)
	require.NoError(t, err)

	var done []HandlerState
	h.Done.Connect(func(s HandlerState) { done = append(done, s) })

	var countSent = func() int {
		var n = 0
		for _, f := range b.sentFrames() {
			if string(f.Payload) == ":VK4ABC   :anyone there{1" {
				n++
			}
		}
		return n
	}

	// t=0: initial transmission.
	assert.Equal(t, 1, countSent())
	assert.Equal(t, HandlerWait, h.State())

	// t=30: first retry, timeout stretches to 45 s.
	b.clock.Advance(30 * time.Second)
	assert.Equal(t, 1, countSent())

	// t=75: second and last retry, timeout stretches to 67.5 s.
	b.clock.Advance(45 * time.Second)
	assert.Equal(t, 1, countSent())
	assert.Empty(t, done)

	// t=142.5: retries exhausted.
	b.clock.Advance(67*time.Second + 500*time.Millisecond)
	assert.Equal(t, 0, countSent())
	assert.Equal(t, []HandlerState{HandlerTimeout}, done)
	assert.Equal(t, HandlerTimeout, h.State())

	// Nothing further ever happens.
	b.clock.Advance(time.Hour)
	assert.Equal(t, 0, countSent())
	assert.Equal(t, []HandlerState{HandlerTimeout}, done)
}

func TestRetryJitterWidensFirstWait(t *testing.T) {
	var b = newAPRSBench(t, APRSConfig{
		RetransmitCount:       1,
		RetransmitTimeoutBase: 30 * time.Second,
		RetransmitTimeoutRand: 10 * time.Second,
	})
	b.clock.randv = 0.5 // jitter draws land mid-window

	var h, err = b.aprs.SendMessage("VK4ABC", "x", nil)
	require.NoError(t, err)
	b.sentFrames()

	// base + 0.5*rand = 35 s.
	b.clock.Advance(34 * time.Second)
	assert.Empty(t, b.sentFrames())
	b.clock.Advance(1 * time.Second)
	assert.Len(t, b.sentFrames(), 1, "retry at 35 s")
	assert.Equal(t, HandlerWait, h.State())
}

func TestCancelStopsRetries(t *testing.T) {
	var b = newAPRSBench(t, APRSConfig{
		RetransmitCount:       2,
		RetransmitTimeoutBase: 30 * time.Second,
	})

	var h, _ = b.aprs.SendMessage("VK4ABC", "x", nil)
	b.sentFrames()

	var done []HandlerState
	h.Done.Connect(func(s HandlerState) { done = append(done, s) })

	h.Cancel()
	assert.Equal(t, []HandlerState{HandlerCancel}, done)

	b.clock.Advance(time.Hour)
	assert.Empty(t, b.sentFrames(), "no retransmissions after cancel")

	// Repeated cancels stay silent.
	h.Cancel()
	assert.Equal(t, []HandlerState{HandlerCancel}, done)
}

func TestCancelPullsQueuedRetransmit(t *testing.T) {
	var b = newAPRSBench(t, APRSConfig{
		RetransmitCount:       2,
		RetransmitTimeoutBase: 30 * time.Second,
	})

	var h, _ = b.aprs.SendMessage("VK4ABC", "x", nil)
	b.sentFrames()

	// Jam the medium just before the retry timer fires, so the
	// retransmission gets stuck in the transmit queue.
	b.clock.Advance(29*time.Second + 950*time.Millisecond)
	b.receiveUI(t, "VK4ABC>APZKSH", ">noise")
	b.clock.Advance(50 * time.Millisecond) // t=30: retry queued behind the cooldown

	h.Cancel()

	// The medium clears; the cancelled retransmission must not leak
	// out.
	b.clock.Advance(time.Hour)
	assert.Empty(t, b.sentFrames())
}

func TestAckDuringRetryWindow(t *testing.T) {
	var b = newAPRSBench(t, APRSConfig{
		RetransmitCount:       2,
		RetransmitTimeoutBase: 30 * time.Second,
	})

	var h, _ = b.aprs.SendMessage("VK4ABC", "x", nil)
	b.sentFrames()

	b.clock.Advance(29 * time.Second)
	b.receiveUI(t, "VK4ABC>APZKSH", ":VK4MSL-9 :ack1")
	assert.Equal(t, HandlerSuccess, h.State())

	b.clock.Advance(time.Hour)
	assert.Empty(t, b.sentFrames(), "the armed retry died with the ack")
}
