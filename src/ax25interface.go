package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	One AX.25 station on one KISS port, with CSMA-style
 *		transmit scheduling.
 *
 * Description:	The KISS TNC does its own carrier handling below us;
 *		what this layer adds is the cooperative hold-off that
 *		keeps several stations sharing a channel from stepping
 *		on each other.  Finishing a reception or a transmission
 *		puts the medium into a cooldown; a timer of
 *		cts_delay + U(0, cts_rand) later it is considered idle
 *		again and the queue pump runs.
 *
 *		The transmit queue is strictly FIFO.  Cancellation is
 *		best effort and matches queued records by frame
 *		identity, not value; a frame already handed to the TNC
 *		is not recalled.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"regexp"
	"sync"
	"time"
)

type mediumState int

const (
	mediumIdle mediumState = iota
	mediumRXCooldown
	mediumTXCooldown
)

// AX25InterfaceConfig tunes the CSMA hold-off window.
type AX25InterfaceConfig struct {
	// CTSDelay is the fixed part of the hold-off.  Default 100 ms.
	CTSDelay time.Duration

	// CTSRand is the width of the random extra.  Default 100 ms.
	CTSRand time.Duration

	// Mod128 enables two-octet control field decoding for S and I
	// frames received on this interface.
	Mod128 bool
}

// ReceivedFrame is the event emitted for each decoded inbound frame.
type ReceivedFrame struct {
	Interface *AX25Interface
	Frame     *Frame
}

type txRecord struct {
	frame     *Frame
	encoded   []byte
	onSent    func(*AX25Interface, *Frame)
	cancelled bool
	deadline  time.Time // zero = never expires
}

// AX25Interface routes frames between a KISS port and its consumers.
type AX25Interface struct {
	port  *KISSPort
	conf  AX25InterfaceConfig
	clock Clock

	mu             sync.Mutex
	state          mediumState
	cancelCooldown func()
	queue          []*txRecord
	closed         bool
	pumping        bool

	router *Router[ReceivedFrame]

	// ReceivedMsg fires for every frame decoded on this interface,
	// before router dispatch.
	ReceivedMsg *Signal[ReceivedFrame]

	disconnect []func()
}

// NewAX25Interface attaches to a KISS port.
func NewAX25Interface(port *KISSPort, conf AX25InterfaceConfig, clock Clock) *AX25Interface {
	if clock == nil {
		clock = WallClock()
	}
	if conf.CTSDelay == 0 {
		conf.CTSDelay = 100 * time.Millisecond
	}
	if conf.CTSRand == 0 {
		conf.CTSRand = 100 * time.Millisecond
	}

	var i = &AX25Interface{
		port:        port,
		conf:        conf,
		clock:       clock,
		router:      NewRouter[ReceivedFrame](),
		ReceivedMsg: NewSignal[ReceivedFrame](),
	}
	i.disconnect = append(i.disconnect,
		port.Received.Connect(i.onPortData),
		port.Device.Closed.Connect(func(*KISSDevice) { i.fail() }),
	)
	return i
}

// Bind registers a receive callback for frames addressed to base/ssid.
func (i *AX25Interface) Bind(base string, ssid int, fn func(ReceivedFrame)) *Binding[ReceivedFrame] {
	return i.router.Bind(base, ssid, fn)
}

// BindRegex registers a receive callback for destination bases matching re.
func (i *AX25Interface) BindRegex(re *regexp.Regexp, ssid int, fn func(ReceivedFrame)) *Binding[ReceivedFrame] {
	return i.router.BindRegex(re, ssid, fn)
}

// Unbind removes a binding.
func (i *AX25Interface) Unbind(b *Binding[ReceivedFrame]) {
	i.router.Unbind(b)
}

// Transmit queues a frame.  onSent (optional) fires after the frame has
// been handed to the KISS port.  Encode errors surface here, before
// anything is queued.
func (i *AX25Interface) Transmit(f *Frame, onSent func(*AX25Interface, *Frame)) error {
	return i.transmit(f, time.Time{}, onSent)
}

// TransmitExpiring queues a frame that is silently discarded if the
// medium does not become available before deadline.  The digipeater
// uses this to stop stale traffic from echoing around a busy network.
func (i *AX25Interface) TransmitExpiring(f *Frame, deadline time.Time, onSent func(*AX25Interface, *Frame)) error {
	return i.transmit(f, deadline, onSent)
}

func (i *AX25Interface) transmit(f *Frame, deadline time.Time, onSent func(*AX25Interface, *Frame)) error {
	var encoded, err = f.Encode()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrDeviceClosed
	}
	i.queue = append(i.queue, &txRecord{
		frame:    f,
		encoded:  encoded,
		onSent:   onSent,
		deadline: deadline,
	})
	i.mu.Unlock()

	i.pump()
	return nil
}

// CancelTransmit marks queued records carrying exactly this frame as
// cancelled.  Matching is by identity; an equal-valued frame queued
// separately is untouched, and a frame already sent is unaffected.
func (i *AX25Interface) CancelTransmit(f *Frame) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, rec := range i.queue {
		if rec.frame == f {
			rec.cancelled = true
		}
	}
}

// pump sends the head of the queue when the medium is idle.
func (i *AX25Interface) pump() {
	i.mu.Lock()
	if i.pumping {
		// A callback below us re-entered; the outer pump finishes
		// the job.
		i.mu.Unlock()
		return
	}
	i.pumping = true

	for {
		if i.state != mediumIdle || i.closed || len(i.queue) == 0 {
			break
		}

		var rec = i.queue[0]
		i.queue = i.queue[1:]

		if rec.cancelled {
			continue
		}
		if !rec.deadline.IsZero() && i.clock.Now().After(rec.deadline) {
			ax25Log.Debug("queued frame expired, dropping", "frame", rec.frame)
			metricTXExpired.Inc()
			continue
		}

		// The medium goes busy before the callbacks see the event.
		i.enterCooldownLocked(mediumTXCooldown)
		i.mu.Unlock()

		if err := i.port.Send(rec.encoded); err != nil {
			ax25Log.Error("transmit failed", "frame", rec.frame, "err", err)
		} else {
			metricFramesTransmitted.Inc()
			ax25Log.Debug("transmitted", "frame", rec.frame)
			if rec.onSent != nil {
				rec.onSent(i, rec.frame)
			}
		}

		i.mu.Lock()
	}

	i.pumping = false
	i.mu.Unlock()
}

// enterCooldownLocked transitions the medium and arms the idle timer.
// Re-entering a cooldown restarts the window.
func (i *AX25Interface) enterCooldownLocked(s mediumState) {
	i.state = s
	if i.cancelCooldown != nil {
		i.cancelCooldown()
	}

	var d = jitter(i.clock, i.conf.CTSDelay, i.conf.CTSRand)
	i.cancelCooldown = i.clock.Schedule(d, func() {
		i.mu.Lock()
		i.state = mediumIdle
		i.cancelCooldown = nil
		i.mu.Unlock()
		i.pump()
	})
}

// onPortData handles raw frame bytes from the KISS port.  Even an
// undecodable frame means the medium was busy, so every arrival enters
// the receive cooldown.
func (i *AX25Interface) onPortData(data []byte) {
	i.mu.Lock()
	i.enterCooldownLocked(mediumRXCooldown)
	i.mu.Unlock()

	var f, err = DecodeFrame(data, DecodeOptions{Mod128: i.conf.Mod128})
	if err != nil {
		metricDecodeErrors.Inc()
		ax25Log.Warn("undecodable frame dropped", "len", len(data), "err", err)
		return
	}

	metricFramesReceived.Inc()
	ax25Log.Debug("received", "frame", f)

	var ev = ReceivedFrame{Interface: i, Frame: f}
	i.ReceivedMsg.Emit(ev)
	i.router.Dispatch(f.Path.Dst, ev)
}

// fail drops the queue when the device underneath goes away.
func (i *AX25Interface) fail() {
	i.mu.Lock()
	var n = len(i.queue)
	i.queue = nil
	i.closed = true
	if i.cancelCooldown != nil {
		i.cancelCooldown()
		i.cancelCooldown = nil
	}
	i.mu.Unlock()

	if n > 0 {
		ax25Log.Warn("device closed, dropping queued transmits", "count", n)
	}
}

// Close detaches from the port.  The device stays open for other users.
func (i *AX25Interface) Close() {
	for _, fn := range i.disconnect {
		fn()
	}
	i.fail()
}
