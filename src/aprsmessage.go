package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	Retry state machine for one outgoing confirmable
 *		APRS message.
 *
 * Description:	The message is transmitted, then retransmitted on a
 *		timeout that starts at base + U(0, rand) and stretches
 *		by the scale factor at every retry.  The randomized
 *		first interval keeps a fleet of stations that all lost
 *		the same digipeater from retrying in lockstep.
 *
 *		State machine:
 *
 *		  INIT -> SEND -> WAIT -+-> SEND    (timer, retries left)
 *		                        +-> SUCCESS (ack)
 *		                        +-> REJECT  (rej)
 *		                        +-> TIMEOUT (retries exhausted)
 *		                        +-> CANCEL  (caller, device death)
 *
 *		Terminal states are absorbing and Done fires exactly
 *		once, after the final transmit attempt has been handed
 *		to the KISS port.
 *
 *------------------------------------------------------------------*/

import (
	"sync"
	"time"

	"github.com/rs/xid"
)

// HandlerState is the lifecycle state of an APRSMessageHandler.
type HandlerState int

const (
	HandlerInit HandlerState = iota
	HandlerSend
	HandlerWait
	HandlerSuccess
	HandlerReject
	HandlerTimeout
	HandlerCancel
)

func (s HandlerState) String() string {
	switch s {
	case HandlerInit:
		return "INIT"
	case HandlerSend:
		return "SEND"
	case HandlerWait:
		return "WAIT"
	case HandlerSuccess:
		return "SUCCESS"
	case HandlerReject:
		return "REJECT"
	case HandlerTimeout:
		return "TIMEOUT"
	case HandlerCancel:
		return "CANCEL"
	}
	return "INVALID"
}

// Terminal reports whether s is absorbing.
func (s HandlerState) Terminal() bool {
	switch s {
	case HandlerSuccess, HandlerReject, HandlerTimeout, HandlerCancel:
		return true
	}
	return false
}

// APRSMessageHandler drives one outgoing confirmable message.
type APRSMessageHandler struct {
	// ID tags this handler's log lines.
	ID string

	iface *APRSInterface
	clock Clock

	peer      Callsign
	addressee string
	text      string
	msgid     string
	replyAck  string
	advertise bool
	path      []Callsign

	mu          sync.Mutex
	state       HandlerState
	retries     int
	timeout     time.Duration
	cancelTimer func()
	frame       *Frame // most recent transmission, for cancellation

	// Done fires exactly once, with the terminal state.
	Done *Signal[HandlerState]
}

func newAPRSMessageHandler(a *APRSInterface, peer Callsign, addressee, text, msgid string, opts *MessageOptions, path []Callsign) *APRSMessageHandler {
	return &APRSMessageHandler{
		ID:        xid.New().String(),
		iface:     a,
		clock:     a.clock,
		peer:      peer,
		addressee: addressee,
		text:      text,
		msgid:     msgid,
		replyAck:  opts.ReplyAck,
		advertise: opts.AdvertiseReplyAck,
		path:      path,
		state:     HandlerInit,
		Done:      NewSignal[HandlerState](),
	}
}

// MsgID reports the allocated message id.
func (h *APRSMessageHandler) MsgID() string {
	return h.msgid
}

// State reports the current lifecycle state.
func (h *APRSMessageHandler) State() HandlerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// start performs the initial transmission and arms the retry timer.
func (h *APRSMessageHandler) start() {
	h.mu.Lock()
	if h.state != HandlerInit {
		h.mu.Unlock()
		return
	}

	var conf = h.iface.conf
	h.retries = conf.RetransmitCount
	h.timeout = jitter(h.clock, conf.RetransmitTimeoutBase, conf.RetransmitTimeoutRand)

	var err = h.transmitLocked()
	h.armLocked()
	h.mu.Unlock()

	if err != nil {
		h.finish(HandlerCancel)
	}
}

// transmitLocked queues one transmission of the message.
func (h *APRSMessageHandler) transmitLocked() error {
	h.state = HandlerSend

	var payload = EncodeMessagePayload(h.addressee, h.text, h.msgid, h.replyAck, h.advertise)
	var f = NewUIFrame(h.iface.outboundPath(h.path), PIDNoLayer3, payload)
	h.frame = f

	if err := h.iface.ax.Transmit(f, nil); err != nil {
		aprsLog.Error("message transmit failed", "handler", h.ID, "msgid", h.msgid, "err", err)
		return err
	}
	h.state = HandlerWait
	return nil
}

func (h *APRSMessageHandler) armLocked() {
	if h.state.Terminal() {
		return
	}
	h.cancelTimer = h.clock.Schedule(h.timeout, h.onTimeout)
}

// onTimeout retransmits or gives up.
func (h *APRSMessageHandler) onTimeout() {
	h.mu.Lock()
	if h.state.Terminal() {
		h.mu.Unlock()
		return
	}

	if h.retries <= 0 {
		h.mu.Unlock()
		aprsLog.Info("message timed out", "handler", h.ID, "msgid", h.msgid, "to", h.addressee)
		h.finish(HandlerTimeout)
		return
	}

	h.retries--
	h.timeout = time.Duration(float64(h.timeout) * h.iface.conf.RetransmitTimeoutScale)
	metricRetries.Inc()
	aprsLog.Debug("retransmitting", "handler", h.ID, "msgid", h.msgid,
		"retries_left", h.retries, "next_timeout", h.timeout)

	var err = h.transmitLocked()
	h.armLocked()
	h.mu.Unlock()

	if err != nil {
		h.finish(HandlerCancel)
	}
}

func (h *APRSMessageHandler) onAck() {
	h.finish(HandlerSuccess)
}

func (h *APRSMessageHandler) onReject() {
	h.finish(HandlerReject)
}

// Cancel abandons the message.  A retransmission still sitting in the
// transmit queue is cancelled with it.
func (h *APRSMessageHandler) Cancel() {
	h.mu.Lock()
	var frame = h.frame
	h.mu.Unlock()

	if frame != nil {
		h.iface.ax.CancelTransmit(frame)
	}
	h.finish(HandlerCancel)
}

// finish enters an absorbing state (once), deregisters the handler and
// fires Done.  Repeated terminal triggers are no-ops.
func (h *APRSMessageHandler) finish(s HandlerState) {
	h.mu.Lock()
	if h.state.Terminal() {
		h.mu.Unlock()
		return
	}
	h.state = s
	if h.cancelTimer != nil {
		h.cancelTimer()
		h.cancelTimer = nil
	}
	h.mu.Unlock()

	h.iface.removeHandler(h.peer, h.msgid)
	aprsLog.Debug("handler finished", "handler", h.ID, "msgid", h.msgid, "state", s)
	h.Done.Emit(s)
}
