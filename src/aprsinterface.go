package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	The APRS station living on top of an AX.25 interface.
 *
 * Description:	Receives everything addressed to the recognized APRS
 *		destination set, suppresses duplicates, parses the
 *		payload and routes messages by addressee.  Outgoing
 *		confirmable messages get a message id and a retrying
 *		handler; acks and rejects coming back are correlated to
 *		the handler by (peer, msgid).
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// DefaultMsgIDModulo bounds allocated message ids to [1, modulo).
const DefaultMsgIDModulo = 100000

// aprsDestinationRe matches the experimental/tocall destination space
// (APxxxx) that APRS software announces itself with.
var aprsDestinationRe = regexp.MustCompile(`AP[A-Z0-9]{0,4}`)

// aprsDestinations are the generic destinations treated as APRS traffic
// in addition to the APxxxx space.
var aprsDestinations = []string{"APRS", "BEACON", "CQ", "QST", "ALL", "ID"}

// APRSConfig configures an APRSInterface.
type APRSConfig struct {
	// MyCall is the local station.  Required.
	MyCall Callsign

	// Destination is the tocall put on outbound frames.
	// Default APZKSH (experimental).
	Destination Callsign

	// Path is the default digipeater path for outbound frames.
	// Default WIDE1-1,WIDE2-1.
	Path []Callsign

	// ListenDestinations and ListenAltnets extend the destination set
	// accepted as APRS traffic.
	ListenDestinations []string
	ListenAltnets      []string

	// MsgIDModulo wraps message id allocation.  Default 100000.
	MsgIDModulo int

	// DedupExpiry is the duplicate suppression window.  Default 28 s.
	DedupExpiry time.Duration

	// Retry schedule for confirmable messages.
	RetransmitCount        int           // default 2
	RetransmitTimeoutBase  time.Duration // default 30 s
	RetransmitTimeoutRand  time.Duration // default 5 s
	RetransmitTimeoutScale float64       // default 1.5
}

func (c *APRSConfig) withDefaults() APRSConfig {
	var out = *c
	if out.Destination.Base == "" {
		out.Destination = Callsign{Base: "APZKSH", Reserved: 3}
	}
	if out.Path == nil {
		out.Path = []Callsign{
			MustParseCallsign("WIDE1-1"),
			MustParseCallsign("WIDE2-1"),
		}
	}
	if out.MsgIDModulo <= 1 {
		out.MsgIDModulo = DefaultMsgIDModulo
	}
	if out.DedupExpiry <= 0 {
		out.DedupExpiry = DefaultDedupExpiry
	}
	if out.RetransmitCount == 0 {
		out.RetransmitCount = 2
	}
	if out.RetransmitTimeoutBase <= 0 {
		out.RetransmitTimeoutBase = 30 * time.Second
	}
	if out.RetransmitTimeoutRand < 0 {
		out.RetransmitTimeoutRand = 0
	} else if out.RetransmitTimeoutRand == 0 {
		out.RetransmitTimeoutRand = 5 * time.Second
	}
	if out.RetransmitTimeoutScale == 0 {
		out.RetransmitTimeoutScale = 1.5
	}
	return out
}

// ReceivedAPRS is the event emitted for each accepted APRS frame.
type ReceivedAPRS struct {
	Interface *APRSInterface
	Frame     *Frame
	Payload   APRSPayload
}

type handlerKey struct {
	peer  string // base-ssid of the other station
	msgid string
}

// APRSInterface is one APRS station.
type APRSInterface struct {
	ax    *AX25Interface
	conf  APRSConfig
	clock Clock

	mu       sync.Mutex
	dedup    *dedupCache
	handlers map[handlerKey]*APRSMessageHandler
	nextID   int

	router *Router[ReceivedAPRS]

	// ReceivedMsg fires for every APRS frame that survives dedup.
	ReceivedMsg *Signal[ReceivedAPRS]

	disconnect []func()
}

// NewAPRSInterface builds the APRS layer over an AX.25 interface.
func NewAPRSInterface(ax *AX25Interface, conf APRSConfig, clock Clock) (*APRSInterface, error) {
	if conf.MyCall.Base == "" {
		return nil, fmt.Errorf("%w: APRS interface needs a station callsign", ErrMalformedCallsign)
	}
	if clock == nil {
		clock = WallClock()
	}

	var a = &APRSInterface{
		ax:          ax,
		conf:        conf.withDefaults(),
		clock:       clock,
		dedup:       newDedupCache(clock, conf.DedupExpiry),
		handlers:    make(map[handlerKey]*APRSMessageHandler),
		nextID:      1,
		router:      NewRouter[ReceivedAPRS](),
		ReceivedMsg: NewSignal[ReceivedAPRS](),
	}

	// Everything in the APRS destination space is ours, plus whatever
	// the configuration adds.
	var bindings []*Binding[ReceivedFrame]
	bindings = append(bindings,
		ax.BindRegex(aprsDestinationRe, SSIDWildcard, a.onReceive),
		ax.Bind(a.conf.MyCall.Base, int(a.conf.MyCall.SSID), a.onReceive),
	)
	for _, d := range aprsDestinations {
		bindings = append(bindings, ax.Bind(d, SSIDWildcard, a.onReceive))
	}
	for _, d := range a.conf.ListenDestinations {
		bindings = append(bindings, ax.Bind(d, SSIDWildcard, a.onReceive))
	}
	for _, d := range a.conf.ListenAltnets {
		bindings = append(bindings, ax.Bind(d, SSIDWildcard, a.onReceive))
	}
	a.disconnect = append(a.disconnect, func() {
		for _, b := range bindings {
			ax.Unbind(b)
		}
	})

	// A dying device takes the outstanding handlers with it.
	a.disconnect = append(a.disconnect,
		ax.port.Device.Closed.Connect(func(*KISSDevice) { a.failHandlers() }))

	return a, nil
}

// AX25 exposes the underlying interface.
func (a *APRSInterface) AX25() *AX25Interface {
	return a.ax
}

// MyCall reports the local station address.
func (a *APRSInterface) MyCall() Callsign {
	return a.conf.MyCall
}

// Bind registers an APRS receive callback by message addressee.
func (a *APRSInterface) Bind(base string, ssid int, fn func(ReceivedAPRS)) *Binding[ReceivedAPRS] {
	return a.router.Bind(base, ssid, fn)
}

// BindRegex registers an APRS receive callback by addressee pattern.
func (a *APRSInterface) BindRegex(re *regexp.Regexp, ssid int, fn func(ReceivedAPRS)) *Binding[ReceivedAPRS] {
	return a.router.BindRegex(re, ssid, fn)
}

// Unbind removes a binding.
func (a *APRSInterface) Unbind(b *Binding[ReceivedAPRS]) {
	a.router.Unbind(b)
}

// onReceive handles a frame from the AX.25 layer.
func (a *APRSInterface) onReceive(ev ReceivedFrame) {
	var f = ev.Frame
	if f.Type() != FrameUI || len(f.Payload) == 0 {
		return
	}

	a.mu.Lock()
	var dup = a.dedup.check(f)
	a.mu.Unlock()
	if dup {
		metricDedupDrops.Inc()
		aprsLog.Debug("duplicate dropped", "frame", f)
		return
	}

	var payload, err = ParseAPRS(f)
	if err != nil {
		aprsLog.Warn("unparseable APRS payload", "frame", f, "err", err)
		return
	}

	var rx = ReceivedAPRS{Interface: a, Frame: f, Payload: payload}
	a.ReceivedMsg.Emit(rx)

	switch p := payload.(type) {
	case *APRSAckReject:
		if a.isMyAddressee(p.Addressee) {
			a.deliverAckReject(f.Path.Src, p.MsgID, p.Reject)
		}

	case *APRSMessage:
		// A piggybacked reply-ack confirms our outgoing message
		// even though no standalone ack was sent.
		if p.ReplyAck != "" && a.isMyAddressee(p.Addressee) {
			a.deliverAckReject(f.Path.Src, p.ReplyAck, false)
		}
		a.dispatchByAddressee(p.Addressee, rx)
	}
}

// isMyAddressee compares a message addressee to the local station.
func (a *APRSInterface) isMyAddressee(addressee string) bool {
	var c, err = ParseCallsign(addressee)
	if err != nil {
		return false
	}
	return c.Equal(a.conf.MyCall)
}

func (a *APRSInterface) dispatchByAddressee(addressee string, rx ReceivedAPRS) {
	var c, err = ParseCallsign(addressee)
	if err != nil {
		// Bulletins and friends have addressees that are not
		// callsigns; bindings can still catch them by base.
		c = Callsign{Base: addressee, Reserved: 3}
	}
	a.router.Dispatch(c, rx)
}

// deliverAckReject routes an acknowledgement to its handler, if any.
func (a *APRSInterface) deliverAckReject(peer Callsign, msgid string, reject bool) {
	a.mu.Lock()
	var h = a.handlers[handlerKey{peer: peer.key(), msgid: msgid}]
	a.mu.Unlock()

	if h == nil {
		aprsLog.Debug("ack for unknown message", "peer", peer, "msgid", msgid)
		return
	}
	if reject {
		h.onReject()
	} else {
		h.onAck()
	}
}

// MessageOptions alter SendMessage.
type MessageOptions struct {
	// Path overrides the interface default digipeater path.
	Path []Callsign

	// OneShot sends without a message id and without retries.
	OneShot bool

	// ReplyAck piggybacks an ack for this incoming message id.
	ReplyAck string

	// AdvertiseReplyAck appends the bare "}" capability marker.
	AdvertiseReplyAck bool
}

// SendMessage sends an APRS message to addressee.  One-shot messages are
// transmitted once and return a nil handler; otherwise the returned
// handler retries until acknowledged, rejected, exhausted or cancelled.
func (a *APRSInterface) SendMessage(addressee, text string, opts *MessageOptions) (*APRSMessageHandler, error) {
	if opts == nil {
		opts = &MessageOptions{}
	}
	if len(addressee) == 0 || len(addressee) > 9 {
		return nil, fmt.Errorf("%w: addressee %q", ErrMalformedCallsign, addressee)
	}

	var path = opts.Path
	if path == nil {
		path = a.conf.Path
	}

	if opts.OneShot {
		var payload = EncodeMessagePayload(addressee, text, "", "", false)
		var f = NewUIFrame(a.outboundPath(path), PIDNoLayer3, payload)
		return nil, a.ax.Transmit(f, nil)
	}

	var peer, err = ParseCallsign(addressee)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	var msgid string
	msgid, err = a.allocMsgIDLocked()
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}

	var h = newAPRSMessageHandler(a, peer, addressee, text, msgid, opts, path)
	a.handlers[handlerKey{peer: peer.key(), msgid: msgid}] = h
	a.mu.Unlock()

	h.start()
	return h, nil
}

// allocMsgIDLocked picks the next free message id.  Ids with a live
// handler are skipped; a full cycle without a free one is QueueFull.
func (a *APRSInterface) allocMsgIDLocked() (string, error) {
	var modulo = a.conf.MsgIDModulo
	for tries := 0; tries < modulo; tries++ {
		var id = a.nextID
		a.nextID++
		if a.nextID >= modulo {
			a.nextID = 1
		}

		var idStr = strconv.Itoa(id)
		if !a.msgidLiveLocked(idStr) {
			return idStr, nil
		}
	}
	return "", ErrQueueFull
}

func (a *APRSInterface) msgidLiveLocked(id string) bool {
	for k := range a.handlers {
		if k.msgid == id {
			return true
		}
	}
	return false
}

// SendResponse acknowledges (or rejects) a received confirmable message.
func (a *APRSInterface) SendResponse(rx ReceivedAPRS, ack bool) error {
	var msg, ok = rx.Payload.(*APRSMessage)
	if !ok {
		return fmt.Errorf("%w: response to a non-message", ErrMalformedAPRSFrame)
	}
	if msg.MsgID == "" {
		// Unconfirmed message; nothing to acknowledge.
		return nil
	}

	var payload = EncodeAckPayload(rx.Frame.Path.Src.key(), msg.MsgID, "", !ack)
	var f = NewUIFrame(a.outboundPath(a.conf.Path), PIDNoLayer3, payload)
	return a.ax.Transmit(f, nil)
}

// SendStatus broadcasts a status report.
func (a *APRSInterface) SendStatus(text string) error {
	var f = NewUIFrame(a.outboundPath(a.conf.Path), PIDNoLayer3, append([]byte{DTIStatus}, text...))
	return a.ax.Transmit(f, nil)
}

// outboundPath builds destination/source/digis for an outbound frame.
func (a *APRSInterface) outboundPath(digis []Callsign) Path {
	var p = Path{Dst: a.conf.Destination, Src: a.conf.MyCall, Digis: digis}
	return p.copy()
}

// removeHandler deregisters a terminal handler.
func (a *APRSInterface) removeHandler(peer Callsign, msgid string) {
	a.mu.Lock()
	delete(a.handlers, handlerKey{peer: peer.key(), msgid: msgid})
	a.mu.Unlock()
}

// failHandlers cancels every outstanding handler when the device dies.
func (a *APRSInterface) failHandlers() {
	a.mu.Lock()
	var hs = make([]*APRSMessageHandler, 0, len(a.handlers))
	for _, h := range a.handlers {
		hs = append(hs, h)
	}
	a.mu.Unlock()

	for _, h := range hs {
		h.Cancel()
	}
}
