package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	Act as an APRS digital repeater for UI frames.
 *
 * Description:	Decide whether a received packet should be repeated and
 *		make the necessary path modifications.
 *
 *		The first digipeater slot without the "has been
 *		repeated" bit decides:
 *
 *		  - an exact alias (WIDE, RELAY, GATE, anything the
 *		    operator adds) is replaced with the local call,
 *		    marked repeated;
 *
 *		  - WIDEn-N / TRACEn-N with N > 0 gets the local call
 *		    inserted in front of it (marked repeated) and N
 *		    decremented; reaching 0 also marks the slot
 *		    repeated so nobody downstream touches it again;
 *
 *		  - N == 0 is stale and dropped.
 *
 *		Repeats leave on the interface they arrived on, and
 *		carry a deadline: a repeat the scheduler cannot get out
 *		in time is silently discarded, which is what keeps a
 *		busy network from replaying its own memory.
 *
 * References:	"The New n-N Paradigm",
 *		http://www.aprs.org/fix14439.html
 *
 *------------------------------------------------------------------*/

import (
	"regexp"
	"sync"
	"time"
)

// DefaultDigipeatTimeout is how stale a queued repeat may become before
// it is dropped instead of transmitted.
const DefaultDigipeatTimeout = 5 * time.Second

// wideRe matches the n-N alias families.  The trailing digit is the
// original hop total; the remaining count rides in the SSID.
var wideRe = regexp.MustCompile(`^(WIDE|TRACE)([1-7])$`)

// DigipeaterConfig configures an APRSDigipeater.
type DigipeaterConfig struct {
	// Timeout is the queued-repeat expiry.  Default 5 s.
	Timeout time.Duration

	// Aliases are extra exact-match aliases on top of the defaults.
	Aliases []string
}

// APRSDigipeater repeats UI frames for any number of APRS interfaces.
type APRSDigipeater struct {
	clock   Clock
	timeout time.Duration

	mu      sync.Mutex
	aliases map[string]struct{}
	conns   map[*APRSInterface]func()
}

// NewAPRSDigipeater builds a digipeater with the standard aliases
// (WIDE, RELAY, GATE) plus any from the configuration.
func NewAPRSDigipeater(conf DigipeaterConfig, clock Clock) *APRSDigipeater {
	if clock == nil {
		clock = WallClock()
	}
	if conf.Timeout <= 0 {
		conf.Timeout = DefaultDigipeatTimeout
	}

	var d = &APRSDigipeater{
		clock:   clock,
		timeout: conf.Timeout,
		aliases: make(map[string]struct{}),
		conns:   make(map[*APRSInterface]func()),
	}
	d.AddAliases("WIDE", "RELAY", "GATE")
	d.AddAliases(conf.Aliases...)
	return d
}

// AddAliases registers exact-match aliases ("WIDE", "WIDE1-1", ...).
func (d *APRSDigipeater) AddAliases(names ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range names {
		var c, err = ParseCallsign(n)
		if err != nil {
			digiLog.Warn("ignoring unparseable alias", "alias", n, "err", err)
			continue
		}
		d.aliases[c.key()] = struct{}{}
	}
}

// Connect starts digipeating for an interface.  Repeats go back out the
// same interface only.
func (d *APRSDigipeater) Connect(a *APRSInterface) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.conns[a]; ok {
		return
	}
	d.conns[a] = a.ReceivedMsg.Connect(d.onReceive)
}

// Disconnect stops digipeating for an interface.
func (d *APRSDigipeater) Disconnect(a *APRSInterface) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if disconnect, ok := d.conns[a]; ok {
		disconnect()
		delete(d.conns, a)
	}
}

// onReceive applies the digipeat rules to one received frame.  The
// interface has already done duplicate suppression.
func (d *APRSDigipeater) onReceive(rx ReceivedAPRS) {
	var f = rx.Frame
	if f.Type() != FrameUI {
		return
	}

	var mycall = rx.Interface.MyCall()

	// Never repeat our own traffic, including anything that already
	// went through us.  Catches the small loops before the dedup
	// cache has to.
	if f.Path.Src.Equal(mycall) {
		return
	}
	for _, digi := range f.Path.Digis {
		if digi.Equal(mycall) {
			return
		}
	}

	var result = digipeatMatch(f, mycall, d.aliasSnapshot())
	if result == nil {
		return
	}

	metricDigipeats.Inc()
	digiLog.Debug("digipeating", "was", f.Path, "now", result.Path)

	var deadline = d.clock.Now().Add(d.timeout)
	if err := rx.Interface.AX25().TransmitExpiring(result, deadline, nil); err != nil {
		digiLog.Error("digipeat transmit failed", "frame", result, "err", err)
	}
}

func (d *APRSDigipeater) aliasSnapshot() map[string]struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out = make(map[string]struct{}, len(d.aliases))
	for k := range d.aliases {
		out[k] = struct{}{}
	}
	return out
}

// digipeatMatch returns the frame to repeat, or nil.  The input frame
// is never modified; a repeat is a fresh copy, because the original may
// still be on its way to other consumers.
func digipeatMatch(f *Frame, mycall Callsign, aliases map[string]struct{}) *Frame {
	// Find the first slot not yet marked repeated.
	var slot = -1
	for i, digi := range f.Path.Digis {
		if !digi.CH {
			slot = i
			break
		}
	}
	if slot == -1 {
		return nil
	}

	var digi = f.Path.Digis[slot]
	var local = Callsign{Base: mycall.Base, SSID: mycall.SSID, CH: true, Reserved: 3}

	// Exact alias: replace with the local call, used up in one hop.
	if _, ok := aliases[digi.key()]; ok {
		var out = copyUIFrame(f)
		out.Path.Digis[slot] = local
		return out
	}

	// WIDEn-N / TRACEn-N: the remaining count is the SSID.
	if !wideRe.MatchString(digi.Base) {
		return nil
	}

	var n = digi.SSID
	if n == 0 {
		// Went around once too often; stale.
		digiLog.Debug("dropping exhausted alias", "digi", digi, "path", f.Path)
		return nil
	}

	var out = copyUIFrame(f)
	out.Path.Digis[slot].SSID = n - 1
	if n-1 == 0 {
		out.Path.Digis[slot].CH = true
	}

	// Trace our call in front of the slot, unless the path is full.
	if len(out.Path.Digis) < MaxDigis {
		out.Path.Digis = append(out.Path.Digis, Callsign{})
		copy(out.Path.Digis[slot+1:], out.Path.Digis[slot:])
		out.Path.Digis[slot] = local
	}
	return out
}

// copyUIFrame clones a frame deeply enough that path edits are safe.
func copyUIFrame(f *Frame) *Frame {
	return &Frame{
		Path:    f.Path.copy(),
		Control: f.Control,
		Mod128:  f.Mod128,
		PID:     f.PID,
		Payload: f.Payload,
	}
}
