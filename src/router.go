package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	Deliver received frames to whoever asked for them.
 *
 * Description:	A binding is (pattern, SSID, callback).  The pattern is
 *		either an exact base string or a regular expression
 *		compiled once at bind time and matched against the
 *		whole base.  SSID -1 matches any SSID.
 *
 *		Dispatch walks the bindings in insertion order and
 *		calls every match.  Callbacks run synchronously and
 *		must not block; anything that wants to transmit from a
 *		callback goes through the interface transmit queue.
 *
 *------------------------------------------------------------------*/

import (
	"regexp"
	"strings"
	"sync"
)

// SSIDWildcard matches any SSID in a binding.
const SSIDWildcard = -1

// Binding is one registered callback; treat as opaque, pass back to
// Unbind.
type Binding[T any] struct {
	exact string
	re    *regexp.Regexp
	ssid  int
	fn    func(T)
}

func (b *Binding[T]) matches(c Callsign) bool {
	if b.ssid != SSIDWildcard && uint8(b.ssid) != c.SSID {
		return false
	}
	if b.re != nil {
		return b.re.MatchString(c.Base)
	}
	return b.exact == c.Base
}

// Router holds bindings in insertion order.
type Router[T any] struct {
	mu       sync.Mutex
	bindings []*Binding[T]
}

func NewRouter[T any]() *Router[T] {
	return &Router[T]{}
}

// Bind registers fn for an exact base (case insensitive) and SSID
// (SSIDWildcard for any).
func (r *Router[T]) Bind(base string, ssid int, fn func(T)) *Binding[T] {
	var b = &Binding[T]{exact: strings.ToUpper(base), ssid: ssid, fn: fn}
	r.add(b)
	return b
}

// BindRegex registers fn for bases matching re in full.  The pattern is
// anchored here so partial matches do not count.
func (r *Router[T]) BindRegex(re *regexp.Regexp, ssid int, fn func(T)) *Binding[T] {
	var anchored = regexp.MustCompile(`\A(?:` + re.String() + `)\z`)
	var b = &Binding[T]{re: anchored, ssid: ssid, fn: fn}
	r.add(b)
	return b
}

func (r *Router[T]) add(b *Binding[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = append(r.bindings, b)
}

// Unbind removes a binding by identity.
func (r *Router[T]) Unbind(b *Binding[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, x := range r.bindings {
		if x == b {
			r.bindings = append(r.bindings[:i], r.bindings[i+1:]...)
			return
		}
	}
}

// Dispatch calls every binding matching c, in insertion order.
func (r *Router[T]) Dispatch(c Callsign, v T) {
	r.mu.Lock()
	var matched []*Binding[T]
	for _, b := range r.bindings {
		if b.matches(c) {
			matched = append(matched, b)
		}
	}
	r.mu.Unlock()

	for _, b := range matched {
		b.fn(v)
	}
}
