package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	Suppress duplicate APRS receptions.
 *
 * Description:	The same packet arrives more than once when several
 *		digipeaters in range repeat it, or when a slow path
 *		loops it back.  Duplicates are recognized by source,
 *		destination and information content; the via path is
 *		deliberately excluded because it changes at every hop.
 *
 *		Only a 64 bit hash is kept.  The window is short (28
 *		seconds by default) so the tiny collision probability
 *		costs at most one wrongly dropped packet per window.
 *
 *------------------------------------------------------------------*/

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultDedupExpiry is the window within which a repeat of the same
// (source, destination, payload) is considered a duplicate.
const DefaultDedupExpiry = 28 * time.Second

type dedupCache struct {
	clock  Clock
	expiry time.Duration
	seen   map[uint64]time.Time // hash -> expiry instant
}

func newDedupCache(clock Clock, expiry time.Duration) *dedupCache {
	if expiry <= 0 {
		expiry = DefaultDedupExpiry
	}
	return &dedupCache{
		clock:  clock,
		expiry: expiry,
		seen:   make(map[uint64]time.Time),
	}
}

// dedupHash digests the fields that identify a transmission across hops.
func dedupHash(f *Frame) uint64 {
	var d = xxhash.New()
	d.WriteString(f.Path.Src.key())
	d.Write([]byte{0})
	d.WriteString(f.Path.Dst.key())
	d.Write([]byte{0})
	d.Write(f.Payload)
	return d.Sum64()
}

// check reports whether f is a live duplicate, remembering it either
// way.  Expired entries are pruned on the way through so lookups never
// see them.
func (c *dedupCache) check(f *Frame) bool {
	var now = c.clock.Now()
	for h, exp := range c.seen {
		if !exp.After(now) {
			delete(c.seen, h)
		}
	}

	var h = dedupHash(f)
	var _, dup = c.seen[h]
	c.seen[h] = now.Add(c.expiry)
	return dup
}
