package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	AX.25 station addresses and digipeater paths.
 *
 * Description:	An address is a 6 character callsign (space padded on
 *		the wire) plus a 4 bit SSID.  Each of the 7 octets is
 *		the ASCII character shifted left one bit; the final
 *		octet is C R R S S I D E where E (the low bit) marks
 *		the last address of the path.
 *
 *		Equality is base + SSID.  The C/H bit means "command"
 *		on the destination and source and "has been repeated"
 *		on digipeater entries; it is not significant for
 *		routing and comparison.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	callsignLen = 7 // octets on the wire

	// MaxDigis is the most digipeater addresses a path may carry.
	MaxDigis = 8

	// MaxAddrs is destination + source + MaxDigis.
	MaxAddrs = 2 + MaxDigis
)

// Callsign is one AX.25 address.
type Callsign struct {
	Base string // 1-6 characters, stored without padding
	SSID uint8  // 0-15

	// CH is the C bit on destination and source addresses and the
	// "has been repeated" H bit on digipeater addresses.
	CH bool

	// Reserved carries the two reserved bits, both set by default.
	Reserved uint8
}

var callsignRe = regexp.MustCompile(`^([A-Za-z0-9]{1,6})(?:-([0-9]{1,2}))?(\*?)$`)

// ParseCallsign parses "BASE", "BASE-SSID" or "BASE-SSID*"; the trailing
// asterisk sets the H bit.
func ParseCallsign(s string) (Callsign, error) {
	var m = callsignRe.FindStringSubmatch(s)
	if m == nil {
		return Callsign{}, fmt.Errorf("%w: %q", ErrMalformedCallsign, s)
	}

	var ssid = 0
	if m[2] != "" {
		ssid, _ = strconv.Atoi(m[2])
		if ssid > 15 {
			return Callsign{}, fmt.Errorf("%w: %q: SSID out of range", ErrMalformedCallsign, s)
		}
	}

	return Callsign{
		Base:     strings.ToUpper(m[1]),
		SSID:     uint8(ssid),
		CH:       m[3] == "*",
		Reserved: 3,
	}, nil
}

// MustParseCallsign is ParseCallsign for fixed strings; it panics on error.
func MustParseCallsign(s string) Callsign {
	var c, err = ParseCallsign(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Equal reports whether both addresses carry the same base and SSID.
// The C/H and reserved bits do not participate.
func (c Callsign) Equal(o Callsign) bool {
	return c.Base == o.Base && c.SSID == o.SSID
}

// String formats as BASE or BASE-SSID, with a trailing "*" when the
// H bit is set.
func (c Callsign) String() string {
	var s = c.Base
	if c.SSID != 0 {
		s += "-" + strconv.Itoa(int(c.SSID))
	}
	if c.CH {
		s += "*"
	}
	return s
}

// key formats base-SSID without the H marker, for map keys and dedup.
func (c Callsign) key() string {
	if c.SSID == 0 {
		return c.Base
	}
	return c.Base + "-" + strconv.Itoa(int(c.SSID))
}

// paddedBase returns the base space padded to 6 characters.
func (c Callsign) paddedBase() string {
	if len(c.Base) >= 6 {
		return c.Base[:6]
	}
	return c.Base + strings.Repeat(" ", 6-len(c.Base))
}

// encodeTo appends the 7 octet wire form.  The low bit of the SSID octet
// is set only when last is true; only the path serializer decides that.
func (c Callsign) encodeTo(dst []byte, last bool) []byte {
	for _, ch := range []byte(c.paddedBase()) {
		dst = append(dst, ch<<1)
	}

	var ssid = (c.Reserved&3)<<5 | (c.SSID&0xf)<<1
	if c.CH {
		ssid |= 0x80
	}
	if last {
		ssid |= 0x01
	}
	return append(dst, ssid)
}

// decodeCallsign unpacks 7 octets into an address, reporting whether the
// "last address" bit was set.
func decodeCallsign(b []byte) (Callsign, bool, error) {
	if len(b) < callsignLen {
		return Callsign{}, false, ErrTruncated
	}

	var base [6]byte
	for i := 0; i < 6; i++ {
		base[i] = b[i] >> 1
	}

	var trimmed = strings.TrimRight(string(base[:]), " ")
	if trimmed == "" {
		return Callsign{}, false, fmt.Errorf("%w: empty base", ErrMalformedCallsign)
	}
	for _, ch := range trimmed {
		if !(ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9') {
			return Callsign{}, false, fmt.Errorf("%w: %q", ErrMalformedCallsign, trimmed)
		}
	}

	var ssid = b[6]
	return Callsign{
		Base:     trimmed,
		SSID:     (ssid >> 1) & 0xf,
		CH:       ssid&0x80 != 0,
		Reserved: (ssid >> 5) & 3,
	}, ssid&0x01 != 0, nil
}

// Path is the ordered address list of a frame: destination, source, then
// up to MaxDigis digipeaters.
type Path struct {
	Dst   Callsign
	Src   Callsign
	Digis []Callsign
}

// ParsePath parses the conventional "SRC>DST,DIGI1,DIGI2*" notation.
func ParsePath(s string) (Path, error) {
	var src, rest, ok = strings.Cut(s, ">")
	if !ok {
		return Path{}, fmt.Errorf("%w: missing '>' in %q", ErrMalformedPath, s)
	}

	var p Path
	var err error
	if p.Src, err = ParseCallsign(src); err != nil {
		return Path{}, err
	}

	var parts = strings.Split(rest, ",")
	if p.Dst, err = ParseCallsign(parts[0]); err != nil {
		return Path{}, err
	}

	if len(parts)-1 > MaxDigis {
		return Path{}, fmt.Errorf("%w: %d digipeaters", ErrMalformedPath, len(parts)-1)
	}
	for _, d := range parts[1:] {
		var digi Callsign
		if digi, err = ParseCallsign(d); err != nil {
			return Path{}, err
		}
		p.Digis = append(p.Digis, digi)
	}
	return p, nil
}

// String formats as "SRC>DST,DIGI1,DIGI2*".
func (p Path) String() string {
	var sb strings.Builder
	sb.WriteString(p.Src.String())
	sb.WriteByte('>')
	sb.WriteString(p.Dst.String())
	for _, d := range p.Digis {
		sb.WriteByte(',')
		sb.WriteString(d.String())
	}
	return sb.String()
}

// copy returns a deep copy; the digipeater slice is not shared.
func (p Path) copy() Path {
	var digis []Callsign
	if len(p.Digis) > 0 {
		digis = make([]Callsign, len(p.Digis))
		copy(digis, p.Digis)
	}
	return Path{Dst: p.Dst, Src: p.Src, Digis: digis}
}

// encodeTo appends the wire form.  Exactly the final address gets the
// "last" bit.
func (p Path) encodeTo(dst []byte) ([]byte, error) {
	if len(p.Digis) > MaxDigis {
		return nil, fmt.Errorf("%w: %d digipeaters", ErrMalformedPath, len(p.Digis))
	}

	dst = p.Dst.encodeTo(dst, false)
	dst = p.Src.encodeTo(dst, len(p.Digis) == 0)
	for i, d := range p.Digis {
		dst = d.encodeTo(dst, i == len(p.Digis)-1)
	}
	return dst, nil
}

// decodePath consumes addresses from b until the last-address bit,
// returning the path and the number of octets consumed.
func decodePath(b []byte) (Path, int, error) {
	var addrs []Callsign
	var off int
	for {
		if len(addrs) == MaxAddrs {
			return Path{}, 0, fmt.Errorf("%w: more than %d addresses", ErrMalformedPath, MaxAddrs)
		}
		if off+callsignLen > len(b) {
			return Path{}, 0, ErrTruncated
		}

		var c, last, err = decodeCallsign(b[off:])
		if err != nil {
			return Path{}, 0, err
		}
		addrs = append(addrs, c)
		off += callsignLen
		if last {
			break
		}
	}

	if len(addrs) < 2 {
		return Path{}, 0, fmt.Errorf("%w: only %d addresses", ErrMalformedPath, len(addrs))
	}

	var digis []Callsign
	if len(addrs) > 2 {
		digis = addrs[2:]
	}
	return Path{Dst: addrs[0], Src: addrs[1], Digis: digis}, off, nil
}
