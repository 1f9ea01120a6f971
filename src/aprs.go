package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	APRS payload codec.
 *
 * Description:	An APRS frame is a UI frame whose payload begins with a
 *		data type identifier.  The ones this stack understands:
 *
 *			:	message (also ack/rej and bulletins)
 *			!  =	position, no timestamp
 *			@  /	position with timestamp
 *			>	status
 *			` '	MIC-E
 *			;	object
 *			T	telemetry
 *
 *		Anything else decodes to a raw payload so the caller
 *		still sees it.
 *
 * References:	APRS Protocol Reference 1.0.1, APRS 1.1 addendum for
 *		the reply-ack extension.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/golang/geo/s2"
)

// Data type identifiers.
const (
	DTIMessage          = ':'
	DTIPosition         = '!'
	DTIPositionMsg      = '='
	DTIPositionTime     = '/'
	DTIPositionTimeMsg  = '@'
	DTIStatus           = '>'
	DTIMicECurrent      = '`'
	DTIMicEOld          = '\''
	DTIObject           = ';'
	DTITelemetry        = 'T'
)

// APRSPayload is one parsed APRS information field.
type APRSPayload interface {
	DTI() byte
}

// APRSMessage is the ":ADDRESSEE:text{msgid" form.
type APRSMessage struct {
	Addressee string // trimmed, up to 9 characters
	Text      string
	MsgID     string // empty for unconfirmed messages

	// ReplyAck is the message id of ours that the sender piggybacked
	// an acknowledgement for ("{msgid}ackid").
	ReplyAck string

	// ReplyAckCapable marks the bare trailing "}" advertisement.
	ReplyAckCapable bool
}

func (*APRSMessage) DTI() byte { return DTIMessage }

// APRSAckReject is a message whose text is "ackNNNNN" or "rejNNNNN".
type APRSAckReject struct {
	Addressee string
	MsgID     string
	ReplyAck  string
	Reject    bool
}

func (*APRSAckReject) DTI() byte { return DTIMessage }

// APRSPosition is an uncompressed position report.
type APRSPosition struct {
	ID          byte // which of the four position DTIs
	Pos         s2.LatLng
	SymbolTable byte
	SymbolCode  byte
	Timestamp   string  // opaque 7 characters, empty without timestamp
	Course      float64 // degrees, -1 when absent
	SpeedKnots  float64 // -1 when absent
	Messaging   bool    // station runs APRS messaging ('=' and '@')
	Comment     string
}

func (p *APRSPosition) DTI() byte { return p.ID }

// APRSStatus is a ">status" report.
type APRSStatus struct {
	Text string
}

func (*APRSStatus) DTI() byte { return DTIStatus }

// APRSObject is a ";name*ddhhmmz..." object report.
type APRSObject struct {
	Name     string
	Alive    bool
	Position *APRSPosition
}

func (*APRSObject) DTI() byte { return DTIObject }

// APRSTelemetry is a "T#seq,a1,...,a5,dddddddd" report.
type APRSTelemetry struct {
	Sequence int
	Analog   [5]float64
	Digital  uint8
	Comment  string
}

func (*APRSTelemetry) DTI() byte { return DTITelemetry }

// APRSRaw carries payloads with no specialized decoder.
type APRSRaw struct {
	ID   byte
	Text string
}

func (r *APRSRaw) DTI() byte { return r.ID }

var (
	ackRejRe = regexp.MustCompile(`^(ack|rej)([A-Za-z0-9]{1,5})(?:\}([A-Za-z0-9]{1,5}))?$`)
	msgIDRe  = regexp.MustCompile(`^[A-Za-z0-9]{1,5}$`)
)

// ParseAPRS decodes the payload of a UI frame.
func ParseAPRS(f *Frame) (APRSPayload, error) {
	if f.Type() != FrameUI {
		return nil, ErrNotUIFrame
	}
	if len(f.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedAPRSFrame)
	}

	switch f.Payload[0] {
	case DTIMessage:
		return parseMessage(f.Payload)
	case DTIPosition, DTIPositionMsg, DTIPositionTime, DTIPositionTimeMsg:
		return parsePosition(f.Payload)
	case DTIStatus:
		return &APRSStatus{Text: string(f.Payload[1:])}, nil
	case DTIMicECurrent, DTIMicEOld:
		return parseMicE(f.Path.Dst, f.Payload)
	case DTIObject:
		return parseObject(f.Payload)
	case DTITelemetry:
		return parseTelemetry(f.Payload)
	default:
		return &APRSRaw{ID: f.Payload[0], Text: string(f.Payload[1:])}, nil
	}
}

/*
 * Message format:  :AAAAAAAAA:text{MSGID[}ACKID]
 *
 * The addressee is exactly 9 octets, space padded.  Everything after the
 * second colon is text until an optional '{'.  A message id ending in a
 * bare '}' advertises reply-ack capability; an id followed by '}' and
 * more characters carries a piggybacked ack.
 */
func parseMessage(p []byte) (APRSPayload, error) {
	if len(p) < 11 {
		return nil, fmt.Errorf("%w: message shorter than \":AAAAAAAAA:\"", ErrMalformedAPRSFrame)
	}
	if p[10] != ':' {
		return nil, fmt.Errorf("%w: missing addressee terminator", ErrMalformedAPRSFrame)
	}

	var addressee = strings.TrimRight(string(p[1:10]), " ")
	if addressee == "" {
		return nil, fmt.Errorf("%w: empty addressee", ErrMalformedAPRSFrame)
	}

	var body = string(p[11:])

	// ack/rej first; they never carry a message id of their own.
	if m := ackRejRe.FindStringSubmatch(body); m != nil {
		return &APRSAckReject{
			Addressee: addressee,
			MsgID:     m[2],
			ReplyAck:  m[3],
			Reject:    m[1] == "rej",
		}, nil
	}

	var msg = &APRSMessage{Addressee: addressee}

	var text, tail, found = strings.Cut(body, "{")
	msg.Text = text
	if !found {
		return msg, nil
	}

	var id, ack, hasBrace = strings.Cut(tail, "}")
	if !msgIDRe.MatchString(id) {
		return nil, fmt.Errorf("%w: bad message id %q", ErrMalformedAPRSFrame, id)
	}
	msg.MsgID = id

	if hasBrace {
		if ack == "" {
			msg.ReplyAckCapable = true
		} else {
			if !msgIDRe.MatchString(ack) {
				return nil, fmt.Errorf("%w: bad reply-ack id %q", ErrMalformedAPRSFrame, ack)
			}
			msg.ReplyAck = ack
		}
	}
	return msg, nil
}

// EncodeMessagePayload builds the message information field.  The "}"
// separator appears only when a reply-ack id or the capability
// advertisement is explicitly requested.
func EncodeMessagePayload(addressee, text, msgid, replyack string, advertise bool) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, ":%-9s:%s", addressee, text)
	if msgid != "" {
		sb.WriteByte('{')
		sb.WriteString(msgid)
		if replyack != "" {
			sb.WriteByte('}')
			sb.WriteString(replyack)
		} else if advertise {
			sb.WriteByte('}')
		}
	}
	return []byte(sb.String())
}

// EncodeAckPayload builds an ack/rej information field for msgid,
// optionally piggybacking our own reply-ack id.
func EncodeAckPayload(addressee, msgid, replyack string, reject bool) []byte {
	var verb = "ack"
	if reject {
		verb = "rej"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, ":%-9s:%s%s", addressee, verb, msgid)
	if replyack != "" {
		sb.WriteByte('}')
		sb.WriteString(replyack)
	}
	return []byte(sb.String())
}

/*
 * Uncompressed position:  [timestamp]ddmm.mmN/dddmm.mmE$[course/speed]comment
 * where '/' is the symbol table and '$' the symbol code.
 */
func parsePosition(p []byte) (APRSPayload, error) {
	var pos = &APRSPosition{ID: p[0], Course: -1, SpeedKnots: -1}
	pos.Messaging = p[0] == DTIPositionMsg || p[0] == DTIPositionTimeMsg

	var body = p[1:]
	if p[0] == DTIPositionTime || p[0] == DTIPositionTimeMsg {
		if len(body) < 7 {
			return nil, fmt.Errorf("%w: short timestamp", ErrMalformedAPRSFrame)
		}
		pos.Timestamp = string(body[:7])
		body = body[7:]
	}

	var rest, err = parsePositionBody(body, pos)
	if err != nil {
		return nil, err
	}
	pos.Comment = rest
	return pos, nil
}

// parsePositionBody consumes "ddmm.mmN/dddmm.mmE$" plus an optional
// course/speed extension, filling pos and returning the remainder.
func parsePositionBody(body []byte, pos *APRSPosition) (string, error) {
	if len(body) < 19 {
		return "", fmt.Errorf("%w: short position", ErrMalformedAPRSFrame)
	}

	var lat, latErr = parseLat(string(body[:8]))
	if latErr != nil {
		return "", latErr
	}
	pos.SymbolTable = body[8]

	var lng, lngErr = parseLng(string(body[9:18]))
	if lngErr != nil {
		return "", lngErr
	}
	pos.SymbolCode = body[18]
	pos.Pos = s2.LatLngFromDegrees(lat, lng)

	var rest = string(body[19:])

	// Course/speed data extension: "ccc/sss".
	if len(rest) >= 7 && rest[3] == '/' {
		var cse, cerr = strconv.Atoi(rest[:3])
		var spd, serr = strconv.Atoi(rest[4:7])
		if cerr == nil && serr == nil {
			pos.Course = float64(cse)
			pos.SpeedKnots = float64(spd)
			rest = rest[7:]
		}
	}
	return rest, nil
}

func parseLat(s string) (float64, error) {
	// ddmm.mmN
	if len(s) != 8 || s[4] != '.' || (s[7] != 'N' && s[7] != 'S') {
		return 0, fmt.Errorf("%w: bad latitude %q", ErrMalformedAPRSFrame, s)
	}
	var deg, err1 = strconv.Atoi(s[:2])
	var min, err2 = strconv.ParseFloat(s[2:7], 64)
	if err1 != nil || err2 != nil || deg > 90 {
		return 0, fmt.Errorf("%w: bad latitude %q", ErrMalformedAPRSFrame, s)
	}
	var lat = float64(deg) + min/60
	if s[7] == 'S' {
		lat = -lat
	}
	return lat, nil
}

func parseLng(s string) (float64, error) {
	// dddmm.mmE
	if len(s) != 9 || s[5] != '.' || (s[8] != 'E' && s[8] != 'W') {
		return 0, fmt.Errorf("%w: bad longitude %q", ErrMalformedAPRSFrame, s)
	}
	var deg, err1 = strconv.Atoi(s[:3])
	var min, err2 = strconv.ParseFloat(s[3:8], 64)
	if err1 != nil || err2 != nil || deg > 180 {
		return 0, fmt.Errorf("%w: bad longitude %q", ErrMalformedAPRSFrame, s)
	}
	var lng = float64(deg) + min/60
	if s[8] == 'W' {
		lng = -lng
	}
	return lng, nil
}

/*
 * Object:  ;NAMENAMEN*ddhhmmz<position>   ('*' live, '_' killed)
 */
func parseObject(p []byte) (APRSPayload, error) {
	if len(p) < 1+9+1+7 {
		return nil, fmt.Errorf("%w: short object", ErrMalformedAPRSFrame)
	}
	if p[10] != '*' && p[10] != '_' {
		return nil, fmt.Errorf("%w: bad object live flag %q", ErrMalformedAPRSFrame, p[10])
	}

	var pos = &APRSPosition{ID: DTIObject, Course: -1, SpeedKnots: -1}
	pos.Timestamp = string(p[11:18])
	var rest, err = parsePositionBody(p[18:], pos)
	if err != nil {
		return nil, err
	}
	pos.Comment = rest

	return &APRSObject{
		Name:     strings.TrimRight(string(p[1:10]), " "),
		Alive:    p[10] == '*',
		Position: pos,
	}, nil
}

/*
 * Telemetry:  T#sss,aaa,aaa,aaa,aaa,aaa,dddddddd
 */
func parseTelemetry(p []byte) (APRSPayload, error) {
	var s = string(p)
	if !strings.HasPrefix(s, "T#") {
		return &APRSRaw{ID: DTITelemetry, Text: s[1:]}, nil
	}

	var fields = strings.SplitN(s[2:], ",", 8)
	if len(fields) < 7 {
		return nil, fmt.Errorf("%w: telemetry needs sequence, 5 analog, digital", ErrMalformedAPRSFrame)
	}

	var t APRSTelemetry
	var err error
	if t.Sequence, err = strconv.Atoi(strings.TrimSpace(fields[0])); err != nil {
		return nil, fmt.Errorf("%w: bad telemetry sequence %q", ErrMalformedAPRSFrame, fields[0])
	}
	for i := 0; i < 5; i++ {
		if t.Analog[i], err = strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64); err != nil {
			return nil, fmt.Errorf("%w: bad analog value %q", ErrMalformedAPRSFrame, fields[i+1])
		}
	}

	var bits = fields[6]
	if len(bits) < 8 {
		return nil, fmt.Errorf("%w: short digital bits %q", ErrMalformedAPRSFrame, bits)
	}
	for i := 0; i < 8; i++ {
		if bits[i] == '1' {
			t.Digital |= 1 << i
		} else if bits[i] != '0' {
			return nil, fmt.Errorf("%w: bad digital bits %q", ErrMalformedAPRSFrame, bits)
		}
	}
	if len(fields) == 8 {
		t.Comment = fields[7]
	}
	return &t, nil
}
