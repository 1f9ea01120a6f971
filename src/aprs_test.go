package keeshond

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseAPRSPayload(t *testing.T, path, payload string) APRSPayload {
	t.Helper()
	var p, err = ParseAPRS(mustUI(path, payload))
	require.NoError(t, err)
	return p
}

func TestParseMessage(t *testing.T) {
	var p = parseAPRSPayload(t, "VK4ABC>APZKSH", ":VK4MSL-9 :Hello there{42")
	var msg, ok = p.(*APRSMessage)
	require.True(t, ok)
	assert.Equal(t, "VK4MSL-9", msg.Addressee)
	assert.Equal(t, "Hello there", msg.Text)
	assert.Equal(t, "42", msg.MsgID)
	assert.Empty(t, msg.ReplyAck)
	assert.False(t, msg.ReplyAckCapable)
}

func TestParseMessageNoID(t *testing.T) {
	var msg = parseAPRSPayload(t, "VK4ABC>APZKSH", ":VK4MSL   :ping").(*APRSMessage)
	assert.Equal(t, "VK4MSL", msg.Addressee)
	assert.Equal(t, "ping", msg.Text)
	assert.Empty(t, msg.MsgID)
}

func TestParseMessageReplyAck(t *testing.T) {
	// "{17}24" means: my msgid is 17, and this also acks your 24.
	var msg = parseAPRSPayload(t, "VK4ABC>APZKSH", ":VK4MSL   :ok{17}24").(*APRSMessage)
	assert.Equal(t, "17", msg.MsgID)
	assert.Equal(t, "24", msg.ReplyAck)
	assert.False(t, msg.ReplyAckCapable)

	// A bare trailing "}" only advertises the capability.
	msg = parseAPRSPayload(t, "VK4ABC>APZKSH", ":VK4MSL   :ok{17}").(*APRSMessage)
	assert.Equal(t, "17", msg.MsgID)
	assert.Empty(t, msg.ReplyAck)
	assert.True(t, msg.ReplyAckCapable)
}

func TestParseAckReject(t *testing.T) {
	var p = parseAPRSPayload(t, "VK4MSL-9>APZKSH", ":VK4ABC   :ack42")
	var ack, ok = p.(*APRSAckReject)
	require.True(t, ok)
	assert.Equal(t, "VK4ABC", ack.Addressee)
	assert.Equal(t, "42", ack.MsgID)
	assert.False(t, ack.Reject)

	var rej = parseAPRSPayload(t, "VK4MSL-9>APZKSH", ":VK4ABC   :rej7}13").(*APRSAckReject)
	assert.True(t, rej.Reject)
	assert.Equal(t, "7", rej.MsgID)
	assert.Equal(t, "13", rej.ReplyAck)

	// "ack" followed by 1-5 id characters is an acknowledgement (so
	// even "ackle" parses as an ack of "le"), but the match is case
	// sensitive: "ACK42" is a message.
	var msg = parseAPRSPayload(t, "VK4MSL-9>APZKSH", ":VK4ABC   :ACK42").(*APRSMessage)
	assert.Equal(t, "ACK42", msg.Text)
}

func TestParseMessageMalformed(t *testing.T) {
	var cases = []string{
		":SHORT:x",            // addressee field not 9 characters
		":VK4MSL   xno colon", // missing terminator
		":VK4MSL   :x{toolong7", // message id over 5 characters
	}
	for _, payload := range cases {
		var _, err = ParseAPRS(mustUI("VK4ABC>APZKSH", payload))
		assert.ErrorIs(t, err, ErrMalformedAPRSFrame, "payload %q", payload)
	}
}

func TestEncodeMessagePayload(t *testing.T) {
	assert.Equal(t, []byte(":VK4MSL-9 :Hello{42"),
		EncodeMessagePayload("VK4MSL-9", "Hello", "42", "", false))

	assert.Equal(t, []byte(":VK4MSL   :Hello"),
		EncodeMessagePayload("VK4MSL", "Hello", "", "", false),
		"no brace without a message id")

	assert.Equal(t, []byte(":VK4MSL   :Hello{42}7"),
		EncodeMessagePayload("VK4MSL", "Hello", "42", "7", false))

	assert.Equal(t, []byte(":VK4MSL   :Hello{42}"),
		EncodeMessagePayload("VK4MSL", "Hello", "42", "", true))
}

func TestEncodeAckPayload(t *testing.T) {
	assert.Equal(t, []byte(":VK4ABC   :ack42"), EncodeAckPayload("VK4ABC", "42", "", false))
	assert.Equal(t, []byte(":VK4ABC   :rej42"), EncodeAckPayload("VK4ABC", "42", "", true))
	assert.Equal(t, []byte(":VK4ABC   :ack42}9"), EncodeAckPayload("VK4ABC", "42", "9", false))
}

func TestMessageCodecRoundTrip(t *testing.T) {
	var payload = EncodeMessagePayload("VK4MSL-9", "Round trip", "991", "", false)
	var msg = parseAPRSPayload(t, "VK4ABC>APZKSH", string(payload)).(*APRSMessage)
	assert.Equal(t, "VK4MSL-9", msg.Addressee)
	assert.Equal(t, "Round trip", msg.Text)
	assert.Equal(t, "991", msg.MsgID)
}

func TestParsePosition(t *testing.T) {
	var p = parseAPRSPayload(t, "VK4ABC>APZKSH", "!4903.50N/07201.75W-Test station")
	var pos, ok = p.(*APRSPosition)
	require.True(t, ok)
	assert.InDelta(t, 49.0583333, pos.Pos.Lat.Degrees(), 1e-6)
	assert.InDelta(t, -72.0291666, pos.Pos.Lng.Degrees(), 1e-6)
	assert.EqualValues(t, '/', pos.SymbolTable)
	assert.EqualValues(t, '-', pos.SymbolCode)
	assert.Equal(t, "Test station", pos.Comment)
	assert.False(t, pos.Messaging)
	assert.EqualValues(t, -1, pos.Course)
}

func TestParsePositionWithTimestampAndCourse(t *testing.T) {
	var pos = parseAPRSPayload(t, "VK4ABC>APZKSH",
		"@092345z4903.50S/07201.75E>088/036on my way").(*APRSPosition)
	assert.Equal(t, "092345z", pos.Timestamp)
	assert.InDelta(t, -49.0583333, pos.Pos.Lat.Degrees(), 1e-6)
	assert.InDelta(t, 72.0291666, pos.Pos.Lng.Degrees(), 1e-6)
	assert.EqualValues(t, 88, pos.Course)
	assert.EqualValues(t, 36, pos.SpeedKnots)
	assert.Equal(t, "on my way", pos.Comment)
	assert.True(t, pos.Messaging)
}

func TestParseStatus(t *testing.T) {
	var st = parseAPRSPayload(t, "VK4ABC>APZKSH", ">Net Control Center").(*APRSStatus)
	assert.Equal(t, "Net Control Center", st.Text)
}

func TestParseObject(t *testing.T) {
	var obj = parseAPRSPayload(t, "VK4ABC>APZKSH",
		";LEADER   *092345z4903.50N/07201.75W>").(*APRSObject)
	assert.Equal(t, "LEADER", obj.Name)
	assert.True(t, obj.Alive)
	assert.Equal(t, "092345z", obj.Position.Timestamp)
	assert.InDelta(t, 49.0583333, obj.Position.Pos.Lat.Degrees(), 1e-6)
}

func TestParseTelemetry(t *testing.T) {
	var tel = parseAPRSPayload(t, "VK4ABC>APZKSH",
		"T#005,199,000,255,073,123,01101001").(*APRSTelemetry)
	assert.Equal(t, 5, tel.Sequence)
	assert.Equal(t, [5]float64{199, 0, 255, 73, 123}, tel.Analog)
	assert.EqualValues(t, 0b10010110, tel.Digital)
}

func TestParseUnknownDTI(t *testing.T) {
	var raw = parseAPRSPayload(t, "VK4ABC>APZKSH", "_10090556c220s004g005t077").(*APRSRaw)
	assert.EqualValues(t, '_', raw.ID)
}

func TestParseAPRSRejectsNonUI(t *testing.T) {
	var p, _ = ParsePath("VK4ABC>VK4MSL")
	var f = &Frame{Path: p, Control: SRR}
	var _, err = ParseAPRS(f)
	assert.ErrorIs(t, err, ErrNotUIFrame)
}
