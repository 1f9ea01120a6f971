package keeshond

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceInitSequence(t *testing.T) {
	var stream = newTestStream()
	var dev = NewKISSDevice(stream, KISSDeviceConfig{
		InitDelay: -1,
		TXDelay:   40,
		Persist:   64,
		SlotTime:  10,
		TXTail:    5,
	}, newManualClock())
	require.NoError(t, dev.Open())
	defer dev.Close()

	var wrote = stream.takeWritten()

	// Command mode exit, the RETURN frame, then one frame per timing
	// parameter.
	assert.Equal(t, byte('\r'), wrote[0])
	assert.Equal(t, []byte{FEND, 0xFF, FEND}, wrote[1:4])

	var dec KISSDecoder
	var frames = dec.Feed(wrote[1:])
	require.Len(t, frames, 5)
	assert.Equal(t, KISSCmdReturn, frames[0].Cmd)
	assert.EqualValues(t, 15, frames[0].Port)
	assert.Equal(t, KISSCmdTXDelay, frames[1].Cmd)
	assert.Equal(t, []byte{40}, frames[1].Data)
	assert.Equal(t, KISSCmdPersist, frames[2].Cmd)
	assert.Equal(t, KISSCmdSlotTime, frames[3].Cmd)
	assert.Equal(t, KISSCmdTXTail, frames[4].Cmd)
}

func TestDevicePortRange(t *testing.T) {
	var dev = NewKISSDevice(newTestStream(), KISSDeviceConfig{InitDelay: -1}, newManualClock())

	var _, err = dev.Port(16)
	assert.ErrorIs(t, err, ErrPortOutOfRange)
	_, err = dev.Port(-1)
	assert.ErrorIs(t, err, ErrPortOutOfRange)

	var p0, p0err = dev.Port(0)
	require.NoError(t, p0err)
	var again, _ = dev.Port(0)
	assert.Same(t, p0, again, "port objects are singletons")
}

func TestDevicePortDispatch(t *testing.T) {
	var stream = newTestStream()
	var dev = NewKISSDevice(stream, KISSDeviceConfig{InitDelay: -1}, newManualClock())

	var p2, _ = dev.Port(2)
	var got = make(chan []byte, 1)
	p2.Received.Connect(func(b []byte) { got <- b })

	require.NoError(t, dev.Open())
	defer dev.Close()

	// A data frame for port 2 and one for the unused port 5.
	var f2 = KISSFrame{Port: 2, Cmd: KISSCmdData, Data: []byte{0x01, 0x02}}
	var f5 = KISSFrame{Port: 5, Cmd: KISSCmdData, Data: []byte{0x03}}
	stream.push(append(f2.Encode(), f5.Encode()...))

	select {
	case b := <-got:
		assert.Equal(t, []byte{0x01, 0x02}, b)
	case <-time.After(2 * time.Second):
		t.Fatal("no dispatch for port 2")
	}
}

func TestDeviceSendAfterClose(t *testing.T) {
	var stream = newTestStream()
	var dev = NewKISSDevice(stream, KISSDeviceConfig{InitDelay: -1}, newManualClock())
	var p, _ = dev.Port(0)
	require.NoError(t, dev.Open())

	var closed = make(chan struct{})
	dev.Closed.Connect(func(*KISSDevice) { close(closed) })

	require.NoError(t, dev.Close())
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Closed signal never fired")
	}

	assert.ErrorIs(t, p.Send([]byte{0x01}), ErrDeviceClosed)
}

func TestDeviceResetOnClose(t *testing.T) {
	var stream = newTestStream()
	var dev = NewKISSDevice(stream, KISSDeviceConfig{InitDelay: -1, ResetOnClose: true}, newManualClock())
	require.NoError(t, dev.Open())
	stream.takeWritten()

	require.NoError(t, dev.Close())
	assert.Equal(t, []byte{FEND, 0xFF, FEND}, stream.takeWritten())
}

func TestDeviceChunkedWrites(t *testing.T) {
	var stream = newTestStream()
	var dev = NewKISSDevice(stream, KISSDeviceConfig{
		InitDelay:     -1,
		SendBlockSize: 4,
	}, newManualClock())
	var p, _ = dev.Port(0)

	var payload = make([]byte, 40)
	require.NoError(t, p.Send(payload))

	// Chunking changes pacing, never content.
	var frames = dataFrames(stream.takeWritten())
	require.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0])
}
