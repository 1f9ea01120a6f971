package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	A KISS TNC attached to a byte stream, multiplexing up
 *		to 16 radio ports.
 *
 * Description:	The device does not care whether the stream is a serial
 *		port, a TCP connection or a test fixture; it only needs
 *		an io.ReadWriteCloser.
 *
 *		Opening puts the TNC into a known state: any command
 *		mode is exited, the RETURN frame (C0 FF C0) is sent,
 *		then the timing parameters are written.  Some
 *		TNCs have tiny input buffers, so the initialization
 *		writes are paced with InitDelay between them.
 *
 *		All writes to the stream funnel through one mutex; the
 *		16 ports share the output queue and nothing else.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const kissPorts = 16

// cmdModeExit nudges a TNC out of any interactive command mode before
// the RETURN frame is sent.  Harmless for TNCs already in KISS mode because
// it arrives outside framing.
var cmdModeExit = []byte("\r")

// KISSDeviceConfig tunes a KISSDevice.  Zero values take the documented
// defaults; timing parameters at zero are not sent to the TNC.
type KISSDeviceConfig struct {
	// InitDelay paces the initialization writes.  Default 100 ms;
	// anything shorter risks overrunning small TNC input buffers.
	InitDelay time.Duration

	// ResetOnClose sends the RETURN sequence on teardown.
	ResetOnClose bool

	// SendBlockSize splits writes larger than this into pieces with
	// SendBlockDelay between them.  Zero disables chunking.
	SendBlockSize  int
	SendBlockDelay time.Duration

	// TNC timing parameters, in the protocol's 10 ms units where
	// applicable.  Sent during Open when non-zero.
	TXDelay  int
	Persist  int
	SlotTime int
	TXTail   int
	FullDup  bool
}

// KISSDevice owns the byte stream to one TNC.
type KISSDevice struct {
	stream io.ReadWriteCloser
	conf   KISSDeviceConfig
	clock  Clock

	writeMu sync.Mutex

	mu     sync.Mutex
	ports  [kissPorts]*KISSPort
	opened bool
	closed bool

	// Closed fires once when the stream dies or Close is called.
	// Interfaces above use it to fail their queues.
	Closed *Signal[*KISSDevice]
}

// KISSPort is one of the device's 16 multiplexed radio ports.
type KISSPort struct {
	Device *KISSDevice
	Num    uint8

	// Received fires with the raw AX.25 frame bytes of each inbound
	// data frame for this port.
	Received *Signal[[]byte]
}

// NewKISSDevice wraps an open byte stream.  Call Open to initialize the
// TNC and start the receive pump.
func NewKISSDevice(stream io.ReadWriteCloser, conf KISSDeviceConfig, clock Clock) *KISSDevice {
	if clock == nil {
		clock = WallClock()
	}
	if conf.InitDelay == 0 {
		// Negative means no pacing at all (tests, pipes).
		conf.InitDelay = 100 * time.Millisecond
	}

	return &KISSDevice{
		stream: stream,
		conf:   conf,
		clock:  clock,
		Closed: NewSignal[*KISSDevice](),
	}
}

// Port returns the multiplexer object for port 0-15.
func (d *KISSDevice) Port(i int) (*KISSPort, error) {
	if i < 0 || i >= kissPorts {
		return nil, fmt.Errorf("%w: %d", ErrPortOutOfRange, i)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ports[i] == nil {
		d.ports[i] = &KISSPort{
			Device:   d,
			Num:      uint8(i),
			Received: NewSignal[[]byte](),
		}
	}
	return d.ports[i], nil
}

// Open initializes the TNC and starts the receive loop.
func (d *KISSDevice) Open() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDeviceClosed
	}
	if d.opened {
		d.mu.Unlock()
		return nil
	}
	d.opened = true
	d.mu.Unlock()

	if err := d.initTNC(); err != nil {
		return err
	}

	go d.readLoop()
	return nil
}

// initTNC walks the TNC into KISS mode and applies timing parameters,
// pacing each write.
func (d *KISSDevice) initTNC() error {
	var writes = [][]byte{cmdModeExit, kissReturnFrame}

	var param = func(cmd KISSCommand, value int) {
		var f = KISSFrame{Port: 0, Cmd: cmd, Data: []byte{byte(value)}}
		writes = append(writes, f.Encode())
	}
	if d.conf.TXDelay > 0 {
		param(KISSCmdTXDelay, d.conf.TXDelay)
	}
	if d.conf.Persist > 0 {
		param(KISSCmdPersist, d.conf.Persist)
	}
	if d.conf.SlotTime > 0 {
		param(KISSCmdSlotTime, d.conf.SlotTime)
	}
	if d.conf.TXTail > 0 {
		param(KISSCmdTXTail, d.conf.TXTail)
	}
	if d.conf.FullDup {
		param(KISSCmdFullDuplex, 1)
	}

	for _, w := range writes {
		if err := d.writeRaw(w); err != nil {
			return err
		}
		if d.conf.InitDelay > 0 {
			time.Sleep(d.conf.InitDelay)
		}
	}

	kissLog.Info("TNC initialized",
		"txdelay", d.conf.TXDelay, "persist", d.conf.Persist,
		"slottime", d.conf.SlotTime, "txtail", d.conf.TXTail)
	return nil
}

// Close tears the device down, optionally sending the reset sequence
// first, and fails everything queued above it.
func (d *KISSDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if d.conf.ResetOnClose {
		if err := d.writeRaw(kissReturnFrame); err != nil {
			kissLog.Warn("reset sequence failed", "err", err)
		}
	}

	var err = d.stream.Close()
	d.Closed.Emit(d)
	return err
}

func (d *KISSDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// send frames and writes one outbound KISS frame.
func (d *KISSDevice) send(f *KISSFrame) error {
	if d.isClosed() {
		return ErrDeviceClosed
	}
	return d.writeRaw(f.Encode())
}

// writeRaw serializes access to the stream, applying chunked-write
// pacing when configured.
func (d *KISSDevice) writeRaw(p []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	var block = d.conf.SendBlockSize
	if block <= 0 || len(p) <= block {
		var _, err = d.stream.Write(p)
		return err
	}

	for len(p) > 0 {
		var n = block
		if n > len(p) {
			n = len(p)
		}
		if _, err := d.stream.Write(p[:n]); err != nil {
			return err
		}
		p = p[n:]
		if len(p) > 0 && d.conf.SendBlockDelay > 0 {
			time.Sleep(d.conf.SendBlockDelay)
		}
	}
	return nil
}

// readLoop pumps the stream through the decoder until the stream dies.
func (d *KISSDevice) readLoop() {
	var dec KISSDecoder
	var buf = make([]byte, 4096)

	for {
		var n, err = d.stream.Read(buf)
		if n > 0 {
			for _, f := range dec.Feed(buf[:n]) {
				d.dispatch(f)
			}
		}
		if err != nil {
			if !d.isClosed() {
				kissLog.Error("stream read failed", "err", err)
				d.mu.Lock()
				d.closed = true
				d.mu.Unlock()
				d.stream.Close()
				d.Closed.Emit(d)
			}
			return
		}
	}
}

// dispatch hands an inbound frame to its port.  Only data frames are
// expected from a TNC; anything else is logged and dropped.
func (d *KISSDevice) dispatch(f KISSFrame) {
	if f.Cmd != KISSCmdData {
		kissLog.Debug("non-data frame from TNC", "port", f.Port, "cmd", f.Cmd)
		return
	}

	d.mu.Lock()
	var port = d.ports[f.Port]
	d.mu.Unlock()

	if port == nil {
		kissLog.Debug("frame for unused port", "port", f.Port, "len", len(f.Data))
		return
	}
	port.Received.Emit(f.Data)
}

// Send transmits raw AX.25 frame bytes as a data frame on this port.
func (p *KISSPort) Send(data []byte) error {
	return p.Device.send(&KISSFrame{Port: p.Num, Cmd: KISSCmdData, Data: data})
}

// SetHardware sends a TNC specific SETHARDWARE payload on this port.
func (p *KISSPort) SetHardware(data []byte) error {
	return p.Device.send(&KISSFrame{Port: p.Num, Cmd: KISSCmdSetHardware, Data: data})
}
