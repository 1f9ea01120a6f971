package keeshond

import (
	"io"
	"sync"
	"time"
)

/*
 * A stepped clock.  Schedule collects timers; Advance moves time
 * forward, firing due timers in order.  Random returns a fixed value
 * (zero by default) so jittered delays are exact.
 */

type manualTimer struct {
	at      time.Time
	fn      func()
	stopped bool
}

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	randv  float64
	timers []*manualTimer
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1700000000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Random() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.randv
}

func (c *manualClock) Schedule(d time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var t = &manualTimer{at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		t.stopped = true
	}
}

// Advance moves the clock by d, firing every timer that comes due, in
// order.  Timers scheduled by fired callbacks participate.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	var target = c.now.Add(d)

	for {
		var next *manualTimer
		for _, t := range c.timers {
			if t.stopped || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}

		next.stopped = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		var fn = next.fn
		c.mu.Unlock()
		fn()
		c.mu.Lock()
	}

	c.now = target
	c.mu.Unlock()
}

/*
 * An in-memory byte stream standing in for a serial port.  Reads block
 * on a channel the test pushes into; writes accumulate for inspection.
 */

type testStream struct {
	mu     sync.Mutex
	wrote  []byte
	in     chan []byte
	closed bool
}

func newTestStream() *testStream {
	return &testStream{in: make(chan []byte, 64)}
}

func (s *testStream) Read(p []byte) (int, error) {
	var b, ok = <-s.in
	if !ok {
		return 0, io.EOF
	}
	return copy(p, b), nil
}

func (s *testStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wrote = append(s.wrote, p...)
	return len(p), nil
}

func (s *testStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.in)
	}
	return nil
}

// push feeds bytes to the device's read loop.
func (s *testStream) push(b []byte) {
	s.in <- b
}

// takeWritten returns and clears everything written so far.
func (s *testStream) takeWritten() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out = s.wrote
	s.wrote = nil
	return out
}

// dataFrames extracts the AX.25 payloads of the KISS data frames in raw.
func dataFrames(raw []byte) [][]byte {
	var dec KISSDecoder
	var out [][]byte
	for _, f := range dec.Feed(raw) {
		if f.Cmd == KISSCmdData {
			out = append(out, f.Data)
		}
	}
	return out
}

/*
 * A bench: stream, device, AX.25 interface wired over a manual clock,
 * with the TNC init chatter already discarded.
 */

type bench struct {
	clock  *manualClock
	stream *testStream
	dev    *KISSDevice
	port   *KISSPort
	ax     *AX25Interface
}

func newBench(conf AX25InterfaceConfig) *bench {
	var b = &bench{
		clock:  newManualClock(),
		stream: newTestStream(),
	}
	b.dev = NewKISSDevice(b.stream, KISSDeviceConfig{InitDelay: -1}, b.clock)
	b.port, _ = b.dev.Port(0)
	// Bypass Open: no init chatter, no read goroutine.  Receptions are
	// injected synchronously with b.receive.
	b.ax = NewAX25Interface(b.port, conf, b.clock)
	return b
}

// receive injects raw AX.25 frame bytes as if decoded off the air.
func (b *bench) receive(raw []byte) {
	b.ax.onPortData(raw)
}

// sentFrames decodes every AX.25 frame transmitted so far and clears
// the capture.
func (b *bench) sentFrames() []*Frame {
	var out []*Frame
	for _, data := range dataFrames(b.stream.takeWritten()) {
		var f, err = DecodeFrame(data, DecodeOptions{})
		if err != nil {
			panic(err)
		}
		out = append(out, f)
	}
	return out
}

// mustUI builds a UI frame from path notation and a payload string.
func mustUI(path, payload string) *Frame {
	var p, err = ParsePath(path)
	if err != nil {
		panic(err)
	}
	return NewUIFrame(p, PIDNoLayer3, []byte(payload))
}
