package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	Save received traffic to a log file.
 *
 * Description:	Rather than the raw, sometimes rather cryptic wire
 *		format, write separated properties in CSV for easy
 *		reading and later processing.  The file name comes
 *		from a strftime pattern, so "%Y-%m-%d.csv" gives daily
 *		files; the file is kept open and rolled when the
 *		rendered name changes.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
)

// RxLog appends one CSV row per received frame.
type RxLog struct {
	pattern *strftime.Strftime

	mu    sync.Mutex
	f     *os.File
	w     *csv.Writer
	fname string
}

var rxlogHeader = []string{
	"utime", "isotime", "source", "destination", "path", "type", "payload",
}

// NewRxLog compiles the file name pattern.
func NewRxLog(pattern string) (*RxLog, error) {
	var p, err = strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("rxlog pattern: %w", err)
	}
	return &RxLog{pattern: p}, nil
}

// Attach subscribes to an interface; the returned function detaches.
func (l *RxLog) Attach(i *AX25Interface) func() {
	return i.ReceivedMsg.Connect(l.write)
}

func (l *RxLog) write(ev ReceivedFrame) {
	var now = time.Now().UTC()
	var fname = l.pattern.FormatString(now)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f != nil && fname != l.fname {
		l.closeLocked()
	}

	if l.f == nil {
		var _, statErr = os.Stat(fname)
		var existed = statErr == nil

		var f, err = os.OpenFile(fname, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
		if err != nil {
			rootLog.Error("can't open rx log", "file", fname, "err", err)
			return
		}
		l.f = f
		l.w = csv.NewWriter(f)
		l.fname = fname

		if !existed {
			l.w.Write(rxlogHeader)
		}
	}

	var f = ev.Frame
	var digis = ""
	for i, d := range f.Path.Digis {
		if i > 0 {
			digis += ","
		}
		digis += d.String()
	}

	l.w.Write([]string{
		strconv.FormatInt(now.Unix(), 10),
		now.Format("2006-01-02T15:04:05Z"),
		f.Path.Src.String(),
		f.Path.Dst.String(),
		digis,
		f.Type().String(),
		string(f.Payload),
	})
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		rootLog.Error("rx log write failed", "file", l.fname, "err", err)
	}
}

// Close flushes and closes the current file.
func (l *RxLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked()
}

func (l *RxLog) closeLocked() {
	if l.f == nil {
		return
	}
	l.w.Flush()
	l.f.Close()
	l.f = nil
	l.w = nil
	l.fname = ""
}
