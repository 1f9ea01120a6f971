package keeshond

import (
	"os"

	"github.com/charmbracelet/log"
)

/*
 * One logger per layer, all hanging off a shared root so an application
 * can swap the whole lot out with SetLogger.  Traffic-level chatter goes
 * to Debug; recoverable protocol damage to Warn; broken devices to Error.
 */

var rootLog = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
})

var (
	kissLog = rootLog.WithPrefix("kiss")
	ax25Log = rootLog.WithPrefix("ax25")
	aprsLog = rootLog.WithPrefix("aprs")
	digiLog = rootLog.WithPrefix("digi")
)

// SetLogger replaces the root logger for the whole stack.  Call before
// opening devices; the per-layer loggers are derived once.
func SetLogger(l *log.Logger) {
	rootLog = l
	kissLog = rootLog.WithPrefix("kiss")
	ax25Log = rootLog.WithPrefix("ax25")
	aprsLog = rootLog.WithPrefix("aprs")
	digiLog = rootLog.WithPrefix("digi")
}

// Logger returns the stack's root logger.
func Logger() *log.Logger {
	return rootLog
}
