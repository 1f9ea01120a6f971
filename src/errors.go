package keeshond

import "errors"

// Error kinds surfaced by the stack.  Decode-side errors are recovered
// locally (the offending frame is dropped); encode-side errors are returned
// to the caller before anything is queued.
var (
	ErrMalformedCallsign   = errors.New("malformed callsign")
	ErrMalformedPath       = errors.New("malformed path")
	ErrBadFCS              = errors.New("FCS mismatch")
	ErrTruncated           = errors.New("truncated frame")
	ErrUnknownVariant      = errors.New("unknown frame variant")
	ErrKISSProtocol        = errors.New("KISS protocol error")
	ErrPortOutOfRange      = errors.New("KISS port out of range")
	ErrDeviceClosed        = errors.New("device closed")
	ErrQueueFull           = errors.New("no free message id")
	ErrMalformedAPRSFrame  = errors.New("malformed APRS payload")
	ErrNotUIFrame          = errors.New("not a UI frame")
)
