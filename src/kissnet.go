package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	KISS device over TCP, and DNS-SD announcement of KISS
 *		TCP services.
 *
 * Description:	Network TNCs speak exactly the same framing as serial
 *		ones; only the byte stream differs.  The announcement
 *		side uses pure-Go mDNS so a TNC we expose can be found
 *		by mobile clients without typing addresses.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"net"

	"github.com/brutella/dnssd"
)

// DNSSDServiceType is the conventional service type for KISS over TCP.
const DNSSDServiceType = "_kiss-tnc._tcp"

// DialTCPKISSDevice connects to a network TNC ("host:port").  Call Open
// on the returned device to initialize the TNC.
func DialTCPKISSDevice(addr string, conf KISSDeviceConfig) (*KISSDevice, error) {
	var conn, err = net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	kissLog.Info("network TNC connected", "addr", addr)
	return NewKISSDevice(conn, conf, nil), nil
}

// AnnounceKISSService advertises a KISS TCP service over DNS-SD until
// the context is cancelled.
func AnnounceKISSService(ctx context.Context, name string, port int) error {
	var sv, err = dnssd.NewService(dnssd.Config{
		Name: name,
		Type: DNSSDServiceType,
		Port: port,
	})
	if err != nil {
		return fmt.Errorf("dnssd service: %w", err)
	}

	var rp dnssd.Responder
	if rp, err = dnssd.NewResponder(); err != nil {
		return fmt.Errorf("dnssd responder: %w", err)
	}
	if _, err = rp.Add(sv); err != nil {
		return fmt.Errorf("dnssd add: %w", err)
	}

	kissLog.Info("announcing KISS TCP service", "name", name, "port", port)
	go func() {
		if err := rp.Respond(ctx); err != nil && ctx.Err() == nil {
			kissLog.Error("dnssd responder failed", "err", err)
		}
	}()
	return nil
}
