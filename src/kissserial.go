package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	KISS device over a serial port.
 *
 * Description:	Opens the port raw at the requested speed.  Everything
 *		above the byte stream is the shared KISSDevice.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"

	serial "github.com/daedaluz/goserial"
)

// DefaultSerialBaud is the usual TNC speed.
const DefaultSerialBaud = 9600

// OpenSerialKISSDevice opens a serial port for KISS.  Call Open on the
// returned device to initialize the TNC.
func OpenSerialKISSDevice(device string, baud int, conf KISSDeviceConfig) (*KISSDevice, error) {
	if baud <= 0 {
		baud = DefaultSerialBaud
	}

	var port, err = serial.Open(device, serial.NewOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}

	if err = port.MakeRaw(); err != nil {
		port.Close()
		return nil, fmt.Errorf("raw mode on %s: %w", device, err)
	}

	var attrs *serial.Termios2
	if attrs, err = port.GetAttr2(); err != nil {
		port.Close()
		return nil, fmt.Errorf("get attrs on %s: %w", device, err)
	}
	attrs.SetCustomSpeed(uint32(baud))
	if err = port.SetAttr2(serial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, fmt.Errorf("set %d baud on %s: %w", baud, device, err)
	}

	kissLog.Info("serial port open", "device", device, "baud", baud)
	return NewKISSDevice(port, conf, nil), nil
}
