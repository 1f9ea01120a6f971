package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	Read stack configuration from a YAML file.
 *
 * Description:	One file describes the whole station: the device the
 *		TNC hangs off, its KISS timing bytes, the CSMA window,
 *		the APRS identity and the digipeater.  Durations are
 *		given in seconds as decimals, e.g. "cts_delay: 0.1".
 *
 *		Everything is optional except mycall and the device;
 *		zero values fall back to the documented defaults.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk station configuration.
type Config struct {
	MyCall string       `yaml:"mycall"`
	Device DeviceConfig `yaml:"device"`
	KISS   KISSConfig   `yaml:"kiss"`
	AX25   AX25Config   `yaml:"ax25"`
	APRS   APRSFileConf `yaml:"aprs"`
	Digi   DigiConfig   `yaml:"digipeater"`
	RxLog  RxLogConfig  `yaml:"rxlog"`
}

// DeviceConfig names the byte stream the TNC is reachable over.
type DeviceConfig struct {
	Type    string `yaml:"type"` // "serial" or "tcp"
	Path    string `yaml:"path"` // serial device node
	Baud    int    `yaml:"baud"`
	Address string `yaml:"address"` // host:port for tcp
	Port    int    `yaml:"port"`    // KISS port number, default 0
}

// KISSConfig carries the TNC timing bytes and framing behavior.
type KISSConfig struct {
	TXDelay        int     `yaml:"txdelay"`
	Persist        int     `yaml:"persist"`
	SlotTime       int     `yaml:"slottime"`
	TXTail         int     `yaml:"txtail"`
	FullDuplex     bool    `yaml:"fullduplex"`
	InitDelay      float64 `yaml:"init_delay"`
	ResetOnClose   bool    `yaml:"reset_on_close"`
	SendBlockSize  int     `yaml:"send_block_size"`
	SendBlockDelay float64 `yaml:"send_block_delay"`
}

// AX25Config carries the CSMA hold-off window.
type AX25Config struct {
	CTSDelay float64 `yaml:"cts_delay"`
	CTSRand  float64 `yaml:"cts_rand"`
	Mod128   bool    `yaml:"mod128"`
}

// APRSFileConf carries the APRS identity and behavior.
type APRSFileConf struct {
	Destination            string   `yaml:"aprs_destination"`
	Path                   []string `yaml:"aprs_path"`
	ListenDestinations     []string `yaml:"listen_destinations"`
	ListenAltnets          []string `yaml:"listen_altnets"`
	MsgIDModulo            int      `yaml:"msgid_modulo"`
	DedupExpiry            float64  `yaml:"deduplication_expiry"`
	RetransmitCount        int      `yaml:"retransmit_count"`
	RetransmitTimeoutBase  float64  `yaml:"retransmit_timeout_base"`
	RetransmitTimeoutRand  float64  `yaml:"retransmit_timeout_rand"`
	RetransmitTimeoutScale float64  `yaml:"retransmit_timeout_scale"`
}

// DigiConfig enables and tunes the digipeater.
type DigiConfig struct {
	Enabled bool     `yaml:"enabled"`
	Aliases []string `yaml:"aliases"`
	Timeout float64  `yaml:"digipeater_timeout"`
}

// RxLogConfig enables the received-traffic CSV log.
type RxLogConfig struct {
	// Pattern is a strftime file name pattern, e.g.
	// "/var/log/keeshond/%Y-%m-%d.csv".
	Pattern string `yaml:"pattern"`
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// LoadConfig reads and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	var raw, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if c.MyCall == "" {
		return nil, fmt.Errorf("config: mycall is required")
	}
	if _, err := ParseCallsign(c.MyCall); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	switch c.Device.Type {
	case "serial":
		if c.Device.Path == "" {
			return nil, fmt.Errorf("config: serial device needs a path")
		}
	case "tcp":
		if c.Device.Address == "" {
			return nil, fmt.Errorf("config: tcp device needs an address")
		}
	case "":
		return nil, fmt.Errorf("config: device type is required")
	default:
		return nil, fmt.Errorf("config: unknown device type %q", c.Device.Type)
	}
	return &c, nil
}

// KISSDeviceConfig converts the file form.
func (c *Config) KISSDeviceConfig() KISSDeviceConfig {
	return KISSDeviceConfig{
		InitDelay:      seconds(c.KISS.InitDelay),
		ResetOnClose:   c.KISS.ResetOnClose,
		SendBlockSize:  c.KISS.SendBlockSize,
		SendBlockDelay: seconds(c.KISS.SendBlockDelay),
		TXDelay:        c.KISS.TXDelay,
		Persist:        c.KISS.Persist,
		SlotTime:       c.KISS.SlotTime,
		TXTail:         c.KISS.TXTail,
		FullDup:        c.KISS.FullDuplex,
	}
}

// AX25InterfaceConfig converts the file form.
func (c *Config) AX25InterfaceConfig() AX25InterfaceConfig {
	return AX25InterfaceConfig{
		CTSDelay: seconds(c.AX25.CTSDelay),
		CTSRand:  seconds(c.AX25.CTSRand),
		Mod128:   c.AX25.Mod128,
	}
}

// APRSConfig converts the file form.
func (c *Config) APRSConfig() (APRSConfig, error) {
	var out = APRSConfig{
		MsgIDModulo:            c.APRS.MsgIDModulo,
		DedupExpiry:            seconds(c.APRS.DedupExpiry),
		RetransmitCount:        c.APRS.RetransmitCount,
		RetransmitTimeoutBase:  seconds(c.APRS.RetransmitTimeoutBase),
		RetransmitTimeoutRand:  seconds(c.APRS.RetransmitTimeoutRand),
		RetransmitTimeoutScale: c.APRS.RetransmitTimeoutScale,
		ListenDestinations:     c.APRS.ListenDestinations,
		ListenAltnets:          c.APRS.ListenAltnets,
	}

	var err error
	if out.MyCall, err = ParseCallsign(c.MyCall); err != nil {
		return out, err
	}
	if c.APRS.Destination != "" {
		if out.Destination, err = ParseCallsign(c.APRS.Destination); err != nil {
			return out, err
		}
	}
	for _, d := range c.APRS.Path {
		var digi Callsign
		if digi, err = ParseCallsign(d); err != nil {
			return out, err
		}
		out.Path = append(out.Path, digi)
	}
	return out, nil
}

// Stack is a fully wired station built from a Config.
type Stack struct {
	Device *KISSDevice
	AX25   *AX25Interface
	APRS   *APRSInterface
	Digi   *APRSDigipeater
	RxLog  *RxLog
}

// NewStack opens the device and builds the interface chain.
func NewStack(c *Config) (*Stack, error) {
	var clock = WallClock()

	var dev *KISSDevice
	var err error
	switch c.Device.Type {
	case "serial":
		dev, err = OpenSerialKISSDevice(c.Device.Path, c.Device.Baud, c.KISSDeviceConfig())
	case "tcp":
		dev, err = DialTCPKISSDevice(c.Device.Address, c.KISSDeviceConfig())
	default:
		err = fmt.Errorf("config: unknown device type %q", c.Device.Type)
	}
	if err != nil {
		return nil, err
	}

	if err = dev.Open(); err != nil {
		dev.Close()
		return nil, err
	}

	var port *KISSPort
	if port, err = dev.Port(c.Device.Port); err != nil {
		dev.Close()
		return nil, err
	}

	var s = &Stack{Device: dev}
	s.AX25 = NewAX25Interface(port, c.AX25InterfaceConfig(), clock)

	var aprsConf APRSConfig
	if aprsConf, err = c.APRSConfig(); err != nil {
		dev.Close()
		return nil, err
	}
	if s.APRS, err = NewAPRSInterface(s.AX25, aprsConf, clock); err != nil {
		dev.Close()
		return nil, err
	}

	if c.Digi.Enabled {
		s.Digi = NewAPRSDigipeater(DigipeaterConfig{
			Timeout: seconds(c.Digi.Timeout),
			Aliases: c.Digi.Aliases,
		}, clock)
		s.Digi.Connect(s.APRS)
	}

	if c.RxLog.Pattern != "" {
		if s.RxLog, err = NewRxLog(c.RxLog.Pattern); err != nil {
			dev.Close()
			return nil, err
		}
		s.RxLog.Attach(s.AX25)
	}
	return s, nil
}

// Close tears the stack down.
func (s *Stack) Close() error {
	if s.RxLog != nil {
		s.RxLog.Close()
	}
	return s.Device.Close()
}
