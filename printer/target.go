package printer

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/veritag-systems/rfid-label-agent/label"
)

// DefaultPort is the raw print port Honeywell and Zebra printers listen on.
const DefaultPort = 9100

// Mode selects the physical channel a label travels over.
type Mode int

const (
	ModeNetwork Mode = iota
	ModeUSB
)

// String returns the lowercase mode name.
func (m Mode) String() string {
	switch m {
	case ModeNetwork:
		return "network"
	case ModeUSB:
		return "usb"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "network", "":
		return ModeNetwork, nil
	case "usb":
		return ModeUSB, nil
	}
	return ModeNetwork, fmt.Errorf("unknown print mode %q (want network or usb)", s)
}

// ErrNoHost is returned when a network target has no printer address.
var ErrNoHost = errors.New("no printer IP address configured")

// Target describes where a rendered label is delivered. It is supplied by
// configuration and read-only during a print operation.
type Target struct {
	Mode Mode
	Host string // required for ModeNetwork
	Port int    // zero means DefaultPort

	// DeviceName names the spool queue for USB delivery; empty means the
	// OS default printer.
	DeviceName string
}

// Validate checks the target before any I/O happens.
func (t Target) Validate() error {
	if t.Mode == ModeNetwork && t.Host == "" {
		return ErrNoHost
	}
	return nil
}

func (t Target) port() int {
	if t.Port == 0 {
		return DefaultPort
	}
	return t.Port
}

// Address returns the host:port form of a network target.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.port()))
}

// Outcome is the result of one send operation. Expected failures (refused,
// timeout, NACK, missing capability) are represented as Success=false with a
// descriptive message; they are never surfaced as panics.
type Outcome struct {
	Success  bool
	Message  string
	Language label.Language // dialect whose encoder produced the sent bytes
}

// Selection is the caller's dialect choice for a print operation.
type Selection int

const (
	SelectAuto Selection = iota
	SelectZPL
	SelectIPL
)

// String returns the lowercase selection name.
func (s Selection) String() string {
	switch s {
	case SelectAuto:
		return "auto"
	case SelectZPL:
		return "zpl"
	case SelectIPL:
		return "ipl"
	}
	return fmt.Sprintf("Selection(%d)", int(s))
}

// ParseSelection parses a configured language selection string.
func ParseSelection(s string) (Selection, error) {
	switch s {
	case "auto", "":
		return SelectAuto, nil
	case "zpl":
		return SelectZPL, nil
	case "ipl":
		return SelectIPL, nil
	}
	return SelectAuto, fmt.Errorf("unknown printer language %q (want auto, zpl or ipl)", s)
}
