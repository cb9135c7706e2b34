package printer

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DialectGuess is the three-valued result of probing a printer. Unknown means
// the printer could not be reached at all; callers decide the
// default-on-uncertainty policy (the Coordinator assumes ZPL).
type DialectGuess int

const (
	GuessUnknown DialectGuess = iota
	GuessZPL
	GuessIPL
)

// String returns the lowercase guess name.
func (g DialectGuess) String() string {
	switch g {
	case GuessZPL:
		return "zpl"
	case GuessIPL:
		return "ipl"
	case GuessUnknown:
		return "unknown"
	}
	return fmt.Sprintf("DialectGuess(%d)", int(g))
}

// Control bytes an IPL-mode printer answers with.
const (
	stxByte = 0x02
	ackByte = 0x06
	nakByte = 0x15
)

// probePayload is a ZPL host-status query. IPL printers answer it with a
// control byte, ZPL printers with caret-delimited status or silence.
var probePayload = []byte("^XA^HH^XZ\r\n")

// Prober classifies which dialect a network printer expects.
type Prober interface {
	Detect(host string, port int) DialectGuess
}

// Detector probes a printer over TCP. There is no handshake that reliably
// announces the dialect; mis-encoded bytes are silently dropped rather than
// rejected, so observing the status response is the only option.
type Detector struct {
	ConnectTimeout time.Duration
	SettleDelay    time.Duration // wait after the probe before reading
	ReadTimeout    time.Duration
}

// NewDetector returns a Detector with the stock probe timings.
func NewDetector() *Detector {
	return &Detector{
		ConnectTimeout: 4 * time.Second,
		SettleDelay:    600 * time.Millisecond,
		ReadTimeout:    1500 * time.Millisecond,
	}
}

// Detect probes host:port and classifies the response. It never returns an
// error: every connection-level failure (refused, timeout, DNS) resolves to
// GuessUnknown, and an unclassifiable or absent response resolves to
// GuessZPL, since ZPL printers commonly accept data without acknowledging.
func (d *Detector) Detect(host string, port int) DialectGuess {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, d.ConnectTimeout)
	if err != nil {
		return GuessUnknown
	}
	defer conn.Close()

	if _, err := conn.Write(probePayload); err != nil {
		return GuessUnknown
	}

	// Give the printer a moment to assemble its status response.
	time.Sleep(d.SettleDelay)

	conn.SetReadDeadline(time.Now().Add(d.ReadTimeout))
	buf := make([]byte, 256)
	n, _ := conn.Read(buf)
	if n == 0 {
		return GuessZPL
	}
	return classify(buf[:n])
}

func classify(resp []byte) DialectGuess {
	switch resp[0] {
	case stxByte, ackByte, nakByte:
		return GuessIPL
	}
	if bytes.ContainsRune(resp, '^') || bytes.Contains(bytes.ToUpper(resp), []byte("ZPL")) {
		return GuessZPL
	}
	// Unrecognized ASCII status: ZPL is the safer assumption.
	return GuessZPL
}
