package printer

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// Sender delivers a finished byte payload to a target. Implementations
// return nil on success and a descriptive error for every expected failure;
// they never panic and have no side effects beyond the device write.
type Sender interface {
	Send(t Target, data []byte) error
}

// ErrNACK is returned when the printer answers a send with the IPL
// negative-acknowledgement byte.
var ErrNACK = errors.New("printer returned NACK (check label format)")

// NetworkSender writes raw label bytes to host:port over TCP, half-closes
// the write side, then listens briefly for a negative acknowledgement.
type NetworkSender struct {
	ConnectTimeout time.Duration
	AckTimeout     time.Duration
}

// NewNetworkSender returns a NetworkSender with the stock timeouts.
func NewNetworkSender() *NetworkSender {
	return &NetworkSender{
		ConnectTimeout: 8 * time.Second,
		AckTimeout:     time.Second,
	}
}

// Send delivers data to the network target. Connection refused, timeout and
// other socket-level failures come back as distinct messages.
func (s *NetworkSender) Send(t Target, data []byte) error {
	addr := t.Address()
	conn, err := net.DialTimeout("tcp", addr, s.ConnectTimeout)
	if err != nil {
		return classifyDialError(addr, err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(s.ConnectTimeout))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("send failed to %s: %w", addr, err)
	}

	// Half-close so the printer sees end of job; keep the read side open
	// to catch an immediate NACK.
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(s.AckTimeout))
	buf := make([]byte, 64)
	n, _ := conn.Read(buf)
	if n > 0 && buf[0] == nakByte {
		return ErrNACK
	}
	return nil
}

func classifyDialError(addr string, err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connection refused: is the printer online at %s?", addr)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("timeout: printer not responding at %s", addr)
	}
	return fmt.Errorf("cannot reach printer at %s: %w", addr, err)
}
