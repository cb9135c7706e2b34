package printer

import (
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNetworkSender() *NetworkSender {
	return &NetworkSender{
		ConnectTimeout: 2 * time.Second,
		AckTimeout:     200 * time.Millisecond,
	}
}

// captureServer accepts one connection, drains it and reports the received
// bytes on the channel. When nack is set it answers the job with the IPL
// negative-acknowledgement byte.
func captureServer(t *testing.T, nack bool) (Target, <-chan []byte) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		data, _ := io.ReadAll(conn)
		received <- data
		if nack {
			conn.Write([]byte{nakByte})
			time.Sleep(100 * time.Millisecond)
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return Target{Mode: ModeNetwork, Host: host, Port: port}, received
}

func TestNetworkSendDeliversExactBytes(t *testing.T) {
	target, received := captureServer(t, false)
	payload := []byte("^XA^FDtest^FS^XZ")

	err := testNetworkSender().Send(target, payload)
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, payload, got)
	case <-time.After(time.Second):
		t.Fatal("server never received the payload")
	}
}

func TestNetworkSendNACK(t *testing.T) {
	target, _ := captureServer(t, true)

	err := testNetworkSender().Send(target, []byte{stxByte, 'n', 0x03})
	assert.ErrorIs(t, err, ErrNACK)
}

func TestNetworkSendRefused(t *testing.T) {
	host, port := closedPort(t)
	target := Target{Mode: ModeNetwork, Host: host, Port: port}

	err := testNetworkSender().Send(target, []byte("^XA^XZ"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "i/o timeout" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

func TestClassifyDialError(t *testing.T) {
	err := classifyDialError("10.0.0.9:9100", fakeTimeoutError{})
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "10.0.0.9:9100")

	err = classifyDialError("10.0.0.9:9100", io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "cannot reach printer")
}

func TestTargetValidate(t *testing.T) {
	assert.ErrorIs(t, Target{Mode: ModeNetwork}.Validate(), ErrNoHost)
	assert.NoError(t, Target{Mode: ModeNetwork, Host: "10.0.0.5"}.Validate())
	assert.NoError(t, Target{Mode: ModeUSB}.Validate(), "USB accepts the OS default printer")
}

func TestTargetAddressDefaultsPort(t *testing.T) {
	target := Target{Mode: ModeNetwork, Host: "10.0.0.5"}
	assert.Equal(t, "10.0.0.5:9100", target.Address())

	target.Port = 6101
	assert.Equal(t, "10.0.0.5:6101", target.Address())
}

func TestParseModeAndSelection(t *testing.T) {
	mode, err := ParseMode("usb")
	require.NoError(t, err)
	assert.Equal(t, ModeUSB, mode)

	mode, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeNetwork, mode)

	_, err = ParseMode("parallel")
	assert.Error(t, err)

	sel, err := ParseSelection("ipl")
	require.NoError(t, err)
	assert.Equal(t, SelectIPL, sel)

	sel, err = ParseSelection("")
	require.NoError(t, err)
	assert.Equal(t, SelectAuto, sel)

	_, err = ParseSelection("escpos")
	assert.Error(t, err)
}
