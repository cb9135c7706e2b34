package printer

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// ErrNoRawCapability is returned when the host has no way to deliver raw
// bytes to a USB printer: no claimed USB endpoint, no raw-capable spool
// command and no writable device node.
var ErrNoRawCapability = errors.New(
	"no raw print capability: install CUPS (lp/lpr), connect the printer over USB, or configure a device node")

// rawCapabilities records, once at startup, which raw delivery channels the
// host supports. Selection happens here rather than by sniffing at send time.
type rawCapabilities struct {
	spoolPath  string   // absolute path of the raw-capable spool command
	spoolArgs  []string // flags that disable text-mode processing
	queueFlag  string   // flag that names the destination queue
	deviceNode string   // first writable printer device node, if any
}

// candidate printer device nodes, checked in order.
var deviceNodes = []string{"/dev/usb/lp0", "/dev/usb/lp1", "/dev/usblp0"}

func detectRawCapabilities() rawCapabilities {
	var caps rawCapabilities
	switch runtime.GOOS {
	case "darwin":
		// lpr -l passes the job through without reformatting.
		if path, err := exec.LookPath("lpr"); err == nil {
			caps.spoolPath = path
			caps.spoolArgs = []string{"-l"}
			caps.queueFlag = "-P"
		}
	case "linux":
		if path, err := exec.LookPath("lp"); err == nil {
			caps.spoolPath = path
			caps.spoolArgs = []string{"-o", "raw"}
			caps.queueFlag = "-d"
		}
	}
	for _, node := range deviceNodes {
		if info, err := os.Stat(node); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			caps.deviceNode = node
			break
		}
	}
	return caps
}

// USBSender delivers bytes to a locally attached printer. It prefers a
// claimed USB bulk endpoint, then the OS spool system in raw mode, then a
// direct device-node write. All three guarantee the exact byte sequence
// reaches the device with no text-mode transcoding.
type USBSender struct {
	endpoint *USBEndpoint // may be nil when no device was claimed
	caps     rawCapabilities
}

// NewUSBSender builds a sender around an optional claimed endpoint. Pass nil
// to rely on the spool/device fallbacks alone.
func NewUSBSender(endpoint *USBEndpoint) *USBSender {
	return &USBSender{endpoint: endpoint, caps: detectRawCapabilities()}
}

// Send writes data through the first available channel. A missing channel is
// a recoverable failure with remediation in the message, not a crash.
func (s *USBSender) Send(t Target, data []byte) error {
	if s.endpoint != nil && s.endpoint.IsOpen() {
		if _, err := s.endpoint.Write(data); err != nil {
			return err
		}
		return nil
	}
	if s.caps.spoolPath != "" {
		return s.spool(t.DeviceName, data)
	}
	if s.caps.deviceNode != "" {
		return s.writeDeviceNode(data)
	}
	return ErrNoRawCapability
}

func (s *USBSender) spool(queue string, data []byte) error {
	args := append([]string(nil), s.caps.spoolArgs...)
	if queue != "" {
		args = append(args, s.caps.queueFlag, queue)
	}
	cmd := exec.Command(s.caps.spoolPath, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("%s failed (check the printer name in settings)", s.caps.spoolPath)
		}
		return fmt.Errorf("spool failed: %s", msg)
	}
	return nil
}

func (s *USBSender) writeDeviceNode(data []byte) error {
	f, err := os.OpenFile(s.caps.deviceNode, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", s.caps.deviceNode, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("device write failed on %s: %w", s.caps.deviceNode, err)
	}
	return nil
}
