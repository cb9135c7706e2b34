package printer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/gousb"
)

// ifaceClassPrinter is the USB interface class for printers.
// Reference: http://www.usb.org/developers/defined_class
const ifaceClassPrinter = 0x07

// ErrNoUSBPrinter is returned when no printer-class USB device is attached.
var ErrNoUSBPrinter = errors.New("no USB printer found")

// USBEndpoint owns a claimed printer-class USB interface and writes label
// bytes straight to its bulk out endpoint, bypassing any OS spool layer.
type USBEndpoint struct {
	ctx    *gousb.Context
	device *gousb.Device
	iface  *gousb.Interface
	out    *gousb.OutEndpoint
	mu     sync.Mutex
	open   bool
}

// OpenUSBEndpoint finds the first attached printer-class device, claims its
// printer interface and resolves the out endpoint. With a VID/PID pair it
// opens that exact device instead of scanning.
func OpenUSBEndpoint(vid, pid uint16) (*USBEndpoint, error) {
	ctx := gousb.NewContext()

	var device *gousb.Device
	if vid != 0 || pid != 0 {
		dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
		if err != nil || dev == nil {
			ctx.Close()
			return nil, fmt.Errorf("USB device %04x:%04x not found", vid, pid)
		}
		device = dev
	} else {
		printers := findUSBPrinters(ctx)
		if len(printers) == 0 {
			ctx.Close()
			return nil, ErrNoUSBPrinter
		}
		device = printers[0]
		for _, extra := range printers[1:] {
			extra.Close()
		}
	}

	ep := &USBEndpoint{ctx: ctx, device: device}
	if err := ep.claim(); err != nil {
		device.Close()
		ctx.Close()
		return nil, err
	}
	return ep, nil
}

// isUSBPrinter reports whether any interface of the device carries the
// printer class.
func isUSBPrinter(dev *gousb.Device) bool {
	if dev == nil {
		return false
	}
	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		return false
	}
	cfg, err := dev.Config(cfgNum)
	if err != nil {
		return false
	}
	defer cfg.Close()

	for _, iface := range cfg.Desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == ifaceClassPrinter {
				return true
			}
		}
	}
	return false
}

func findUSBPrinters(ctx *gousb.Context) []*gousb.Device {
	var printers []*gousb.Device
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true
	})
	if err != nil {
		return printers
	}
	for _, dev := range devices {
		if isUSBPrinter(dev) {
			printers = append(printers, dev)
		} else {
			dev.Close()
		}
	}
	return printers
}

func (e *USBEndpoint) claim() error {
	if runtime.GOOS == "linux" {
		e.device.SetAutoDetach(true)
	}

	cfgNum, err := e.device.ActiveConfigNum()
	if err != nil {
		return fmt.Errorf("failed to get active config: %w", err)
	}
	cfg, err := e.device.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	defer cfg.Close()

	ifaceNum := -1
	for _, iface := range cfg.Desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == ifaceClassPrinter {
				ifaceNum = iface.Number
				break
			}
		}
		if ifaceNum >= 0 {
			break
		}
	}
	if ifaceNum < 0 {
		return errors.New("no printer interface found")
	}

	iface, err := cfg.Interface(ifaceNum, 0)
	if err != nil {
		return fmt.Errorf("failed to claim interface: %w", err)
	}
	e.iface = iface

	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction == gousb.EndpointDirectionOut {
			out, err := iface.OutEndpoint(epDesc.Number)
			if err == nil {
				e.out = out
				break
			}
		}
	}
	if e.out == nil {
		return errors.New("cannot find output endpoint on printer")
	}

	e.open = true
	return nil
}

// Write sends data to the printer's bulk out endpoint unmodified.
func (e *USBEndpoint) Write(data []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.open {
		return 0, errors.New("USB endpoint not open")
	}
	n, err := e.out.Write(data)
	if err != nil {
		return n, fmt.Errorf("USB write failed: %w", err)
	}
	return n, nil
}

// IsOpen reports whether the endpoint is claimed.
func (e *USBEndpoint) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// Close releases the interface, device and USB context.
func (e *USBEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.open {
		return nil
	}

	var errs []error
	if e.iface != nil {
		e.iface.Close()
		e.iface = nil
	}
	if e.device != nil {
		if err := e.device.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.ctx != nil {
		if err := e.ctx.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.open = false

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
