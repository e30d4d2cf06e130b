// Package usbftdi opens the two logical channels spec.md §4.1 requires
// of one BusHandle — an I²C control bus and a raw bulk TS channel — on
// top of a physical FTDI device, in the style of the periph.io FTDI
// bring-up shown in the retrieval pack's ftdi-dev/ftdi-i2c reference
// files: host.Init() once at process start, then an i2creg lookup by
// bus address for the control side, and a matching d2xx handle for the
// bulk side.
package usbftdi

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/d2xx"
	"periph.io/x/host/v3"

	"nimctl/internal/errcode"
)

var hostInitDone bool

// Init calls periph's host.Init exactly once per process, as every
// periph-based program does before touching i2creg or d2xx (spec.md
// §4.1 names no particular driver stack; this is the one the retrieval
// pack's FTDI examples assume is already in effect by the time any bus
// is opened).
func Init() error {
	if hostInitDone {
		return nil
	}
	if _, err := host.Init(); err != nil {
		return errcode.Wrap(errcode.BusError, "usbftdi.Init", "periph host init", err)
	}
	hostInitDone = true
	return nil
}

// BulkHandle adapts a d2xx.Device to internal/gateway.BulkReader. The
// FTDI D2XX driver has one read timeout per handle (FT_SetTimeouts),
// not one per call, so SetReadTimeout just remembers the value and
// reapplies it lazily the first time it changes.
type BulkHandle struct {
	dev         d2xx.Device
	lastTimeout time.Duration
}

func (b *BulkHandle) SetReadTimeout(d time.Duration) error {
	if d == b.lastTimeout {
		return nil
	}
	if err := b.dev.SetTimeouts(d, d); err != nil {
		return errcode.Wrap(errcode.BusError, "usbftdi.bulkHandle.SetReadTimeout", "set timeouts", err)
	}
	b.lastTimeout = d
	return nil
}

func (b *BulkHandle) Read(buf []byte) (int, error) {
	return b.dev.Read(buf)
}

// OpenI2C resolves busAddr (as printed by the OS, e.g. "1-1.2" or an
// FTDI serial number, per spec.md §6's -u/-U flags) through periph's
// i2creg registry, which the FTDI MPSSE host driver populates once
// Init has run.
func OpenI2C(busAddr string) (i2c.BusCloser, error) {
	bus, err := i2creg.Open(busAddr)
	if err != nil {
		return nil, errcode.Wrap(errcode.BusError, "usbftdi.OpenI2C", fmt.Sprintf("open %q", busAddr), err)
	}
	return bus, nil
}

// OpenBulk finds the d2xx device matching busAddr and wraps it as a
// gateway.BulkReader for the TS bulk channel (spec.md §4.1's "two
// logical channels per endpoint"). The NIM exposes the bulk endpoint as
// a second D2XX interface on the same physical device as the MPSSE
// I²C interface; the first listed device whose Location or SerialNumber
// equals busAddr exactly is opened.
func OpenBulk(busAddr string) (*BulkHandle, error) {
	for _, info := range d2xx.ListDevices() {
		if info.Location != busAddr && info.SerialNumber != busAddr {
			continue
		}
		dev, err := d2xx.Open(info)
		if err != nil {
			return nil, errcode.Wrap(errcode.BusError, "usbftdi.OpenBulk", fmt.Sprintf("open %q", busAddr), err)
		}
		return &BulkHandle{dev: dev}, nil
	}
	return nil, errcode.New(errcode.BadDevice, "usbftdi.OpenBulk", fmt.Sprintf("no FTDI device at %q", busAddr))
}
