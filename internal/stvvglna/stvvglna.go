// Package stvvglna drives the optional STVVGLNA low-noise amplifier
// (spec.md §4.2), the simplest of the three device drivers: no shadow
// image, a presence probe, and a two-register gain readout. Grounded on
// jangala-dev-devicecode-go/drivers/ltc4015's typed read/write shape, as
// with internal/stv6120; no STVVGLNA source file was present in the
// retrieval pack's original_source/, so register addresses are
// illustrative placeholders (see DESIGN.md).
package stvvglna

import (
	"nimctl/internal/config"
	"nimctl/internal/gateway"
)

// Input selects which demodulator half an LNA feeds.
type Input uint8

const (
	InputTop Input = iota
	InputBottom
)

const (
	regID   byte = 0x00 // presence/identity register
	regCtrl byte = 0x01 // on/off control
	regGain byte = 0x02
	regVGO  byte = 0x03

	wantIDValue = 0x02 // matches the vendor's documented part-ID value
)

// Driver talks to the LNA(s) through the Bus Gateway.
type Driver struct {
	Bus         *gateway.Bus
	DualEnabled bool
}

func (d *Driver) addr(in Input) uint16 {
	if in == InputBottom {
		return gateway.LNABottomAddr
	}
	return gateway.LNATopAddr
}

func (d *Driver) tunerFor(in Input) config.TunerID {
	if in == InputBottom {
		return config.Tuner2
	}
	return config.Tuner1
}

// Init probes presence and, if present, sets the on/off state (spec.md
// §4.2: "An LNA may be physically absent; init returns its presence via
// present_flag."). A failure to read the identity register at all
// (BusError, no NAK-style presence signal) is reported as present=false
// rather than propagated, since an absent LNA and a silent bus are
// indistinguishable at this layer and spec.md treats both as "not there".
func (d *Driver) Init(in Input, on bool) (present bool, err error) {
	tuner := d.tunerFor(in)
	id, rerr := d.Bus.I2CRead8(tuner, d.DualEnabled, d.addr(in), regID)
	if rerr != nil || id != wantIDValue {
		return false, nil
	}

	val := byte(0x00)
	if on {
		val = 0x01
	}
	if err := d.Bus.I2CWrite8(tuner, d.DualEnabled, d.addr(in), regCtrl, val); err != nil {
		return true, err
	}
	return true, nil
}

// ReadAGC reads the combined gain/VGO telemetry word (spec.md §4.2:
// "Telemetry combines gain<<5 | vgo").
func (d *Driver) ReadAGC(in Input) (combined uint16, err error) {
	tuner := d.tunerFor(in)
	gain, err := d.Bus.I2CRead8(tuner, d.DualEnabled, d.addr(in), regGain)
	if err != nil {
		return 0, err
	}
	vgo, err := d.Bus.I2CRead8(tuner, d.DualEnabled, d.addr(in), regVGO)
	if err != nil {
		return 0, err
	}
	return uint16(gain)<<5 | uint16(vgo), nil
}
