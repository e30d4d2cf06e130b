// Package gateway implements the Bus Gateway (spec.md §4.1): the four I²C
// primitives and the bulk TS read, serialized per FTDI endpoint and
// wrapped with the NIM's I²C repeater-bit discipline. Grounded on the
// periph.io FTDI/MPSSE i2c.Bus shape (Tx(addr uint16, w, r []byte) error,
// one mutex held for the full USB exchange) and on the repeater
// transitions recorded in the original nim_write_demod/nim_write_tuner
// family: writing register 0xf12a to 0x38 closes the repeater before a
// non-0xf12a demod-direct write, and to 0xb8 opens it before any
// tuner/LNA-addressed transaction.
package gateway

import (
	"context"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"

	"nimctl/internal/config"
	"nimctl/internal/errcode"
)

// I²C target addresses behind the shared NIM bus segment. The upstream
// nim.h defining these exact values was not present in the retrieval
// pack (see DESIGN.md); these are the conventional STV0910/STV6120/
// STVVGLNA 7-bit addresses used by the wider dddvb/longmynd family and
// are treated as an implementation placeholder, not a spec requirement.
const (
	DemodAddr uint16 = 0x68
	TunerAddr uint16 = 0x60
	LNATopAddr uint16 = 0x63
	LNABottomAddr uint16 = 0x60
)

// repeaterReg is the demodulator register controlling the tuner-side I²C
// repeater (spec.md §4.1).
const repeaterReg uint16 = 0xf12a

const (
	repeaterOpenVal  byte = 0xb8
	repeaterCloseVal byte = 0x38
)

// BulkReader is the USB bulk side of a BusHandle (spec.md §3): a
// blocking, timeout-bounded read of raw TS bytes, still carrying the
// FTDI modem-status prefix per 512-byte packet (stripped later by
// internal/tspipeline). No standard Go driver models USB bulk
// endpoints the way periph.io/x/conn models I²C, so this is a narrow
// interface the FTDI D2XX handle satisfies directly.
type BulkReader interface {
	SetReadTimeout(d time.Duration) error
	Read(buf []byte) (int, error)
}

// Endpoint is spec.md §3's BusHandle: one physical FTDI device exposing
// both an I²C bus and a TS bulk channel, guarded by a single mutex for
// the full duration of any transaction on either side.
type Endpoint struct {
	mu sync.Mutex

	BusAddr string
	I2C     i2c.Bus
	Bulk    BulkReader

	initialized bool
	active      bool

	repeaterOn bool
}

// NewEndpoint wraps an already-opened I²C bus and bulk channel. active
// starts false; the supervisor calls Activate once device init succeeds.
func NewEndpoint(busAddr string, bus i2c.Bus, bulk BulkReader) *Endpoint {
	return &Endpoint{BusAddr: busAddr, I2C: bus, Bulk: bulk}
}

func (e *Endpoint) Activate()   { e.mu.Lock(); e.active = true; e.mu.Unlock() }
func (e *Endpoint) Deactivate() { e.mu.Lock(); e.active = false; e.mu.Unlock() }
func (e *Endpoint) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Bus is the Bus Gateway proper: it owns one or two Endpoints and routes
// a TunerId to the correct one (spec.md §4.1 "Endpoint selection").
type Bus struct {
	Endpoint1 *Endpoint
	Endpoint2 *Endpoint // nil unless dual_enabled
}

// endpointFor implements the endpoint-selection rule verbatim: Tuner1 (or
// any tuner when dual is off) always targets endpoint 1; Tuner2 targets
// endpoint 2 only when dual mode is enabled.
func (b *Bus) endpointFor(tuner config.TunerID, dualEnabled bool) (*Endpoint, error) {
	if tuner == config.Tuner2 && dualEnabled {
		if b.Endpoint2 == nil || !b.Endpoint2.IsActive() {
			return nil, errcode.New(errcode.BadDevice, "gateway.endpointFor", "endpoint2 inactive")
		}
		return b.Endpoint2, nil
	}
	if b.Endpoint1 == nil || !b.Endpoint1.IsActive() {
		return nil, errcode.New(errcode.BadDevice, "gateway.endpointFor", "endpoint1 inactive")
	}
	return b.Endpoint1, nil
}

// ensureRepeaterForDemod implements the "close before a non-0xf12a
// demod-direct write" half of spec.md §4.1. Called with e.mu held.
func (e *Endpoint) ensureRepeaterForDemod(reg16 uint16) error {
	if e.repeaterOn && reg16 != repeaterReg {
		if err := e.rawWrite16(DemodAddr, repeaterReg, repeaterCloseVal); err != nil {
			return err
		}
		e.repeaterOn = false
	}
	return nil
}

// ensureRepeaterForTunerOrLNA implements the "open before any tuner/LNA
// transaction" half of spec.md §4.1. Called with e.mu held.
func (e *Endpoint) ensureRepeaterForTunerOrLNA() error {
	if !e.repeaterOn {
		if err := e.rawWrite16(DemodAddr, repeaterReg, repeaterOpenVal); err != nil {
			return err
		}
		e.repeaterOn = true
	}
	return nil
}

func (e *Endpoint) rawWrite16(addr, reg16 uint16, val byte) error {
	w := []byte{byte(reg16 >> 8), byte(reg16), val}
	if err := e.I2C.Tx(addr, w, nil); err != nil {
		return errcode.Wrap(errcode.BusError, "gateway.rawWrite16", "i2c write", err)
	}
	return nil
}

// I2CRead8 reads one byte at an 8-bit register address (STV6120/STVVGLNA
// style) from the endpoint bound to tuner.
func (b *Bus) I2CRead8(tuner config.TunerID, dualEnabled bool, addr uint16, reg8 byte) (byte, error) {
	e, err := b.endpointFor(tuner, dualEnabled)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if addr == DemodAddr {
		if err := e.ensureRepeaterForDemod(uint16(reg8)); err != nil {
			return 0, err
		}
	} else {
		if err := e.ensureRepeaterForTunerOrLNA(); err != nil {
			return 0, err
		}
	}

	var r [1]byte
	if err := e.I2C.Tx(addr, []byte{reg8}, r[:]); err != nil {
		return 0, errcode.Wrap(errcode.BusError, "gateway.I2CRead8", "i2c read", err)
	}
	return r[0], nil
}

// I2CWrite8 writes one byte at an 8-bit register address.
func (b *Bus) I2CWrite8(tuner config.TunerID, dualEnabled bool, addr uint16, reg8, val byte) error {
	e, err := b.endpointFor(tuner, dualEnabled)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if addr == DemodAddr {
		if err := e.ensureRepeaterForDemod(uint16(reg8)); err != nil {
			return err
		}
	} else {
		if err := e.ensureRepeaterForTunerOrLNA(); err != nil {
			return err
		}
	}

	if err := e.I2C.Tx(addr, []byte{reg8, val}, nil); err != nil {
		return errcode.Wrap(errcode.BusError, "gateway.I2CWrite8", "i2c write", err)
	}
	return nil
}

// I2CRead16 reads one byte at a 16-bit register address (STV0910 style).
func (b *Bus) I2CRead16(tuner config.TunerID, dualEnabled bool, reg16 uint16) (byte, error) {
	e, err := b.endpointFor(tuner, dualEnabled)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureRepeaterForDemod(reg16); err != nil {
		return 0, err
	}

	w := []byte{byte(reg16 >> 8), byte(reg16)}
	var r [1]byte
	if err := e.I2C.Tx(DemodAddr, w, r[:]); err != nil {
		return 0, errcode.Wrap(errcode.BusError, "gateway.I2CRead16", "i2c read", err)
	}
	return r[0], nil
}

// I2CWrite16 writes one byte at a 16-bit register address.
func (b *Bus) I2CWrite16(tuner config.TunerID, dualEnabled bool, reg16 uint16, val byte) error {
	e, err := b.endpointFor(tuner, dualEnabled)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureRepeaterForDemod(reg16); err != nil {
		return err
	}

	if err := e.rawWrite16(DemodAddr, reg16, val); err != nil {
		return err
	}
	return nil
}

// TSRead performs the bulk TS read of spec.md §4.1, blocking up to
// timeout. The returned slice still carries the FTDI modem-status
// prefix; stripping it is internal/tspipeline's job.
func (b *Bus) TSRead(ctx context.Context, tuner config.TunerID, dualEnabled bool, buf []byte, timeout time.Duration) (int, error) {
	e, err := b.endpointFor(tuner, dualEnabled)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Bulk == nil {
		return 0, errcode.New(errcode.BadDevice, "gateway.TSRead", "no bulk channel bound")
	}
	if err := e.Bulk.SetReadTimeout(timeout); err != nil {
		return 0, errcode.Wrap(errcode.BusError, "gateway.TSRead", "set read timeout", err)
	}
	n, err := e.Bulk.Read(buf)
	if err != nil {
		return n, errcode.Wrap(errcode.BusError, "gateway.TSRead", "bulk read", err)
	}
	return n, nil
}
