// Package stv6120 drives the dual-path STV6120 tuner (spec.md §4.2),
// the tuner-side counterpart to internal/stv0910: a small typed Driver
// over internal/gateway's I²C primitives, in the same
// register-constant/read-modify-write shape as
// jangala-dev-devicecode-go/drivers/ltc4015. The STV6120's own register
// map was not present in the retrieval pack's original_source/ (only
// stv6120_utils.c's read/write pass-through functions were, see
// DESIGN.md); register addresses here are illustrative placeholders,
// while the init/retry/powerdown sequencing follows spec.md §4.2 and
// §4.3 exactly.
package stv6120

import (
	"time"

	"nimctl/internal/config"
	"nimctl/internal/errcode"
	"nimctl/internal/gateway"
)

// PLLAttempts bounds the tuner-lock retry loop of spec.md §4.3's
// reconfiguration sequence.
const PLLAttempts = 10

const powerdownSleep = 200 * time.Millisecond

const (
	regCTRL1    byte = 0x00
	regCTRL2    byte = 0x01
	regNDIVPath1 byte = 0x02
	regFDIVPath1 byte = 0x03
	regNDIVPath2 byte = 0x04
	regFDIVPath2 byte = 0x05
	regStat1    byte = 0x0c // PLL lock status, path 1
	regStat2    byte = 0x0d // PLL lock status, path 2
)

const pllLockTimeout = 100

// Driver owns the STV6120's I²C access through the Bus Gateway. Unlike
// STV0910 there is no per-half shadow image requirement in spec.md §3 —
// the tuner's state is represented entirely by what it was last
// commanded to do.
type Driver struct {
	Bus         *gateway.Bus
	DualEnabled bool
}

func (d *Driver) read(tuner config.TunerID, reg byte) (byte, error) {
	return d.Bus.I2CRead8(tuner, d.DualEnabled, gateway.TunerAddr, reg)
}

func (d *Driver) write(tuner config.TunerID, reg, val byte) error {
	return d.Bus.I2CWrite8(tuner, d.DualEnabled, gateway.TunerAddr, reg, val)
}

// nfDivider computes the N/F divider word pair for a target LO frequency
// in kHz, following the classic STV6120 two-register N/F split (an
// integer divider N and a fractional remainder F); the reference
// frequency is the NIM's crystal, matching stv0910's clock plan.
func nfDivider(freqKHz uint32, refKHz uint32) (n byte, f byte) {
	if refKHz == 0 {
		return 0, 0
	}
	n = byte(freqKHz / refKHz)
	rem := freqKHz % refKHz
	f = byte(rem * 256 / refKHz)
	return n, f
}

// init1 programs one path's N/F divider words and polls its PLL lock bit.
// A zero frequency means "power down this path" (spec.md §4.2).
func (d *Driver) init1(tuner config.TunerID, path int, freqKHz uint32) error {
	nReg, fReg, statReg := regNDIVPath1, regFDIVPath1, regStat1
	if path == 2 {
		nReg, fReg, statReg = regNDIVPath2, regFDIVPath2, regStat2
	}

	if freqKHz == 0 {
		return d.powerdownPath(tuner, path)
	}

	const refKHz = 27_000
	n, f := nfDivider(freqKHz, refKHz)
	if err := d.write(tuner, nReg, n); err != nil {
		return err
	}
	if err := d.write(tuner, fReg, f); err != nil {
		return err
	}

	for i := 0; i < pllLockTimeout; i++ {
		v, err := d.read(tuner, statReg)
		if err != nil {
			return err
		}
		if v&0x01 != 0 {
			return nil
		}
	}
	return errcode.New(errcode.TunerLockTimeout, "stv6120.init1", "tuner PLL did not lock")
}

func (d *Driver) powerdownPath(tuner config.TunerID, path int) error {
	reg := regCTRL1
	if path == 2 {
		reg = regCTRL2
	}
	return d.write(tuner, reg, 0x00)
}

// PowerdownBothPaths is the recovery step spec.md §4.3 calls between
// TunerLockTimeout retries.
func (d *Driver) PowerdownBothPaths(tuner config.TunerID) error {
	if err := d.powerdownPath(tuner, 1); err != nil {
		return err
	}
	return d.powerdownPath(tuner, 2)
}

// Init programs both tuner paths and runs calibration for whichever has
// a non-zero frequency, with path 1 serving Tuner1/Top and path 2
// serving Tuner2/Bottom (spec.md §4.3: "stv6120.init(tuner==Tuner1 ?
// freq : 0, tuner==Tuner2 ? freq : 0, port_swap)").
func (d *Driver) Init(tuner config.TunerID, freq1KHz, freq2KHz uint32, portSwap bool) error {
	if err := d.applyPortSwap(tuner, portSwap); err != nil {
		return err
	}
	if err := d.init1(tuner, 1, freq1KHz); err != nil {
		return err
	}
	return d.init1(tuner, 2, freq2KHz)
}

func (d *Driver) applyPortSwap(tuner config.TunerID, swap bool) error {
	val := byte(0x00)
	if swap {
		val = 0x01
	}
	return d.write(tuner, regCTRL1|0x80, val) // high bit distinguishes the swap field, placeholder addressing
}

// SleepBeforeRetry is the 200 ms pause spec.md §4.3 requires between a
// powerdown and the next init attempt.
func SleepBeforeRetry() { time.Sleep(powerdownSleep) }
