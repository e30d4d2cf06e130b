package stv6120

import (
	"testing"

	"periph.io/x/conn/v3/i2c"

	"nimctl/internal/config"
	"nimctl/internal/errcode"
	"nimctl/internal/gateway"
)

type fakeTunerI2C struct {
	regs    map[byte]byte
	lockAll bool
}

func newFakeTunerI2C() *fakeTunerI2C {
	return &fakeTunerI2C{regs: map[byte]byte{regStat1: 0x01, regStat2: 0x01}}
}

func (f *fakeTunerI2C) Tx(addr uint16, w, r []byte) error {
	switch {
	case len(w) == 1 && len(r) == 1:
		r[0] = f.regs[w[0]]
	case len(w) == 2 && len(r) == 0:
		f.regs[w[0]] = w[1]
	case len(w) == 3 && len(r) == 0:
		// internal/gateway's repeater-bit write (16-bit addressing on the
		// demod address); stv6120 tests don't assert on it.
	default:
		panic("unexpected Tx shape")
	}
	return nil
}

var _ i2c.Bus = (*fakeTunerI2C)(nil)

func newTestDriver(t *testing.T) (*Driver, *fakeTunerI2C) {
	t.Helper()
	f := newFakeTunerI2C()
	ep := gateway.NewEndpoint("001/002", f, nil)
	ep.Activate()
	return &Driver{Bus: &gateway.Bus{Endpoint1: ep}}, f
}

func TestInit_ZeroFrequencyPowersDownPath(t *testing.T) {
	d, f := newTestDriver(t)
	f.regs[regCTRL1] = 0xff

	if err := d.Init(config.Tuner1, 0, 0, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if f.regs[regCTRL1] != 0x00 {
		t.Fatalf("expected path 1 powered down, CTRL1 = %#x", f.regs[regCTRL1])
	}
}

func TestInit_LocksWhenStatusBitSet(t *testing.T) {
	d, _ := newTestDriver(t)
	if err := d.Init(config.Tuner1, 741_500, 0, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func TestInit_TimesOutWhenNeverLocks(t *testing.T) {
	d, f := newTestDriver(t)
	f.regs[regStat1] = 0x00 // never locks

	err := d.Init(config.Tuner1, 741_500, 0, false)
	if errcode.Of(err) != errcode.TunerLockTimeout {
		t.Fatalf("expected TunerLockTimeout, got %v", err)
	}
}

func TestPowerdownBothPaths_ClearsBothControlRegs(t *testing.T) {
	d, f := newTestDriver(t)
	f.regs[regCTRL1] = 0xaa
	f.regs[regCTRL2] = 0xbb

	if err := d.PowerdownBothPaths(config.Tuner1); err != nil {
		t.Fatalf("PowerdownBothPaths: %v", err)
	}
	if f.regs[regCTRL1] != 0 || f.regs[regCTRL2] != 0 {
		t.Fatalf("expected both control regs cleared, got CTRL1=%#x CTRL2=%#x", f.regs[regCTRL1], f.regs[regCTRL2])
	}
}

func TestNFDivider_ZeroRefIsSafe(t *testing.T) {
	n, f := nfDivider(100, 0)
	if n != 0 || f != 0 {
		t.Fatalf("expected (0,0) for zero reference, got (%d,%d)", n, f)
	}
}
