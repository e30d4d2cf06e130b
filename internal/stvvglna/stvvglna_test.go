package stvvglna

import (
	"testing"

	"periph.io/x/conn/v3/i2c"

	"nimctl/internal/gateway"
)

type fakeLNAI2C struct {
	regs map[byte]byte
}

func (f *fakeLNAI2C) Tx(addr uint16, w, r []byte) error {
	switch {
	case len(w) == 1 && len(r) == 1:
		r[0] = f.regs[w[0]]
	case len(w) == 2 && len(r) == 0:
		f.regs[w[0]] = w[1]
	case len(w) == 3 && len(r) == 0:
		// repeater-bit management on the demod address; not asserted here.
	default:
		panic("unexpected Tx shape")
	}
	return nil
}

var _ i2c.Bus = (*fakeLNAI2C)(nil)

func newTestDriver() (*Driver, *fakeLNAI2C) {
	f := &fakeLNAI2C{regs: map[byte]byte{}}
	ep := gateway.NewEndpoint("001/002", f, nil)
	ep.Activate()
	return &Driver{Bus: &gateway.Bus{Endpoint1: ep}}, f
}

func TestInit_AbsentLNAReportsNotPresent(t *testing.T) {
	d, _ := newTestDriver()
	present, err := d.Init(InputTop, true)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if present {
		t.Fatal("expected present=false with no identity register set")
	}
}

func TestInit_PresentLNATurnsOn(t *testing.T) {
	d, f := newTestDriver()
	f.regs[regID] = wantIDValue

	present, err := d.Init(InputTop, true)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !present {
		t.Fatal("expected present=true with matching identity register")
	}
	if f.regs[regCtrl] != 0x01 {
		t.Fatalf("expected control register set on, got %#x", f.regs[regCtrl])
	}
}

func TestReadAGC_CombinesGainAndVGO(t *testing.T) {
	d, f := newTestDriver()
	f.regs[regGain] = 0x05
	f.regs[regVGO] = 0x03

	got, err := d.ReadAGC(InputTop)
	if err != nil {
		t.Fatalf("ReadAGC: %v", err)
	}
	want := uint16(0x05)<<5 | uint16(0x03)
	if got != want {
		t.Fatalf("ReadAGC = %#x, want %#x", got, want)
	}
}
