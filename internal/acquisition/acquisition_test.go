package acquisition

import (
	"context"
	"sync"
	"testing"
	"time"

	"nimctl/internal/config"
	"nimctl/internal/gateway"
	"nimctl/internal/status"
	"nimctl/internal/stv0910"
	"nimctl/internal/stv6120"
	"nimctl/internal/stvvglna"
)

// memI2C is a register-addressed fake bus shared by all three drivers, in
// the spirit of stv0910_test.go's memI2C: it disambiguates an 8-bit vs.
// 16-bit register access and a read vs. a write purely from the shape of
// w/r, since that is exactly how internal/gateway constructs every call.
type memI2C struct {
	mu       sync.Mutex
	mem      map[uint32]byte
	lockMask map[uint32]byte // OR'd into a register's stored value after every write, to model a chip that reports PLL lock as soon as it's programmed
}

func key(addr, reg uint16) uint32 { return uint32(addr)<<16 | uint32(reg) }

func newMemI2C() *memI2C {
	return &memI2C{mem: map[uint32]byte{}, lockMask: map[uint32]byte{}}
}

func (m *memI2C) set(addr, reg uint16, val byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mem[key(addr, reg)] = val
}

func (m *memI2C) Tx(addr uint16, w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case len(w) == 3:
		reg := uint16(w[0])<<8 | uint16(w[1])
		k := key(addr, reg)
		m.mem[k] = w[2] | m.lockMask[k]
	case len(w) == 2 && r != nil:
		reg := uint16(w[0])<<8 | uint16(w[1])
		r[0] = m.mem[key(addr, reg)]
	case len(w) == 2 && r == nil:
		k := key(addr, uint16(w[0]))
		m.mem[k] = w[1] | m.lockMask[k]
	case len(w) == 1:
		r[0] = m.mem[key(addr, uint16(w[0]))]
	}
	return nil
}

// testHarness wires one Bus Gateway endpoint and the three drivers over
// it, the way cmd/nimctl's supervisor wiring does for a single tuner.
type testHarness struct {
	mem       *memI2C
	gw        *gateway.Bus
	demod     *stv0910.Driver
	tuner6120 *stv6120.Driver
	lna       *stvvglna.Driver
}

func newTestHarness() *testHarness {
	mem := newMemI2C()

	// Chip ID and scratch readback InitRegisters requires.
	mem.set(gateway.DemodAddr, 0xf100, 0x51)
	mem.set(gateway.DemodAddr, 0xf101, 0x20)

	// SetupClocks' PLL always reports locked once programmed.
	mem.lockMask[key(gateway.DemodAddr, 0xf401)] = 0x01

	// AGC1 gain readout (Top half), a nonzero low byte so dispatch's
	// demod-side AGC1Gain is distinguishable from zero and from the
	// LNA's own gain/vgo readout below.
	mem.set(gateway.DemodAddr, 0xf543, 0x07)

	// STV6120 path1 PLL lock bit, pre-armed so Init succeeds without
	// exercising the retry loop.
	mem.set(gateway.TunerAddr, 0x0c, 0x01)

	// STVVGLNA top LNA reports present, with a nonzero gain/vgo readout.
	mem.set(gateway.LNATopAddr, 0x00, 0x02)
	mem.set(gateway.LNATopAddr, 0x02, 0x05)
	mem.set(gateway.LNATopAddr, 0x03, 0x03)
	// Bottom LNA shares TunerAddr in this placeholder address map; mark
	// it present too so single-mode's "any LNA absence is fatal" check
	// doesn't trip on the shared address (see DESIGN.md).
	mem.set(gateway.LNABottomAddr, 0x00, 0x02)

	ep := gateway.NewEndpoint("001/002", mem, nil)
	ep.Activate()
	gw := &gateway.Bus{Endpoint1: ep}

	return &testHarness{
		mem:       mem,
		gw:        gw,
		demod:     &stv0910.Driver{Bus: gw},
		tuner6120: &stv6120.Driver{Bus: gw},
		lna:       &stvvglna.Driver{Bus: gw},
	}
}

func newTuner1Config() *config.Configuration {
	cfg := config.New()
	cfg.Tuner1.FreqKHz[0] = 1_000_000
	cfg.Tuner1.SrKsps[0] = 2000
	cfg.Tuner1.HalfscanRatio = 100
	cfg.Tuner1.TsTimeoutMs = config.TsTimeoutOffVal
	cfg.Tuner1.NewConfig = true
	return cfg
}

func TestIterate_ReconfiguresAndCommitsTelemetryOnNewConfig(t *testing.T) {
	h := newTestHarness()
	cfg := newTuner1Config()
	sb := status.New()

	task := NewTask(config.Tuner1, cfg, sb, h.demod, h.tuner6120, h.lna)

	if err := task.iterate(context.Background()); err != nil {
		t.Fatalf("iterate: %v", err)
	}

	if task.softwareState != Hunting {
		t.Fatalf("softwareState = %v, want Hunting", task.softwareState)
	}

	snap := sb.Snapshot()
	if snap.State != stv0910.Hunting {
		t.Fatalf("snapshot State = %v, want Hunting", snap.State)
	}
	if snap.AGC1Gain == 0 {
		t.Fatalf("expected AGC1Gain to reflect the demod's AGC1 gain registers, got 0")
	}
	if snap.LNAGain == 0 {
		t.Fatalf("expected LNAGain to reflect the LNA's gain/vgo readout, got 0")
	}

	// new_config must have been consumed, so a later iterate will not
	// reconfigure again.
	snapAfter := cfg.Snapshot(config.Tuner1)
	if snapAfter.NewConfig {
		t.Fatal("new_config flag should have been cleared by ConsumeNewConfig")
	}
}

func TestIterate_NoNewConfigSkipsReconfigureButStillCommits(t *testing.T) {
	h := newTestHarness()
	cfg := newTuner1Config()
	sb := status.New()
	task := NewTask(config.Tuner1, cfg, sb, h.demod, h.tuner6120, h.lna)

	// First iterate performs the one-time reconfigure.
	if err := task.iterate(context.Background()); err != nil {
		t.Fatalf("first iterate: %v", err)
	}
	v1 := sb.Snapshot().LastUpdatedMonotonic

	time.Sleep(time.Millisecond)
	if err := task.iterate(context.Background()); err != nil {
		t.Fatalf("second iterate: %v", err)
	}
	v2 := sb.Snapshot().LastUpdatedMonotonic

	if !v2.After(v1) {
		t.Fatal("expected a fresh telemetry commit even without a reconfigure")
	}
}

func TestReconfigure_TunerLockTimeoutExhaustsRetriesThenFails(t *testing.T) {
	h := newTestHarness()
	// Un-arm the tuner PLL lock bit so init1 never sees lock.
	h.mem.set(gateway.TunerAddr, 0x0c, 0x00)

	cfg := newTuner1Config()
	sb := status.New()
	task := NewTask(config.Tuner1, cfg, sb, h.demod, h.tuner6120, h.lna)

	err := task.reconfigure(context.Background(), cfg.Snapshot(config.Tuner1))
	if err == nil {
		t.Fatal("expected a tuner lock timeout error")
	}
}

func TestCheckTSTimeout_AdvancesGridWhenStale(t *testing.T) {
	cfg := config.New()
	cfg.Tuner1.FreqKHz = [4]int{200_000, 300_000, 0, 0}
	cfg.Tuner1.SrKsps = [4]int{1000, 2000, 0, 0}
	cfg.Tuner1.TsTimeoutMs = 10

	task := &Task{Tuner: config.Tuner1, Config: cfg}
	task.lastActivity = time.Now().Add(-time.Second)

	task.checkTSTimeout(cfg.Snapshot(config.Tuner1))

	snap := cfg.Snapshot(config.Tuner1)
	if !snap.NewConfig {
		t.Fatal("expected AdvanceGrid to set new_config")
	}
	if snap.SrIdx != 1 {
		t.Fatalf("SrIdx = %d, want 1 (advance before wrapping to freq_idx)", snap.SrIdx)
	}
}

func TestCheckTSTimeout_DisabledNeverAdvances(t *testing.T) {
	cfg := config.New()
	cfg.Tuner1.TsTimeoutMs = config.TsTimeoutOffVal

	task := &Task{Tuner: config.Tuner1, Config: cfg}
	task.lastActivity = time.Now().Add(-time.Hour)

	task.checkTSTimeout(cfg.Snapshot(config.Tuner1))

	if cfg.Snapshot(config.Tuner1).NewConfig {
		t.Fatal("disabled ts_timeout (-1) must never request a reconfigure")
	}
}
