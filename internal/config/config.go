// Package config holds the Configuration singleton (spec.md §3) and the
// CLI/file parsing that populates it (spec.md §6), generalized from the
// teacher's services/hal/config package (a small JSON-tagged options
// struct parsed at start-up) to the receiver's richer per-tuner option
// set, with runtime setters guarded by a single mutex as spec.md
// requires.
package config

import (
	"fmt"
	"sync"

	"nimctl/x/mathx"
)

// Polarisation selects the LNB supply voltage/polarisation.
type Polarisation int

const (
	PolarOff Polarisation = iota
	PolarVertical13V
	PolarHorizontal18V
)

// SinkKind selects a TS or status sink transport.
type SinkKind int

const (
	SinkNone SinkKind = iota
	SinkFifo
	SinkUDP
	SinkMQTT
)

// Sink is a tagged union over the sink kinds of spec.md §3/§4.6.
type Sink struct {
	Kind   SinkKind
	Path   string // SinkFifo
	IP     string // SinkUDP
	Port   int    // SinkUDP
	Broker string // SinkMQTT
}

// Range limits from spec.md §8 (boundary behaviors).
const (
	FreqMinKHz      = 144_000
	FreqMaxKHz      = 2_450_000
	SrMinKsps       = 33
	SrMaxKsps       = 27_500
	TsTimeoutMinMs  = 500 // strictly greater than this, or -1 to disable
	TsTimeoutOffVal = -1
)

// TunerConfig is the per-tuner slice of Configuration (spec.md §3).
type TunerConfig struct {
	FreqKHz [4]int
	SrKsps  [4]int
	FreqIdx int
	SrIdx   int

	PortSwap      bool
	HalfscanRatio float64
	Polarisation  Polarisation
	TsTimeoutMs   int

	TsSink     Sink
	StatusSink Sink

	// One-shot flags, consumed by the acquisition engine (spec.md §3, §4.3).
	NewConfig bool
	TsReset   bool
}

func (t *TunerConfig) ActiveFreqKHz() int { return t.FreqKHz[t.FreqIdx] }
func (t *TunerConfig) ActiveSrKsps() int  { return t.SrKsps[t.SrIdx] }

// advanceIndex implements the "skip zero slots" grid cycling of spec.md
// §4.3's TS-timeout reinit for one index: it moves *idx to the next
// non-zero slot, wrapping mod 4. AdvanceGrid applies it to sr_idx first
// and to freq_idx when sr_idx wraps to 0.
func advanceIndex(idx *int, slots [4]int) {
	for i := 0; i < 4; i++ {
		*idx = (*idx + 1) % 4
		if slots[*idx] != 0 {
			return
		}
	}
	// No other non-zero slot exists; stay put (single-entry grid, per
	// spec.md §8 scenario 2: "no-op here since single entry").
}

// Configuration is the process-global, mutex-guarded singleton of
// spec.md §3. Zero value is not usable; build with New.
type Configuration struct {
	mu sync.Mutex

	Tuner1 TunerConfig
	Tuner2 TunerConfig

	DualEnabled bool
}

func New() *Configuration {
	return &Configuration{}
}

func (c *Configuration) tuner(id TunerID) *TunerConfig {
	if id == Tuner2 {
		return &c.Tuner2
	}
	return &c.Tuner1
}

// TunerID is spec.md §3's TunerId enumeration. Tuner1 is bound to the
// demodulator TOP half, Tuner2 to BOTTOM; this binding is immutable.
type TunerID int

const (
	Tuner1 TunerID = iota
	Tuner2
)

func (id TunerID) String() string {
	if id == Tuner2 {
		return "tuner2"
	}
	return "tuner1"
}

// Half returns the demodulator half this tuner is bound to.
func (id TunerID) Half() string {
	if id == Tuner2 {
		return "BOTTOM"
	}
	return "TOP"
}

// Snapshot copies out the tuner's configuration under the lock, for the
// acquisition task's local snapshot (spec.md §4.3).
func (c *Configuration) Snapshot(id TunerID) TunerConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.tuner(id)
}

// DualMode reports whether dual-tuner mode is enabled.
func (c *Configuration) DualMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.DualEnabled
}

// ConsumeNewConfig clears the tuner-scoped new_config flag and sets
// ts_reset, returning a snapshot taken atomically with the clear, as
// spec.md §4.3's reconfiguration sequence requires ("Under the config
// mutex: snapshot the config locally, clear the tuner-scoped new_config
// flag, set ts_reset=true").
func (c *Configuration) ConsumeNewConfig(id TunerID) (TunerConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tuner(id)
	if !t.NewConfig {
		return TunerConfig{}, false
	}
	t.NewConfig = false
	t.TsReset = true
	return *t, true
}

// ConsumeTsReset clears and reports the ts_reset flag, as read by the TS
// reader (spec.md §4.4).
func (c *Configuration) ConsumeTsReset(id TunerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tuner(id)
	v := t.TsReset
	t.TsReset = false
	return v
}

// AdvanceGrid implements the TS-timeout reinit cycling of spec.md §4.3
// and sets new_config so the next acquisition iteration reconfigures.
func (c *Configuration) AdvanceGrid(id TunerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tuner(id)
	before := t.SrIdx
	advanceIndex(&t.SrIdx, t.SrKsps)
	if t.SrIdx == before || t.SrIdx == 0 {
		advanceIndex(&t.FreqIdx, t.FreqKHz)
	}
	t.NewConfig = true
}

// SetFrequency validates and applies an operator frequency command
// (spec.md §4.6, §8 boundary behavior).
func (c *Configuration) SetFrequency(id TunerID, khz int) error {
	if !mathx.Between(khz, FreqMinKHz, FreqMaxKHz) {
		return fmt.Errorf("frequency %d kHz out of range [%d, %d]", khz, FreqMinKHz, FreqMaxKHz)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tuner(id)
	t.FreqKHz[t.FreqIdx] = khz
	t.NewConfig = true
	return nil
}

// SetSymbolRate validates and applies an operator symbol-rate command.
func (c *Configuration) SetSymbolRate(id TunerID, ksps int) error {
	if !mathx.Between(ksps, SrMinKsps, SrMaxKsps) {
		return fmt.Errorf("symbol rate %d ksps out of range [%d, %d]", ksps, SrMinKsps, SrMaxKsps)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tuner(id)
	t.SrKsps[t.SrIdx] = ksps
	t.NewConfig = true
	return nil
}

// SetPolarisation applies an operator polar command ('h', 'v', or 'n').
func (c *Configuration) SetPolarisation(id TunerID, p Polarisation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tuner(id)
	t.Polarisation = p
	t.NewConfig = true
}

// SetPortSwap applies an operator swport command.
func (c *Configuration) SetPortSwap(id TunerID, swap bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tuner(id)
	t.PortSwap = swap
	t.NewConfig = true
}

// SetTsTimeout validates and applies a ts timeout in ms (-1 to disable).
func (c *Configuration) SetTsTimeout(id TunerID, ms int) error {
	if ms != TsTimeoutOffVal && ms <= TsTimeoutMinMs {
		return fmt.Errorf("ts timeout %d ms must be > %d or %d to disable", ms, TsTimeoutMinMs, TsTimeoutOffVal)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tuner(id).TsTimeoutMs = ms
	return nil
}

// SetTsSinkUDP applies an operator tsip command (re-point the TS sink at
// a UDP destination).
func (c *Configuration) SetTsSinkUDP(id TunerID, ip string, port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tuner(id).TsSink = Sink{Kind: SinkUDP, IP: ip, Port: port}
}
