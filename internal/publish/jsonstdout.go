package publish

import (
	"encoding/json"
	"io"
	"time"

	"nimctl/internal/config"
	"nimctl/internal/status"
)

// Verbosity selects the JSON stdout publisher's field set (spec.md
// §4.6: "three verbosity levels (full, compact, minimal)").
type Verbosity int

const (
	VerbosityMinimal Verbosity = iota
	VerbosityCompact
	VerbosityFull
)

// JSONStdoutPublisher emits one object per demodulator cycle, subject to
// a minimum interval, per spec.md §4.6.
type JSONStdoutPublisher struct {
	w             io.Writer
	minInterval   time.Duration
	verbosity     Verbosity
	pretty        bool
	lastEmit      time.Time
}

// NewJSONStdoutPublisher constructs a publisher writing to w (ordinarily
// os.Stdout). minInterval defaults to 1000 ms per spec.md §4.6 when
// zero.
func NewJSONStdoutPublisher(w io.Writer, verbosity Verbosity, pretty bool, minInterval time.Duration) *JSONStdoutPublisher {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	return &JSONStdoutPublisher{w: w, minInterval: minInterval, verbosity: verbosity, pretty: pretty}
}

// jsonRecord is the minimal verbosity's field set; compact and full add
// progressively more.
type jsonRecord struct {
	Tuner            string  `json:"tuner"`
	State            int     `json:"state"`
	CarrierFrequency int32   `json:"carrier_frequency"`
	SymbolRate       uint32  `json:"symbol_rate"`
	BER              uint32  `json:"ber"`

	PunctureRate *uint8   `json:"puncture_rate,omitempty"`
	MER          *float64 `json:"mer,omitempty"`
	Modcod       *uint8   `json:"modcod,omitempty"`

	LNAGain          *uint16  `json:"lna_gain,omitempty"`
	AGC1Gain         *uint16  `json:"agc1_gain,omitempty"`
	AGC2Gain         *uint16  `json:"agc2_gain,omitempty"`
	ServiceName      *string  `json:"service_name,omitempty"`
	ProviderName     *string  `json:"service_provider_name,omitempty"`
	NullPacketPct    *float64 `json:"ts_null_percentage,omitempty"`
	ShortFrame       *bool    `json:"short_frame,omitempty"`
	Pilots           *bool    `json:"pilots,omitempty"`
	Rolloff          *uint8   `json:"rolloff,omitempty"`
	UncorrectedCount *uint64  `json:"uncorrected_ts_packets,omitempty"`
}

// Emit writes one record, honoring the minimum interval; a call arriving
// before the interval has elapsed is a silent no-op, not an error.
func (p *JSONStdoutPublisher) Emit(tuner config.TunerID, snap status.Snapshot, now time.Time) error {
	if !p.lastEmit.IsZero() && now.Sub(p.lastEmit) < p.minInterval {
		return nil
	}
	p.lastEmit = now

	rec := jsonRecord{
		Tuner:            tuner.String(),
		State:            int(snap.State),
		CarrierFrequency: snap.CarrierOffsetHz,
		SymbolRate:       snap.SymbolRateSps,
		BER:              snap.BER,
	}

	if p.verbosity >= VerbosityCompact {
		pr := snap.PunctureRate
		rec.PunctureRate = &pr
		mer := float64(snap.MERTimesTen) / 10
		rec.MER = &mer
		mc := snap.Modcod
		rec.Modcod = &mc
	}

	if p.verbosity >= VerbosityFull {
		rec.LNAGain = &snap.LNAGain
		rec.AGC1Gain = &snap.AGC1Gain
		rec.AGC2Gain = &snap.AGC2Gain
		rec.ServiceName = &snap.ServiceName
		rec.ProviderName = &snap.ProviderName
		rec.NullPacketPct = &snap.NullPacketPct
		rec.ShortFrame = &snap.ShortFrame
		rec.Pilots = &snap.Pilots
		rec.Rolloff = &snap.Rolloff
		rec.UncorrectedCount = &snap.UncorrectedTSPackets
	}

	enc := json.NewEncoder(p.w)
	if p.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(rec)
}
