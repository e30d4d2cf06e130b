// Package publish implements the four Publisher adapters of spec.md
// §4.6: UDP/FIFO status line emitters, an MQTT publisher with a command
// subscription, and a JSON stdout emitter. All four share the same
// stable status-code table and derived-field computations (modulation/
// fec/margin_db/rolloff/MATYPE-string), recovered verbatim from
// original_source/main.h and original_source/mymqtt.c since spec.md §6
// treats the wire codes as a stable contract existing consumers depend
// on.
package publish

import (
	"fmt"

	"nimctl/internal/config"
	"nimctl/internal/status"
	"nimctl/internal/stv0910"
)

// Status wire codes, recovered verbatim from original_source/main.h's
// STATUS_* enum (spec.md §4.6's "stable small integer").
const (
	codeState             = 1
	codeLNAGain            = 2 // STVVGLNA's own gain<<5|vgo telemetry, distinct from the demod's codeAGC1Gain/codeAGC2Gain
	codePunctureRate       = 3
	codePowerI             = 4
	codePowerQ             = 5
	codeCarrierFrequency   = 6
	codeConstellationI     = 7
	codeConstellationQ     = 8
	codeSymbolRate         = 9
	codeViterbiErrorRate   = 10
	codeBER                = 11
	codeMER                = 12
	codeServiceName        = 13
	codeServiceProviderName = 14
	codeTSNullPercentage   = 15
	codeESPID              = 16
	codeESType             = 17
	codeModcod             = 18
	codeShortFrame         = 19
	codePilots             = 20
	codeErrorsLDPCCount    = 21
	codeErrorsBCHCount     = 22
	codeBCHUncorrected     = 23
	codeLNBSupply          = 24
	codeLNBPolarisationH   = 25
	codeAGC1Gain           = 26
	codeAGC2Gain           = 27
	codeMatype1            = 28
	codeMatype2            = 29
	codeRolloff            = 30
	codeTSPacketCount      = 31
	codeTSLock             = 32
	codeTSBitrate          = 33
)

// Field is one wire-level status datum: a stable code, a human name for
// the MQTT/JSON surfaces, and a pre-rendered decimal/string value.
type Field struct {
	Code  int
	Name  string
	Value string
}

// modcodFEC is TabFec from original_source/mymqtt.c, indexed by MODCOD
// (0..28).
var modcodFEC = [...]string{
	"none", "1/4", "1/3", "2/5", "1/2", "3/5", "2/3", "3/4", "4/5", "5/6",
	"8/9", "9/10", "3/5", "2/3", "3/4", "5/6", "8/9", "9/10", "2/3", "3/4",
	"4/5", "5/6", "8/9", "9/10", "3/4", "4/5", "5/6", "8/9", "9/10",
}

// theoreticalMER is TheoricMER from original_source/mymqtt.c, tenths of
// a dB indexed by MODCOD, used for the margin_db derived topic.
var theoreticalMER = [...]int{
	0, -24, -12, 0, 10, 22, 32, 40, 46, 52, 62, 65, 55, 66, 79, 94, 106,
	110, 90, 102, 110, 116, 129, 131, 126, 136, 143, 157, 161,
}

// rolloffValue maps the 2-bit rolloff code to its fractional value
// (original_source/mymqtt.c's STATUS_ROLLOFF branch).
func rolloffValue(code uint8) string {
	switch code {
	case 0:
		return "0.35"
	case 1:
		return "0.25"
	case 2:
		return "0.20"
	default:
		return "0.15"
	}
}

// modulation returns the constellation name for a MODCOD, the same
// bucket boundaries as original_source/mymqtt.c's STATUS_MODCOD branch.
func modulation(modcod uint8) string {
	switch {
	case modcod == 0:
		return "none"
	case modcod <= 11:
		return "QPSK"
	case modcod <= 17:
		return "8PSK"
	case modcod <= 23:
		return "16APSK"
	default:
		return "32APSK"
	}
}

// fec returns the FEC code rate string for a MODCOD, or "" if out of
// the table's range.
func fec(modcod uint8) string {
	if int(modcod) >= len(modcodFEC) {
		return ""
	}
	return modcodFEC[modcod]
}

// marginDB computes the margin_db derived topic: (MER - theoretical MER
// for this MODCOD) in tenths of a dB, divided down to whole dB exactly
// as original_source/mymqtt.c's integer division does (Margin/10, not
// rounded).
func marginDB(merTimesTen int32, modcod uint8) int32 {
	if modcod == 0 || int(modcod) >= len(theoreticalMER) {
		return 0
	}
	return (merTimesTen - int32(theoreticalMER[modcod])) / 10
}

// matypeStreamType maps MATYPE1 bits 7..6 to the MQTT stream-type
// string. Preserved exactly as observed in original_source/mymqtt.c:
// codes 0 and 2 both map to "Generic packetized" (Open Question #2;
// not corrected, per the instruction against silently guessing).
func matypeStreamType(matype1 uint8) string {
	switch (matype1 & 0xc0) >> 6 {
	case 0:
		return "Generic packetized"
	case 1:
		return "Generic continuous"
	case 2:
		return "Generic packetized"
	default:
		return "Transport"
	}
}

// fields renders the status-code table for one tuner's snapshot. MER,
// MODCOD and rolloff (rendered as its fractional value) are added only
// in the DemodS/DemodS2 lock states, short_frame and pilots only in
// DemodS2. The other derived values (modulation, fec, margin_db, MATYPE
// stream type) are not part of this table: MQTTPublisher.Publish
// computes them from the mer/modcod/matype1 fields.
func fields(snap status.Snapshot) []Field {
	f := []Field{
		{codeState, "state", fmt.Sprintf("%d", snap.State)},
		{codeLNAGain, "lna_gain", fmt.Sprintf("%d", snap.LNAGain)},
		{codePunctureRate, "puncture_rate", fmt.Sprintf("%d", snap.PunctureRate)},
		{codePowerI, "power_i", fmt.Sprintf("%d", snap.PowerI)},
		{codePowerQ, "power_q", fmt.Sprintf("%d", snap.PowerQ)},
		{codeCarrierFrequency, "carrier_frequency", fmt.Sprintf("%d", snap.CarrierOffsetHz)},
		{codeSymbolRate, "symbol_rate", fmt.Sprintf("%d", snap.SymbolRateSps)},
		{codeViterbiErrorRate, "viterbi_error_rate", fmt.Sprintf("%d", snap.ViterbiErrorRate)},
		{codeBER, "ber", fmt.Sprintf("%d", snap.BER)},
		{codeErrorsLDPCCount, "errors_ldpc_count", fmt.Sprintf("%d", snap.LDPCCount)},
		{codeErrorsBCHCount, "errors_bch_count", fmt.Sprintf("%d", snap.BCHCount)},
		{codeBCHUncorrected, "bch_uncorrected", boolStr(snap.BCHUncorrected)},
		{codeAGC1Gain, "agc1_gain", fmt.Sprintf("%d", snap.AGC1Gain)},
		{codeAGC2Gain, "agc2_gain", fmt.Sprintf("%d", snap.AGC2Gain)},
		{codeMatype1, "matype1", fmt.Sprintf("%#x", snap.Matype1)},
		{codeMatype2, "matype2", fmt.Sprintf("%#x", snap.Matype2)},
		{codeTSNullPercentage, "ts_null_percentage", fmt.Sprintf("%.2f", snap.NullPacketPct)},
		{codeServiceName, "service_name", snap.ServiceName},
		{codeServiceProviderName, "service_provider_name", snap.ProviderName},
		{codeTSPacketCount, "ts_packet_count", fmt.Sprintf("%d", snap.UncorrectedTSPackets)},
	}
	for i := 0; i < len(snap.ConstellationI); i++ {
		f = append(f,
			Field{codeConstellationI, "constellation_i", fmt.Sprintf("%d", snap.ConstellationI[i])},
			Field{codeConstellationQ, "constellation_q", fmt.Sprintf("%d", snap.ConstellationQ[i])},
		)
	}
	for _, es := range snap.Streams {
		f = append(f,
			Field{codeESPID, "es_pid", fmt.Sprintf("%d", es.PID)},
			Field{codeESType, "es_type", fmt.Sprintf("%d", es.Type)},
		)
	}

	if snap.State == stv0910.DemodS || snap.State == stv0910.DemodS2 {
		f = append(f,
			Field{codeMER, "mer", fmt.Sprintf("%.1f", float64(snap.MERTimesTen)/10)},
			Field{codeModcod, "modcod", fmt.Sprintf("%d", snap.Modcod)},
			Field{codeRolloff, "rolloff", rolloffValue(snap.Rolloff)},
		)
		if snap.State == stv0910.DemodS2 {
			f = append(f,
				Field{codeShortFrame, "short_frame", boolStr(snap.ShortFrame)},
				Field{codePilots, "pilots", boolStr(snap.Pilots)},
			)
		}
	}

	return f
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// topicPrefix returns "dt" for Tuner1, "dt2" for Tuner2 (spec.md §4.6).
func topicPrefix(tuner config.TunerID) string {
	if tuner == config.Tuner2 {
		return "dt2"
	}
	return "dt"
}

// cmdTopics returns the command topics an MQTT publisher subscribes to
// for tuner, per spec.md §4.6.
func cmdTopics() []string {
	return []string{"cmd/longmynd/#", "cmd/longmynd/tuner1/#", "cmd/longmynd/tuner2/#"}
}
