package publish

import (
	"testing"

	"nimctl/internal/config"
	"nimctl/internal/status"
	"nimctl/internal/stv0910"
)

func TestRolloffValue_AllFourCodes(t *testing.T) {
	cases := map[uint8]string{0: "0.35", 1: "0.25", 2: "0.20", 3: "0.15"}
	for code, want := range cases {
		if got := rolloffValue(code); got != want {
			t.Errorf("rolloffValue(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestModulation_Buckets(t *testing.T) {
	cases := []struct {
		modcod uint8
		want   string
	}{
		{0, "none"},
		{5, "QPSK"},
		{11, "QPSK"},
		{12, "8PSK"},
		{17, "8PSK"},
		{18, "16APSK"},
		{23, "16APSK"},
		{24, "32APSK"},
		{28, "32APSK"},
	}
	for _, c := range cases {
		if got := modulation(c.modcod); got != c.want {
			t.Errorf("modulation(%d) = %q, want %q", c.modcod, got, c.want)
		}
	}
}

func TestFec_TableLookup(t *testing.T) {
	if got := fec(4); got != "1/2" {
		t.Errorf("fec(4) = %q, want 1/2", got)
	}
	if got := fec(28); got != "9/10" {
		t.Errorf("fec(28) = %q, want 9/10", got)
	}
}

func TestMarginDB_ZeroModcodYieldsZero(t *testing.T) {
	if got := marginDB(500, 0); got != 0 {
		t.Errorf("marginDB with modcod 0 = %d, want 0", got)
	}
}

func TestMarginDB_MatchesOriginalFormula(t *testing.T) {
	// modcod 4's theoretical MER is 10 (tenths of dB); a measured MER of
	// 320 (32.0 dB) gives (320-10)/10 = 31.
	got := marginDB(320, 4)
	if got != 31 {
		t.Errorf("marginDB(320, 4) = %d, want 31", got)
	}
}

func TestMatypeStreamType_Codes0And2BothGenericPacketized(t *testing.T) {
	if got := matypeStreamType(0x00); got != "Generic packetized" {
		t.Errorf("matype1=0x00 -> %q, want Generic packetized", got)
	}
	if got := matypeStreamType(0x80); got != "Generic packetized" {
		t.Errorf("matype1=0x80 (code 2) -> %q, want Generic packetized", got)
	}
	if got := matypeStreamType(0x40); got != "Generic continuous" {
		t.Errorf("matype1=0x40 (code 1) -> %q, want Generic continuous", got)
	}
	if got := matypeStreamType(0xc0); got != "Transport" {
		t.Errorf("matype1=0xc0 (code 3) -> %q, want Transport", got)
	}
}

func TestFields_MERAndModcodOnlyWhenLocked(t *testing.T) {
	hunting := status.Snapshot{State: stv0910.Hunting}
	fs := fields(hunting)
	for _, f := range fs {
		if f.Name == "mer" || f.Name == "modcod" {
			t.Fatalf("unexpected %s field while Hunting", f.Name)
		}
	}

	locked := status.Snapshot{State: stv0910.DemodS, Modcod: 7, MERTimesTen: 123}
	fs = fields(locked)
	var sawMER, sawModcod bool
	for _, f := range fs {
		if f.Name == "mer" {
			sawMER = true
		}
		if f.Name == "modcod" {
			sawModcod = true
		}
	}
	if !sawMER || !sawModcod {
		t.Fatal("expected mer and modcod fields once locked in DemodS")
	}
}

func TestFields_ShortFrameAndPilotsOnlyInDemodS2(t *testing.T) {
	s1 := status.Snapshot{State: stv0910.DemodS}
	for _, f := range fields(s1) {
		if f.Name == "short_frame" || f.Name == "pilots" {
			t.Fatalf("unexpected %s field in DemodS (only valid in DemodS2)", f.Name)
		}
	}

	s2 := status.Snapshot{State: stv0910.DemodS2}
	var sawShortFrame bool
	for _, f := range fields(s2) {
		if f.Name == "short_frame" {
			sawShortFrame = true
		}
	}
	if !sawShortFrame {
		t.Fatal("expected short_frame field in DemodS2")
	}
}

func TestTopicPrefix_Tuner1VsTuner2(t *testing.T) {
	if got := topicPrefix(config.Tuner1); got != "dt" {
		t.Errorf("topicPrefix(Tuner1) = %q, want dt", got)
	}
	if got := topicPrefix(config.Tuner2); got != "dt2" {
		t.Errorf("topicPrefix(Tuner2) = %q, want dt2", got)
	}
}
