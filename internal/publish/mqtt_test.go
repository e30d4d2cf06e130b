package publish

import (
	"testing"

	"nimctl/internal/config"
)

func TestSplitCommandTopic_BareImpliesTuner1(t *testing.T) {
	tuner, name, ok := splitCommandTopic("cmd/longmynd/sr")
	if !ok || tuner != config.Tuner1 || name != "sr" {
		t.Fatalf("got (%v, %q, %v), want (Tuner1, sr, true)", tuner, name, ok)
	}
}

func TestSplitCommandTopic_ExplicitTuner(t *testing.T) {
	tuner, name, ok := splitCommandTopic("cmd/longmynd/tuner2/frequency")
	if !ok || tuner != config.Tuner2 || name != "frequency" {
		t.Fatalf("got (%v, %q, %v), want (Tuner2, frequency, true)", tuner, name, ok)
	}

	tuner, name, ok = splitCommandTopic("cmd/longmynd/tuner1/polar")
	if !ok || tuner != config.Tuner1 || name != "polar" {
		t.Fatalf("got (%v, %q, %v), want (Tuner1, polar, true)", tuner, name, ok)
	}
}

func TestSplitCommandTopic_RejectsUnrelatedOrEmptyTopics(t *testing.T) {
	if _, _, ok := splitCommandTopic("dt/longmynd/state"); ok {
		t.Fatal("expected status topic to be rejected")
	}
	if _, _, ok := splitCommandTopic("cmd/longmynd/"); ok {
		t.Fatal("expected empty command name to be rejected")
	}
}

func TestDispatchCommand_SrWithinRange(t *testing.T) {
	p := &MQTTPublisher{cfg: config.New()}
	if err := p.dispatchCommand(config.Tuner1, "sr", "25000"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := p.cfg.Snapshot(config.Tuner1).ActiveSrKsps()
	if got != 25000 {
		t.Fatalf("ActiveSrKsps() = %d, want 25000", got)
	}
}

func TestDispatchCommand_SrOutOfRangeRejected(t *testing.T) {
	p := &MQTTPublisher{cfg: config.New()}
	if err := p.dispatchCommand(config.Tuner1, "sr", "1"); err == nil {
		t.Fatal("expected out-of-range symbol rate to be rejected")
	}
}

func TestDispatchCommand_FrequencyOutOfRangeRejected(t *testing.T) {
	p := &MQTTPublisher{cfg: config.New()}
	if err := p.dispatchCommand(config.Tuner1, "frequency", "99999999"); err == nil {
		t.Fatal("expected out-of-range frequency to be rejected")
	}
}

func TestDispatchCommand_PolarVariants(t *testing.T) {
	p := &MQTTPublisher{cfg: config.New()}
	if err := p.dispatchCommand(config.Tuner1, "polar", "h"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.cfg.Snapshot(config.Tuner1).Polarisation; got != config.PolarHorizontal18V {
		t.Fatalf("Polarisation = %v, want PolarHorizontal18V", got)
	}
	if err := p.dispatchCommand(config.Tuner1, "polar", "bogus"); err == nil {
		t.Fatal("expected invalid polar letter to be rejected")
	}
}

func TestDispatchCommand_Swport(t *testing.T) {
	p := &MQTTPublisher{cfg: config.New()}
	if err := p.dispatchCommand(config.Tuner2, "swport", "true"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.cfg.Snapshot(config.Tuner2).PortSwap {
		t.Fatal("expected PortSwap to be true")
	}
}

func TestDispatchCommand_Tsip(t *testing.T) {
	p := &MQTTPublisher{cfg: config.New()}
	if err := p.dispatchCommand(config.Tuner1, "tsip", "192.168.1.10:7000"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sink := p.cfg.Snapshot(config.Tuner1).TsSink
	if sink.Kind != config.SinkUDP || sink.IP != "192.168.1.10" || sink.Port != 7000 {
		t.Fatalf("TsSink = %+v, want UDP 192.168.1.10:7000", sink)
	}
}

func TestSplitIPPort_MissingColonRejected(t *testing.T) {
	if _, _, err := splitIPPort("not-an-address"); err == nil {
		t.Fatal("expected missing colon to be rejected")
	}
}

func TestSplitIPPort_NonNumericPortRejected(t *testing.T) {
	if _, _, err := splitIPPort("10.0.0.1:abc"); err == nil {
		t.Fatal("expected non-numeric port to be rejected")
	}
}
