package publish

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"nimctl/internal/config"
	"nimctl/internal/status"
)

func TestJSONStdoutPublisher_MinimalOmitsOptionalFields(t *testing.T) {
	var buf bytes.Buffer
	p := NewJSONStdoutPublisher(&buf, VerbosityMinimal, false, time.Millisecond)

	snap := status.Snapshot{SymbolRateSps: 22000, BER: 3}
	if err := p.Emit(config.Tuner1, snap, time.Unix(0, 0)); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"mer", "modcod", "agc1_gain", "service_name"} {
		if _, present := rec[key]; present {
			t.Errorf("minimal verbosity unexpectedly included %q", key)
		}
	}
	if rec["tuner"] != "tuner1" {
		t.Errorf("tuner = %v, want tuner1", rec["tuner"])
	}
}

func TestJSONStdoutPublisher_FullIncludesDerivedFields(t *testing.T) {
	var buf bytes.Buffer
	p := NewJSONStdoutPublisher(&buf, VerbosityFull, false, time.Millisecond)

	snap := status.Snapshot{ServiceName: "BBC One", ProviderName: "BBC"}
	if err := p.Emit(config.Tuner1, snap, time.Unix(0, 0)); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rec["service_name"] != "BBC One" {
		t.Errorf("service_name = %v, want BBC One", rec["service_name"])
	}
	if _, present := rec["short_frame"]; !present {
		t.Error("full verbosity should include short_frame")
	}
}

func TestJSONStdoutPublisher_MinIntervalSuppressesRapidEmit(t *testing.T) {
	var buf bytes.Buffer
	p := NewJSONStdoutPublisher(&buf, VerbosityMinimal, false, time.Second)

	t0 := time.Unix(100, 0)
	if err := p.Emit(config.Tuner1, status.Snapshot{}, t0); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	firstLen := buf.Len()

	if err := p.Emit(config.Tuner1, status.Snapshot{}, t0.Add(100*time.Millisecond)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if buf.Len() != firstLen {
		t.Fatal("expected second Emit within min interval to be a no-op")
	}

	if err := p.Emit(config.Tuner1, status.Snapshot{}, t0.Add(2*time.Second)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if buf.Len() == firstLen {
		t.Fatal("expected third Emit after min interval to write a new record")
	}
}

func TestJSONStdoutPublisher_PrettyPrintsIndented(t *testing.T) {
	var buf bytes.Buffer
	p := NewJSONStdoutPublisher(&buf, VerbosityMinimal, true, time.Millisecond)
	if err := p.Emit(config.Tuner1, status.Snapshot{}, time.Unix(0, 0)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("\n  \"")) {
		t.Fatal("expected pretty-printed output to contain indented lines")
	}
}
