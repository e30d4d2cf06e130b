package tspipeline

import "testing"

func syncedTSStream(packets int) []byte {
	buf := make([]byte, packets*tsPacketLen)
	for i := 0; i < packets; i++ {
		pkt := buf[i*tsPacketLen : (i+1)*tsPacketLen]
		pkt[0] = 0x47
		pkt[1] = byte(i >> 8)
		pkt[2] = byte(i)
	}
	return buf
}

func TestTSReframer_EmitsNothingBelowOneQuantum(t *testing.T) {
	r := newTSReframer()
	out := r.feed(syncedTSStream(3), nil) // 3*188 = 564 < 1316
	if len(out) != 0 {
		t.Fatalf("got %d frames, want 0", len(out))
	}
}

func TestTSReframer_EmitsExactlyOneQuantum(t *testing.T) {
	r := newTSReframer()
	out := r.feed(syncedTSStream(7), nil) // exactly 1316 bytes
	if len(out) != 1 || len(out[0]) != sendQuantum {
		t.Fatalf("got %d frames (first len %d), want one %d-byte frame", len(out), lenOrZero(out), sendQuantum)
	}
}

func TestTSReframer_LeadingGarbageIsSkippedUntilSync(t *testing.T) {
	r := newTSReframer()
	garbage := []byte{0x00, 0x01, 0x02, 0x03, 0x04}
	stream := append(garbage, syncedTSStream(7)...)

	out := r.feed(stream, nil)
	if len(out) != 1 {
		t.Fatalf("got %d frames, want 1 once synced", len(out))
	}
	if out[0][0] != 0x47 {
		t.Fatalf("emitted frame does not start on a sync byte: %#x", out[0][0])
	}
}

func TestTSReframer_AccumulatesAcrossFeeds(t *testing.T) {
	r := newTSReframer()
	stream := syncedTSStream(14) // two quanta

	var out [][]byte
	out = r.feed(stream[:1000], out)
	out = r.feed(stream[1000:], out)

	if len(out) != 2 {
		t.Fatalf("got %d frames across two feeds, want 2", len(out))
	}
}

func lenOrZero(bs [][]byte) int {
	if len(bs) == 0 {
		return 0
	}
	return len(bs[0])
}
