// Package status implements the Status Snapshot Bus (spec.md §4.5): a
// per-tuner record mutated under a lock by the producers (Acquisition
// Engine, TS Pipeline) and read by publishers that wait on a condition
// variable for the next update, in the style of the madpsy-ka9q_ubersdr
// client's send/done condvar pairs (sync.Mutex + sync.Cond, Broadcast on
// every state change, waiters loop on a version counter rather than a
// boolean to tolerate spurious wakeups).
package status

import (
	"sync"
	"sync/atomic"
	"time"

	"nimctl/internal/stv0910"
)

// ElementaryStream is one entry of spec.md §3's up-to-16 PID table.
type ElementaryStream struct {
	PID  uint16
	Type uint8
}

// Snapshot is spec.md §3's per-tuner Status record.
type Snapshot struct {
	State      stv0910.HuntState
	DemodState uint8 // raw 2-bit silicon code, pre-validation

	LNAGain  uint16
	AGC1Gain uint16
	AGC2Gain uint16
	PowerI   uint8
	PowerQ   uint8

	ConstellationI [16]int8
	ConstellationQ [16]int8

	PunctureRate     uint8
	CarrierOffsetHz  int32
	SymbolRateSps    uint32
	ViterbiErrorRate uint32
	BER              uint32
	MERTimesTen      int32

	BCHUncorrected bool
	BCHCount       uint32
	LDPCCount      uint32

	Modcod      uint8 // 0..31
	ShortFrame  bool
	Pilots      bool
	Rolloff     uint8 // 0..3
	Matype1     uint8
	Matype2     uint8

	ServiceName  string
	ProviderName string
	Streams      []ElementaryStream
	NullPacketPct float64

	LastUpdatedMonotonic    time.Time
	LastTSActivityMonotonic time.Time
	UncorrectedTSPackets    uint64
}

// Bus is one tuner's thread-safe Status record (spec.md §3/§4.5). The
// zero value is not usable; construct with New.
type Bus struct {
	mu      sync.Mutex
	cond    *sync.Cond
	current Snapshot
	version uint64

	// tsPacketCount is the TS Pipeline Reader's raw packet tally
	// (spec.md's status.ts_packet_count_nolock): the Reader increments it
	// on its own hot path, once per 188-byte packet it ships, without
	// taking mu — only a publisher's periodic read needs to observe it,
	// so a dedicated atomic avoids serializing the Reader against every
	// Acquisition Engine commit.
	tsPacketCount uint64
}

func New() *Bus {
	b := &Bus{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Commit installs draft as the new snapshot, bumps
// last_updated_monotonic, and wakes every waiter (spec.md §4.3 step 5:
// "Commit the draft into shared Status under its mutex, bump
// last_updated_monotonic, signal condvar").
func (b *Bus) Commit(draft Snapshot, now time.Time) {
	draft.LastUpdatedMonotonic = now
	b.mu.Lock()
	// The acquisition task's draft never touches the fields the TS
	// Pipeline owns (spec.md §4.4's on_sdt_service/on_pmt_entry/
	// on_ts_stats callbacks, and last_ts_activity); preserve them across
	// a telemetry commit rather than zeroing them out.
	draft.ServiceName = b.current.ServiceName
	draft.ProviderName = b.current.ProviderName
	draft.Streams = b.current.Streams
	draft.NullPacketPct = b.current.NullPacketPct
	draft.LastTSActivityMonotonic = b.current.LastTSActivityMonotonic
	draft.UncorrectedTSPackets = b.current.UncorrectedTSPackets
	b.current = draft
	b.version++
	b.mu.Unlock()
	b.cond.Broadcast()
}

// MarkTSActivity updates only the TS-activity timestamp, used by the TS
// reader task without disturbing the rest of the draft a concurrent
// acquisition-task commit might be assembling (spec.md §4.4's reader
// runs independently of the acquisition task's 500 ms cadence).
func (b *Bus) MarkTSActivity(now time.Time) {
	b.mu.Lock()
	b.current.LastTSActivityMonotonic = now
	b.version++
	b.mu.Unlock()
	b.cond.Broadcast()
}

// IncrementUncorrectedTSPackets bumps the uncorrected-TS-packet counter,
// as the TS parser discovers continuity-counter gaps.
func (b *Bus) IncrementUncorrectedTSPackets(by uint64) {
	b.mu.Lock()
	b.current.UncorrectedTSPackets += by
	b.mu.Unlock()
}

// SetSDTService implements spec.md §4.4's on_sdt_service callback,
// filling both strings under the lock.
func (b *Bus) SetSDTService(provider, service string) {
	b.mu.Lock()
	b.current.ProviderName = provider
	b.current.ServiceName = service
	b.version++
	b.mu.Unlock()
	b.cond.Broadcast()
}

// SetPMTEntry implements spec.md §4.4's on_pmt_entry callback, filling
// the (pid, type) pair at index, growing Streams as needed up to the
// 16-entry table spec.md §3 describes.
func (b *Bus) SetPMTEntry(index int, pid uint16, streamType uint8) {
	if index < 0 || index >= 16 {
		return
	}
	b.mu.Lock()
	for len(b.current.Streams) <= index {
		b.current.Streams = append(b.current.Streams, ElementaryStream{})
	}
	b.current.Streams[index] = ElementaryStream{PID: pid, Type: streamType}
	b.version++
	b.mu.Unlock()
	b.cond.Broadcast()
}

// SetTSStats implements spec.md §4.4's on_ts_stats callback: updates the
// null-packet percentage when totalPackets is nonzero.
func (b *Bus) SetTSStats(totalPackets uint64, nullPercent float64) {
	if totalPackets == 0 {
		return
	}
	b.mu.Lock()
	b.current.NullPacketPct = nullPercent
	b.version++
	b.mu.Unlock()
	b.cond.Broadcast()
}

// AddTSPackets bumps the lock-free TS-packet counter by n. Safe to call
// concurrently with every other Bus method and with itself; it never
// takes mu.
func (b *Bus) AddTSPackets(n uint64) {
	atomic.AddUint64(&b.tsPacketCount, n)
}

// TSPacketCount reads the lock-free TS-packet counter.
func (b *Bus) TSPacketCount() uint64 {
	return atomic.LoadUint64(&b.tsPacketCount)
}

// Snapshot returns a copy of the current status under the lock.
func (b *Bus) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// WaitForUpdate blocks until a Commit/MarkTSActivity has happened after
// the version the caller last observed, returning the new snapshot and
// version. Publishers call this in a loop instead of polling.
func (b *Bus) WaitForUpdate(lastVersion uint64) (Snapshot, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.version == lastVersion {
		b.cond.Wait()
	}
	return b.current, b.version
}
