package tspipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"nimctl/internal/config"
	"nimctl/internal/errcode"
	"nimctl/internal/gateway"
	"nimctl/internal/nimlog"
	"nimctl/internal/status"
)

const (
	// readBufLen is spec.md §4.4's "buffer size 20·512 = 10 240 bytes per
	// call".
	readBufLen    = 20 * ftdiPacketLen
	ftdiPacketLen = 512
	ftdiPrefixLen = 2

	readTimeout    = time.Second
	drainThreshold = 2 // ts_reset drains until a read returns <= this many bytes
)

// matypeGenericContinuous is MATYPE1 bits 7..6 == 01 (spec.md §4.4): a
// Generic Continuous stream, which carries raw BBFRAMEs rather than an
// MPEG-2 TS and must be routed to the defragmenter instead of the
// sync-aligning reframer.
const matypeGenericContinuous = 0x01

// Reader is the TS Pipeline's Reader task (spec.md §4.4): blocking bulk
// reads from the Bus Gateway, FTDI-prefix stripping, sink delivery
// (re-framed or BBFRAME-defragmented), a non-blocking mailbox offer to
// the Parser, and packet-count accounting. Grounded on
// services/hal/worker.go's ctx-driven loop shape, generalized from a
// timer-driven task to one blocking on I/O each iteration.
type Reader struct {
	Tuner       config.TunerID
	DualEnabled bool

	Gateway   *gateway.Bus
	Config    *config.Configuration
	StatusBus *status.Bus
	Mailbox   *Mailbox
	Sink      SinkProvider

	log *log.Logger

	reframer  *tsReframer
	defrag    *bbframeDefragmenter
}

// NewReader wires a Reader's collaborators.
func NewReader(tuner config.TunerID, gw *gateway.Bus, cfg *config.Configuration, sb *status.Bus, mb *Mailbox, sink SinkProvider) *Reader {
	return &Reader{
		Tuner:     tuner,
		Gateway:   gw,
		Config:    cfg,
		StatusBus: sb,
		Mailbox:   mb,
		Sink:      sink,
		log:       nimlog.For("tspipeline.reader." + tuner.String()),
		reframer:  newTSReframer(),
		defrag:    newBBFrameDefragmenter(),
	}
}

// Run drives the Reader loop until ctx is canceled or a fatal error
// occurs.
func (r *Reader) Run(ctx context.Context) error {
	buf := make([]byte, readBufLen)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if r.Config.ConsumeTsReset(r.Tuner) {
			if err := r.drain(ctx, buf); err != nil {
				return err
			}
			r.reframer = newTSReframer()
			r.defrag = newBBFrameDefragmenter()
		}

		n, err := r.Gateway.TSRead(ctx, r.Tuner, r.DualEnabled, buf, readTimeout)
		if err != nil {
			if errcode.FatalToTuner(err) {
				return err
			}
			r.log.Warn("bulk TS read error, retrying", "err", err)
			continue
		}
		if n == 0 {
			continue
		}

		r.handleChunk(buf[:n])
	}
}

// drain reads from the endpoint until it returns at most drainThreshold
// bytes, per spec.md §4.4's ts_reset handling.
func (r *Reader) drain(ctx context.Context, buf []byte) error {
	for {
		n, err := r.Gateway.TSRead(ctx, r.Tuner, r.DualEnabled, buf, readTimeout)
		if err != nil {
			if errcode.FatalToTuner(err) {
				return err
			}
			return nil
		}
		if n <= drainThreshold {
			return nil
		}
	}
}

// handleChunk implements spec.md §4.4's per-chunk steps: strip the FTDI
// prefix from each 512-byte packet, forward to the sink (re-framed or
// defragmented), offer to the Parser without blocking, and account the
// packet count.
func (r *Reader) handleChunk(raw []byte) {
	payload := stripFTDIPrefixes(raw)
	if len(payload) == 0 {
		return
	}

	sink := r.Sink.Current()
	if sink == nil {
		sink = noopSink{}
	}

	snap := r.StatusBus.Snapshot()
	if snap.Matype1>>6 == matypeGenericContinuous {
		// The defragmenter consumes one stripped USB packet (510 bytes) at
		// a time, as its oversize check assumes.
		var frames [][]byte
		const strippedLen = ftdiPacketLen - ftdiPrefixLen
		for off := 0; off < len(payload); off += strippedLen {
			end := off + strippedLen
			if end > len(payload) {
				end = len(payload)
			}
			frames = r.defrag.feed(payload[off:end], frames)
		}
		for _, f := range frames {
			if err := sink.Write(f); err != nil {
				r.log.Warn("sink write failed", "err", err)
			}
		}
	} else {
		frames := r.reframer.feed(payload, nil)
		for _, f := range frames {
			if err := sink.Write(f); err != nil {
				r.log.Warn("sink write failed", "err", err)
			}
		}
	}

	r.Mailbox.Offer(payload)

	r.StatusBus.MarkTSActivity(time.Now())
	r.StatusBus.AddTSPackets(uint64(len(payload) / tsPacketLen))
}

// stripFTDIPrefixes removes the 2-byte FTDI modem-status header from
// each 512-byte USB packet in raw (spec.md §4.4). The final partial
// packet, if any, contributes whatever payload bytes follow its own
// 2-byte prefix.
func stripFTDIPrefixes(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for off := 0; off < len(raw); off += ftdiPacketLen {
		end := off + ftdiPacketLen
		if end > len(raw) {
			end = len(raw)
		}
		chunk := raw[off:end]
		if len(chunk) <= ftdiPrefixLen {
			continue
		}
		out = append(out, chunk[ftdiPrefixLen:]...)
	}
	return out
}
