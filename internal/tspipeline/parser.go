package tspipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"nimctl/internal/config"
	"nimctl/internal/nimlog"
	"nimctl/internal/status"
)

const (
	mailboxWaitTimeout = 100 * time.Millisecond

	patPID  uint16 = 0x0000
	sdtPID  uint16 = 0x0011
	nullPID uint16 = 0x1fff
)

// Parser is the TS Pipeline's Parser task (spec.md §4.4): waits on the
// Reader's mailbox with a 100 ms deadline and drives a minimal PSI/SI
// demuxer over the PAT/PMT/SDT tables, feeding the three callbacks into
// the Status Snapshot Bus. No third-party MPEG-TS/PSI library appears
// anywhere in the retrieval pack this was grounded on (see DESIGN.md),
// so this demuxer is hand-rolled against ETSI EN 300 468/ISO 13818-1's
// section layout rather than adapted from an example.
type Parser struct {
	Tuner     config.TunerID
	Mailbox   *Mailbox
	StatusBus *status.Bus

	log *log.Logger

	pat sectionAssembler
	sdt sectionAssembler
	pmt sectionAssembler

	pmtPID       uint16 // 0 = not yet known
	lastCC       map[uint16]uint8
	totalPackets uint64
	nullPackets  uint64
}

// NewParser wires a Parser's collaborators.
func NewParser(tuner config.TunerID, mb *Mailbox, sb *status.Bus) *Parser {
	return &Parser{
		Tuner:     tuner,
		Mailbox:   mb,
		StatusBus: sb,
		log:       nimlog.For("tspipeline.parser." + tuner.String()),
		lastCC:    map[uint16]uint8{},
	}
}

// Run drives the Parser loop until ctx is canceled.
func (p *Parser) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		chunk, ok := p.Mailbox.Wait(mailboxWaitTimeout)
		if !ok {
			continue
		}
		p.parseChunk(chunk)
	}
}

// parseChunk walks 188-byte TS packets inside buf, re-synchronizing on
// 0x47 if the chunk (a raw Reader payload, not yet sync-aligned) doesn't
// start on a packet boundary.
func (p *Parser) parseChunk(buf []byte) {
	i := 0
	for i < len(buf) && buf[i] != 0x47 {
		i++
	}
	for i+tsPacketLen <= len(buf) {
		pkt := buf[i : i+tsPacketLen]
		if pkt[0] != 0x47 {
			i++
			continue
		}
		p.handlePacket(pkt)
		i += tsPacketLen
	}
	p.StatusBus.SetTSStats(p.totalPackets, p.nullPercent())
}

func (p *Parser) nullPercent() float64 {
	if p.totalPackets == 0 {
		return 0
	}
	return float64(p.nullPackets) * 100 / float64(p.totalPackets)
}

func (p *Parser) handlePacket(pkt []byte) {
	p.totalPackets++

	pid := (uint16(pkt[1]&0x1f) << 8) | uint16(pkt[2])
	if pid == nullPID {
		p.nullPackets++
		return
	}

	payloadStart := pkt[1]&0x40 != 0
	adaptCtl := (pkt[3] >> 4) & 0x3
	cc := pkt[3] & 0xf

	if adaptCtl == 1 || adaptCtl == 3 {
		if prev, ok := p.lastCC[pid]; ok && cc != (prev+1)&0xf {
			p.StatusBus.IncrementUncorrectedTSPackets(1)
		}
		p.lastCC[pid] = cc
	}

	payload := adaptationStrippedPayload(pkt, adaptCtl)
	if payload == nil {
		return
	}

	switch {
	case pid == patPID:
		if sec := p.pat.feed(payload, payloadStart); sec != nil {
			p.handlePAT(sec)
		}
	case pid == sdtPID:
		if sec := p.sdt.feed(payload, payloadStart); sec != nil {
			p.handleSDT(sec)
		}
	case p.pmtPID != 0 && pid == p.pmtPID:
		if sec := p.pmt.feed(payload, payloadStart); sec != nil {
			p.handlePMT(sec)
		}
	}
}

// adaptationStrippedPayload returns the 184-byte-or-fewer payload region
// of a TS packet, honoring the adaptation_field_control bits (ISO
// 13818-1 §2.4.3.2), or nil when the packet carries no payload.
func adaptationStrippedPayload(pkt []byte, adaptCtl byte) []byte {
	switch adaptCtl {
	case 1:
		return pkt[4:]
	case 3:
		if len(pkt) < 5 {
			return nil
		}
		afLen := int(pkt[4])
		start := 5 + afLen
		if start >= len(pkt) {
			return nil
		}
		return pkt[start:]
	default:
		return nil
	}
}

// sectionAssembler reassembles one PSI/SI section across however many TS
// packets it spans, starting from a payload_unit_start_indicator packet
// whose first byte is the pointer_field (ISO 13818-1 §2.4.4.1).
type sectionAssembler struct {
	buf []byte
}

// feed appends payload to the in-progress section and returns the
// completed section once section_length's worth of bytes have arrived,
// or nil while still accumulating. Only the first section beginning at
// the pointer_field is tracked; any bytes after it in the same packet
// are dropped, a simplification adequate for the single-section PAT/PMT/
// SDT tables this demuxer targets.
func (a *sectionAssembler) feed(payload []byte, start bool) []byte {
	if start {
		if len(payload) == 0 {
			return nil
		}
		ptr := int(payload[0])
		if 1+ptr > len(payload) {
			a.buf = nil
			return nil
		}
		a.buf = append([]byte{}, payload[1+ptr:]...)
	} else if a.buf != nil {
		a.buf = append(a.buf, payload...)
	} else {
		return nil
	}

	if len(a.buf) < 3 {
		return nil
	}
	secLen := int(a.buf[1]&0x0f)<<8 | int(a.buf[2])
	total := secLen + 3
	if len(a.buf) < total {
		return nil
	}
	section := a.buf[:total]
	a.buf = nil
	return section
}

// handlePAT extracts the first non-NIT program's map PID (spec.md §4.4
// needs only the PMT's stream table, so only the first program is
// tracked, matching the single-program-per-tuner model of a satellite
// receiver locked to one transponder's chosen service).
func (p *Parser) handlePAT(sec []byte) {
	const headerLen = 8
	const crcLen = 4
	if len(sec) < headerLen+crcLen {
		return
	}
	body := sec[headerLen : len(sec)-crcLen]
	for i := 0; i+4 <= len(body); i += 4 {
		programNumber := uint16(body[i])<<8 | uint16(body[i+1])
		pid := (uint16(body[i+2]&0x1f) << 8) | uint16(body[i+3])
		if programNumber != 0 {
			p.pmtPID = pid
			return
		}
	}
}

// handlePMT fills the Status stream table via on_pmt_entry (spec.md
// §4.4), up to the 16-entry cap of spec.md §3.
func (p *Parser) handlePMT(sec []byte) {
	const headerLen = 12
	const crcLen = 4
	if len(sec) < headerLen+crcLen {
		return
	}
	programInfoLen := int(sec[10]&0x0f)<<8 | int(sec[11])
	pos := headerLen + programInfoLen
	end := len(sec) - crcLen

	index := 0
	for pos+5 <= end && index < 16 {
		streamType := sec[pos]
		pid := (uint16(sec[pos+1]&0x1f) << 8) | uint16(sec[pos+2])
		esInfoLen := int(sec[pos+3]&0x0f)<<8 | int(sec[pos+4])
		p.StatusBus.SetPMTEntry(index, pid, streamType)
		index++
		pos += 5 + esInfoLen
	}
}

// handleSDT extracts the first service's provider/service names via
// on_sdt_service (spec.md §4.4), from the DVB service descriptor (ETSI
// EN 300 468 §6.2.33, tag 0x48).
func (p *Parser) handleSDT(sec []byte) {
	const headerLen = 11
	const crcLen = 4
	if len(sec) < headerLen+crcLen {
		return
	}
	body := sec[headerLen : len(sec)-crcLen]

	for i := 0; i+5 <= len(body); {
		descriptorsLoopLen := int(body[i+3]&0x0f)<<8 | int(body[i+4])
		descStart := i + 5
		descEnd := descStart + descriptorsLoopLen
		if descEnd > len(body) {
			return
		}
		if provider, service, ok := parseServiceDescriptor(body[descStart:descEnd]); ok {
			p.StatusBus.SetSDTService(provider, service)
			return
		}
		i = descEnd
	}
}

// parseServiceDescriptor scans a descriptor loop for tag 0x48 and
// extracts its provider_name/service_name fields.
func parseServiceDescriptor(descs []byte) (provider, service string, ok bool) {
	for i := 0; i+2 <= len(descs); {
		tag := descs[i]
		length := int(descs[i+1])
		start := i + 2
		end := start + length
		if end > len(descs) {
			return "", "", false
		}
		if tag == 0x48 {
			d := descs[start:end]
			if len(d) < 2 {
				return "", "", false
			}
			provLen := int(d[1])
			if 2+provLen > len(d) {
				return "", "", false
			}
			provider = string(d[2 : 2+provLen])
			rest := d[2+provLen:]
			if len(rest) < 1 {
				return provider, "", true
			}
			svcLen := int(rest[0])
			if 1+svcLen > len(rest) {
				return provider, "", true
			}
			service = string(rest[1 : 1+svcLen])
			return provider, service, true
		}
		i = end
	}
	return "", "", false
}
