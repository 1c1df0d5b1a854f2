package tsdemux

import "fmt"

const tsPacketSize = 188

// tsHeader is the fixed 4-byte transport stream packet header.
type tsHeader struct {
	pid               int
	payloadUnitStart  bool
	continuityCounter int
	adaptationControl int // 0=reserved, 1=payload only, 2=adaptation only, 3=both
}

func parseTsHeader(packet []byte) (tsHeader, bool) {
	if len(packet) < 4 || packet[0] != 0x47 {
		return tsHeader{}, false
	}
	return tsHeader{
		pid:               (int(packet[1]&0x1F) << 8) | int(packet[2]),
		payloadUnitStart:  packet[1]&0x40 != 0,
		continuityCounter: int(packet[3] & 0x0F),
		adaptationControl: int(packet[3]>>4) & 0x3,
	}, true
}

// payload returns the TS packet's payload bytes after the 4-byte header and
// any adaptation field.
func tsPayload(packet []byte, hdr tsHeader) []byte {
	offset := 4
	if hdr.adaptationControl == 2 {
		return nil // adaptation field only, no payload
	}
	if hdr.adaptationControl == 3 {
		if offset >= len(packet) {
			return nil
		}
		adaptationLength := int(packet[offset])
		offset += 1 + adaptationLength
	}
	if offset > len(packet) {
		return nil
	}
	return packet[offset:]
}

// bundleEntry pairs a parser with its PID and codec type for reuse
// comparisons during updateFrom.
type bundleEntry struct {
	pid    int
	codec  CodecType
	parser *StreamParser
}

// RingSizes overrides the per-content-class ring buffer capacity a bundle
// hands each StreamParser it creates. A zero field falls back to
// defaultRingCapacity's hardcoded size for that class.
type RingSizes struct {
	Audio int // bytes; applies to audio/subtitle/teletext parsers
	Video int // bytes; applies to video parsers
}

// DemuxerBundle is an ordered collection of per-PID StreamParsers. It
// routes incoming TS packets to the right parser, tracks overall readiness,
// and reorders its streams by the client's language/audio-type preference.
type DemuxerBundle struct {
	listener  Listener
	ringSizes RingSizes
	entries   []*bundleEntry
	byPID     map[int]*bundleEntry
}

// NewDemuxerBundle returns an empty bundle that will deliver assembled
// StreamPackets to listener, sizing each parser's ring buffer per ringSizes
// (zero fields fall back to defaultRingCapacity's hardcoded defaults).
func NewDemuxerBundle(listener Listener, ringSizes RingSizes) *DemuxerBundle {
	return &DemuxerBundle{
		listener:  listener,
		ringSizes: ringSizes,
		byPID:     make(map[int]*bundleEntry),
	}
}

// findDemuxer returns the parser for a PID, or nil.
func (b *DemuxerBundle) findDemuxer(pid int) *StreamParser {
	if e, ok := b.byPID[pid]; ok {
		return e.parser
	}
	return nil
}

// ProcessTsPacket validates and routes one 188-byte TS packet. It returns
// false when the packet's sync byte is invalid or its PID is not part of
// this bundle's program (the caller should simply discard such packets).
func (b *DemuxerBundle) ProcessTsPacket(packet []byte) bool {
	hdr, ok := parseTsHeader(packet)
	if !ok {
		return false
	}

	parser := b.findDemuxer(hdr.pid)
	if parser == nil {
		return false
	}

	payload := tsPayload(packet, hdr)
	if payload == nil {
		return true // adaptation-only packet for a known PID; not an error
	}

	parser.Parse(payload, hdr.payloadUnitStart)
	return true
}

// IsReady reports whether every stream in the bundle has been parsed at
// least once.
func (b *DemuxerBundle) IsReady() bool {
	if len(b.entries) == 0 {
		return false
	}
	for _, e := range b.entries {
		if !e.parser.Info().Parsed() {
			return false
		}
	}
	return true
}

// Len returns the number of parsers currently in the bundle.
func (b *DemuxerBundle) Len() int {
	return len(b.entries)
}

// Snapshot returns the bundle's current StreamBundle (one StreamInfo per
// parser, in bundle order).
func (b *DemuxerBundle) Snapshot() *StreamBundle {
	sb := NewStreamBundle()
	for _, e := range b.entries {
		sb.Set(e.parser.Info())
	}
	return sb
}

// UpdateFrom rebuilds the bundle's parser set from a target StreamBundle:
// parsers whose PID disappears are dropped, parsers for new PIDs are
// created, and parsed parameters are carried over for any PID whose codec
// type is unchanged (matching (PID, codecType) exactly, ignoring language
// and already-parsed parameters).
func (b *DemuxerBundle) UpdateFrom(target *StreamBundle) {
	old := b.byPID

	b.entries = nil
	b.byPID = make(map[int]*bundleEntry)

	for _, pid := range target.PIDs() {
		info, _ := target.Get(pid)

		if prev, ok := old[pid]; ok && prev.codec == info.Codec {
			// reuse the previous parser's already-parsed parameters.
			prevInfo := prev.parser.Info()
			prevInfo.Language = info.Language
			prevInfo.AudioType = info.AudioType
			prev.parser.info = prevInfo
			b.addEntry(prev)
			continue
		}

		codec := newCodecParser(info.Codec)
		ringSize := b.ringCapacity(info.Class)
		parser := NewStreamParser(b.listener, codec, ringSize, pid, info.Class)
		parser.SetLanguage(info.Language)
		parser.SetAudioType(info.AudioType)

		b.addEntry(&bundleEntry{pid: pid, codec: info.Codec, parser: parser})
	}
}

func (b *DemuxerBundle) addEntry(e *bundleEntry) {
	b.entries = append(b.entries, e)
	b.byPID[e.pid] = e
}

// ReorderStreams returns the bundle's PIDs ordered by the preference rules
// (video first, language/preferred-codec/audio-type matches preferred, PID
// tie-break), then reorders the bundle's internal entry list to match so
// subsequent iteration (e.g. stream-change emission) reflects the new
// order. preferredCodec is the client's preferred audio codec type
// (CodecUnknown for no preference).
func (b *DemuxerBundle) ReorderStreams(preferredLang string, preferredType AudioType, preferredCodec CodecType) []int {
	sb := b.Snapshot()
	order := sb.ReorderedPIDs(preferredLang, preferredType, preferredCodec)

	reordered := make([]*bundleEntry, 0, len(order))
	for _, pid := range order {
		if e, ok := b.byPID[pid]; ok {
			reordered = append(reordered, e)
		}
	}
	b.entries = reordered

	return order
}

// newCodecParser constructs the CodecParser implementation for a codec
// type. Unknown codec types fall back to the subtitle pass-through parser,
// which treats the whole buffer as an opaque frame.
func newCodecParser(codec CodecType) CodecParser {
	switch codec {
	case CodecMpeg2Video:
		return Mpeg2VideoParser{}
	case CodecH264:
		return H264Parser{}
	case CodecHevc:
		return HevcParser{}
	case CodecMpegAudio:
		return MpegAudioParser{}
	case CodecAc3:
		return Ac3Parser{}
	case CodecEac3:
		return Eac3Parser{}
	case CodecAacAdts:
		return AdtsParser{}
	case CodecAacLatm:
		return LatmParser{}
	case CodecTeletext:
		return TeletextParser{}
	case CodecDvbSubtitle:
		return SubtitleParser{}
	default:
		return SubtitleParser{}
	}
}

// ringCapacity returns the ring buffer size for a content class, from the
// bundle's configured RingSizes with a defaultRingCapacity fallback.
func (b *DemuxerBundle) ringCapacity(class ContentClass) int {
	switch class {
	case ClassVideo:
		if b.ringSizes.Video > 0 {
			return b.ringSizes.Video
		}
	default:
		if b.ringSizes.Audio > 0 {
			return b.ringSizes.Audio
		}
	}
	return defaultRingCapacity(class)
}

// defaultRingCapacity returns the hardcoded fallback ring buffer size for a
// content class: 64 KiB for audio/subtitle/teletext, 2 MiB for video
// (H.264/HEVC frames can run large at I-frame boundaries).
func defaultRingCapacity(class ContentClass) int {
	switch class {
	case ClassVideo:
		return 2 * 1024 * 1024
	default:
		return 64 * 1024
	}
}

func (b *DemuxerBundle) String() string {
	return fmt.Sprintf("DemuxerBundle{streams=%d ready=%v}", len(b.entries), b.IsReady())
}
