package tsdemux

// Listener receives assembled StreamPackets from a StreamParser. DemuxerBundle
// implements this to fan packets out to the live streamer. The listener
// outlives every parser; a parser holds it as a plain back-reference, never
// as an owner.
type Listener interface {
	onStreamPacket(pkt StreamPacket)
}

// ListenerFunc adapts a plain function to Listener, the same way
// http.HandlerFunc adapts a function to http.Handler. This lets callers
// outside this package (internal/live) supply a callback without needing
// to satisfy the unexported method directly.
type ListenerFunc func(pkt StreamPacket)

func (f ListenerFunc) onStreamPacket(pkt StreamPacket) { f(pkt) }

// CodecParser is the per-codec capability a StreamParser dispatches to: it
// knows how to recognize its own frame header at the start of a buffer and
// how to extract the codec parameters and frame type from a complete frame.
//
// Implementations must not retain the byte slices passed to them beyond the
// call; the base parser reuses its ring buffer's backing array.
type CodecParser interface {
	// Codec identifies which CodecType this parser produces.
	Codec() CodecType

	// MinHeaderSize is the minimum number of bytes needed to recognize an
	// alignment header (used to decide how many trailing bytes to retain
	// across a failed resync search).
	MinHeaderSize() int

	// CheckAlignmentHeader inspects buf (which may be longer than one
	// frame) for a valid frame header at offset 0. It reports ok=false if
	// buf does not begin with a recognizable header, or if there are not
	// yet enough bytes to tell. frameSize is the total size of the frame
	// including its header, when known; 0 means "unbounded" (determined
	// only by the next header, as with MPEG2/H.264 video).
	CheckAlignmentHeader(buf []byte) (ok bool, frameSize int)

	// ParsePayload extracts codec parameters and frame type from a frame
	// of exactly frameSize bytes (or, for unbounded frames, from buf up to
	// the next header). It updates info in place with any newly parsed
	// parameters and returns the frame type of this frame.
	ParsePayload(buf []byte, frameSize int, info *StreamInfo) FrameType
}

// ParserState is the lifecycle state of a StreamParser.
type ParserState int

const (
	StateStartup ParserState = iota
	StateStreaming
)

// StreamParser assembles elementary-stream frames for a single PID. It
// owns a ring buffer and delegates codec-specific alignment/parsing to a
// CodecParser.
type StreamParser struct {
	listener Listener
	codec    CodecParser
	ring     *RingBuffer

	info StreamInfo

	state ParserState

	curPts  int64
	curDts  int64
	lastPts int64
	lastDts int64

	lastDuration int64

	pendingHeaderBytes int // header bytes stripped from the current PUSI payload, for logging only
}

// NewStreamParser constructs a parser for one PID, backed by a ring buffer
// of the given capacity.
func NewStreamParser(listener Listener, codec CodecParser, ringCapacity int, pid int, class ContentClass) *StreamParser {
	return &StreamParser{
		listener: listener,
		codec:    codec,
		ring:     NewRingBuffer(ringCapacity),
		info: StreamInfo{
			PID:   pid,
			Class: class,
			Codec: codec.Codec(),
		},
		state:   StateStartup,
		curPts:  NoPTS,
		curDts:  NoPTS,
		lastPts: NoPTS,
		lastDts: NoPTS,
	}
}

// Info returns the parser's current StreamInfo snapshot.
func (p *StreamParser) Info() StreamInfo {
	return p.info
}

// SetLanguage sets the ISO-639 language tag carried on emitted StreamInfo
// (audio/subtitle streams only; a no-op parameter for others but harmless).
func (p *StreamParser) SetLanguage(lang string) {
	p.info.Language = lang
}

// SetAudioType sets the descriptive audio type tag.
func (p *StreamParser) SetAudioType(t AudioType) {
	p.info.AudioType = t
}

// Parse feeds one TS packet's payload bytes to the parser. pusi indicates
// this payload begins a new PES packet (payload_unit_start_indicator).
func (p *StreamParser) Parse(payload []byte, pusi bool) {
	if pusi {
		if p.state == StateStartup {
			p.state = StateStreaming
			p.ring.Clear()
		}

		if header, ok := ParsePesHeader(payload); ok {
			if header.PTS != NoPTS {
				p.curPts = header.PTS
				p.curDts = header.DTS
			} else {
				p.curPts = PtsAdd(p.lastPts, p.lastDuration)
				p.curDts = PtsAdd(p.lastDts, p.lastDuration)
			}

			offset := header.PayloadOffset
			if offset > len(payload) {
				offset = len(payload)
			}
			payload = payload[offset:]
		}
	}

	if len(payload) == 0 {
		return
	}

	n := p.ring.Put(payload)
	if n < len(payload) {
		p.ring.ReportOverflow(len(payload) - n)
		p.ring.Clear()
		return
	}

	p.drain()
}

// drain repeatedly attempts to extract aligned frames from the front of the
// ring buffer, emitting each one, until no more progress can be made.
func (p *StreamParser) drain() {
	for {
		buf := p.ring.Get()
		if len(buf) < p.codec.MinHeaderSize() {
			return
		}

		ok, frameSize := p.codec.CheckAlignmentHeader(buf)
		if !ok {
			offset := p.findNextHeaderOffset(buf)
			if offset < 0 {
				// no header anywhere in the buffer; keep only enough
				// trailing bytes to catch a header split across the
				// next Put.
				keep := p.codec.MinHeaderSize() - 1
				if keep < 0 {
					keep = 0
				}
				if len(buf) > keep {
					p.ring.Del(len(buf) - keep)
				}
				return
			}
			if offset > 0 {
				p.ring.Del(offset)
				continue
			}
			// offset == 0 but CheckAlignmentHeader said no: header bytes
			// present but incomplete (e.g. truncated at buffer end).
			return
		}

		if frameSize <= 0 {
			// unbounded frame (video): bounded only by the next header.
			next := p.findNextHeaderOffsetFrom(buf, p.codec.MinHeaderSize())
			if next < 0 {
				return // wait for more bytes
			}
			frameSize = next
		} else if len(buf) < frameSize {
			return // wait for more bytes
		} else if frameSize == len(buf) {
			// Whole-buffer framing (subtitle/teletext pass-through): there
			// is no trailing header to verify against, so the buffered
			// bytes are trusted as a complete frame as-is.
		} else {
			// anti-false-positive: the next header must land exactly
			// frameSize bytes later, unless that would run past what we
			// have buffered (in which case we can't verify yet and wait).
			if len(buf) >= frameSize+p.codec.MinHeaderSize() {
				if ok2, _ := p.codec.CheckAlignmentHeader(buf[frameSize:]); !ok2 {
					// false positive; skip one byte and resync.
					p.ring.Del(1)
					continue
				}
			} else if len(buf) < frameSize+p.codec.MinHeaderSize() {
				return
			}
		}

		frame := buf[:frameSize]
		frameType := p.codec.ParsePayload(frame, frameSize, &p.info)

		pkt := StreamPacket{
			PID:       p.info.PID,
			Class:     p.info.Class,
			FrameType: frameType,
			RawPTS:    p.curPts,
			RawDTS:    p.curDts,
			NormPTS:   NormalizePts(p.lastPts, p.curPts),
			NormDTS:   NormalizePts(p.lastDts, p.curDts),
			Payload:   append([]byte(nil), frame...),
		}

		if p.lastPts != NoPTS && p.curPts != NoPTS {
			pkt.Duration = pkt.NormPTS - NormalizePts(p.lastPts, p.lastPts)
			if pkt.Duration < 0 {
				pkt.Duration = 0
			}
		}
		if pkt.Duration > 0 {
			p.lastDuration = pkt.Duration
		}

		if pkt.NormPTS != NoPTS {
			p.lastPts = pkt.NormPTS
		}
		if pkt.NormDTS != NoPTS {
			p.lastDts = pkt.NormDTS
		}

		p.ring.Del(frameSize)

		if p.listener != nil {
			p.listener.onStreamPacket(pkt)
		}
	}
}

// findNextHeaderOffset scans buf starting at offset 1 for the next position
// at which CheckAlignmentHeader succeeds, returning -1 if none is found in
// the currently buffered bytes.
func (p *StreamParser) findNextHeaderOffset(buf []byte) int {
	return p.findNextHeaderOffsetFrom(buf, 1)
}

// findNextHeaderOffsetFrom scans buf starting at the given offset.
func (p *StreamParser) findNextHeaderOffsetFrom(buf []byte, start int) int {
	minHeader := p.codec.MinHeaderSize()
	for i := start; i+minHeader <= len(buf); i++ {
		if ok, _ := p.codec.CheckAlignmentHeader(buf[i:]); ok {
			return i
		}
	}
	return -1
}
