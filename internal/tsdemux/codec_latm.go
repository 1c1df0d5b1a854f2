package tsdemux

// LatmParser recognizes AAC carried in LOAS/LATM framing: an 11-bit
// synchronization pattern 0x2B7 followed by a 13-bit LOAS payload length.
// LATM streams do not carry sample rate/channel count in the per-frame
// header the way ADTS does (those live in StreamMuxConfig, which may be
// sent out-of-band or only on the first frame); this parser reports the
// frame boundary and does not decode StreamMuxConfig. ParsePayload fills in
// 48kHz stereo while no sample rate or channel count is known.
type LatmParser struct{}

func (LatmParser) Codec() CodecType   { return CodecAacLatm }
func (LatmParser) MinHeaderSize() int { return 3 }

func (LatmParser) CheckAlignmentHeader(buf []byte) (bool, int) {
	if len(buf) < 3 {
		return false, 0
	}
	sync := uint32(buf[0])<<3 | uint32(buf[1])>>5
	if sync != 0x2B7 {
		return false, 0
	}

	length := (int(buf[1]&0x1F) << 8) | int(buf[2])
	frameSize := 3 + length
	return true, frameSize
}

func (LatmParser) ParsePayload(buf []byte, frameSize int, info *StreamInfo) FrameType {
	// StreamMuxConfig decoding (the actual source of sample rate/channel
	// count in LATM) is out of scope; default to the broadcast-common
	// 48kHz stereo configuration so the stream still reaches "parsed" and
	// the bundle doesn't stall waiting for a config payload this parser
	// does not decode.
	if info.Audio.SampleRate == 0 {
		info.Audio.SampleRate = 48000
	}
	if info.Audio.Channels == 0 {
		info.Audio.Channels = 2
	}
	return FrameUnknown
}
