package tsdemux

// SubtitleParser passes through DVB subtitle PES payloads untouched: the
// client-side renderer consumes the raw subtitling segments, so this
// pipeline's only job is correct PES framing and timestamping, not decoding
// segment contents.
type SubtitleParser struct{}

func (SubtitleParser) Codec() CodecType   { return CodecDvbSubtitle }
func (SubtitleParser) MinHeaderSize() int { return 1 }

// CheckAlignmentHeader always succeeds at offset 0 with the whole
// available buffer as one frame: subtitle PES payloads have no internal
// sync pattern to hunt for, and PES header parsing in StreamParser.Parse
// has already aligned the data to one PES packet per arrival.
func (SubtitleParser) CheckAlignmentHeader(buf []byte) (bool, int) {
	if len(buf) == 0 {
		return false, 0
	}
	return true, len(buf)
}

func (SubtitleParser) ParsePayload(buf []byte, frameSize int, info *StreamInfo) FrameType {
	return FrameUnknown
}

// TeletextParser passes through teletext PES payloads the same way as
// SubtitleParser; teletext pages are interpreted client-side.
type TeletextParser struct{}

func (TeletextParser) Codec() CodecType   { return CodecTeletext }
func (TeletextParser) MinHeaderSize() int { return 1 }

func (TeletextParser) CheckAlignmentHeader(buf []byte) (bool, int) {
	if len(buf) == 0 {
		return false, 0
	}
	return true, len(buf)
}

func (TeletextParser) ParsePayload(buf []byte, frameSize int, info *StreamInfo) FrameType {
	return FrameUnknown
}
