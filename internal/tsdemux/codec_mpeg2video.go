package tsdemux

// mpeg2AspectRatios maps the 4-bit aspect_ratio_information code to a
// num/den pair. Code 0 is forbidden; codes 5-15 are reserved.
var mpeg2AspectRatios = map[int][2]int{
	1: {1, 1},
	2: {4, 3},
	3: {16, 9},
	4: {221, 100},
}

// mpeg2FrameRates maps the 4-bit frame_rate_code to a num/den pair.
var mpeg2FrameRates = map[int][2]int{
	1: {24000, 1001},
	2: {24, 1},
	3: {25, 1},
	4: {30000, 1001},
	5: {30, 1},
	6: {50, 1},
	7: {60000, 1001},
	8: {60, 1},
}

// mpeg2PictureType maps the 3-bit picture_coding_type to a FrameType.
var mpeg2PictureType = map[int]FrameType{
	1: FrameI,
	2: FrameP,
	3: FrameB,
	4: FrameD,
}

// Mpeg2VideoParser recognizes MPEG-2 video access units delimited by
// picture_start_code (00 00 01 00) and decodes sequence_header parameters
// (width, height, aspect ratio, frame rate) found inside a unit. Because
// units start at picture_start_code, a sequence_header sent ahead of a
// picture is parsed as part of the preceding picture's unit.
type Mpeg2VideoParser struct{}

func (Mpeg2VideoParser) Codec() CodecType   { return CodecMpeg2Video }
func (Mpeg2VideoParser) MinHeaderSize() int { return 4 }

// CheckAlignmentHeader accepts only picture_start_code as an alignment
// point, with frameSize always reported as 0 (unbounded: the base parser
// locates the next picture_start_code to bound the frame).
func (Mpeg2VideoParser) CheckAlignmentHeader(buf []byte) (bool, int) {
	if len(buf) < 4 {
		return false, 0
	}
	if buf[0] != 0x00 || buf[1] != 0x00 || buf[2] != 0x01 {
		return false, 0
	}
	// Any of 0x00 (picture), 0xB3 (sequence header), 0xB8 (GOP), or a
	// slice start code (0x01-0xAF) delimits a unit; frames break only on
	// picture_start_code, so the other start codes stay inside the unit
	// that began at the most recent picture_start_code.
	if buf[3] != 0x00 {
		return false, 0
	}
	return true, 0
}

func (p Mpeg2VideoParser) ParsePayload(buf []byte, frameSize int, info *StreamInfo) FrameType {
	frameType := FrameUnknown

	for i := 0; i+4 < len(buf); i++ {
		if buf[i] != 0x00 || buf[i+1] != 0x00 || buf[i+2] != 0x01 {
			continue
		}
		switch buf[i+3] {
		case 0x00: // picture_start_code
			if i+6 <= len(buf) {
				br := NewBitReader(buf[i+4:])
				br.Skip(10) // temporal_reference
				pictureCodingType := int(br.Bits(3))
				if ft, ok := mpeg2PictureType[pictureCodingType]; ok {
					frameType = ft
				}
			}
		case 0xB3: // sequence_header_code
			if i+4+7 <= len(buf) {
				br := NewBitReader(buf[i+4:])
				width := int(br.Bits(12))
				height := int(br.Bits(12))
				aspectCode := int(br.Bits(4))
				frameRateCode := int(br.Bits(4))

				info.Video.Width = width
				info.Video.Height = height
				if ar, ok := mpeg2AspectRatios[aspectCode]; ok {
					info.Video.AspectNum, info.Video.AspectDen = ar[0], ar[1]
				}
				if fr, ok := mpeg2FrameRates[frameRateCode]; ok {
					info.Video.FpsNum, info.Video.FpsDen = fr[0], fr[1]
				}
			}
		}
	}

	return frameType
}
