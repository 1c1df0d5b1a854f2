package tsdemux

// h264AspectRatios maps the SPS aspect_ratio_idc to a num/den pair for the
// common broadcast values; idc 255 (Extended_SAR) carries its own explicit
// sar_width/sar_height which we read directly when encountered.
var h264AspectRatios = map[int][2]int{
	1: {1, 1},
	2: {12, 11},
	3: {10, 11},
	4: {16, 11},
	14: {4, 3},
	15: {3, 2},
	16: {2, 1},
}

// h264SliceType maps slice_type (mod 5, since values 5-9 repeat 0-4 to
// signal "all slices in picture share this type") to a FrameType.
var h264SliceType = map[int]FrameType{
	0: FrameP,
	1: FrameB,
	2: FrameI,
	3: FrameD, // SP, modeled as D (switching frame) since there is no SP slot
	4: FrameD, // SI
}

// H264Parser recognizes Annex B H.264 NAL units (start code 00 00 01 or
// 00 00 00 01) and decodes SPS (picture dimensions and aspect ratio; level
// and VUI timing info are not decoded) and slice headers (frame type),
// treating each access unit as one emitted frame.
type H264Parser struct{}

func (H264Parser) Codec() CodecType   { return CodecH264 }
func (H264Parser) MinHeaderSize() int { return 5 }

// CheckAlignmentHeader recognizes the start of a new access unit: an AUD
// NAL (type 9) when present, otherwise the first VCL NAL (slice types 1 or
// 5) carrying first_mb_in_slice == 0, which marks the first slice of a new
// picture. SPS/PPS NALs are not alignment points on their own: after an
// AUD they belong to the access unit the AUD opens; without an AUD they stay
// with the access unit before them. The start code must sit at offset 0 (or
// at offset 1 behind the leading zero of a 4-byte start code).
func (H264Parser) CheckAlignmentHeader(buf []byte) (bool, int) {
	off, nalType := firstNalAfterStartCode(buf)
	if off < 0 {
		return false, 0
	}
	if off > 1 || (off == 1 && buf[0] != 0x00) {
		return false, 0
	}
	if nalType == 9 {
		return true, 0
	}
	if nalType == 1 || nalType == 5 {
		sliceStart := off + 4 // past the 3-byte start code and the 1-byte NAL header
		if sliceStart >= len(buf) {
			return false, 0 // not enough bytes to confirm first_mb_in_slice
		}
		firstMB, ok := ueGolombAt(buf[sliceStart:])
		if ok && firstMB == 0 {
			return true, 0
		}
	}
	return false, 0
}

func (p H264Parser) ParsePayload(buf []byte, frameSize int, info *StreamInfo) FrameType {
	frameType := FrameUnknown

	i := 0
	for i+4 < len(buf) {
		start := indexStartCode(buf[i:])
		if start < 0 {
			break
		}
		nalStart := i + start
		hdrLen := 3
		if nalStart >= 1 && buf[nalStart-1] == 0x00 {
			// 4-byte start code already consumed by indexStartCode when
			// applicable; hdrLen tracking kept for clarity only.
		}
		nalUnitStart := nalStart + hdrLen
		if nalUnitStart >= len(buf) {
			break
		}
		nalType := int(buf[nalUnitStart] & 0x1F)

		switch nalType {
		case 7: // SPS
			parseH264Sps(buf[nalUnitStart+1:], info)
		case 5: // IDR slice
			frameType = FrameI
		case 1: // non-IDR slice
			if frameType == FrameUnknown {
				if sliceType, ok := h264SliceTypeAt(buf[nalUnitStart+1:]); ok {
					frameType = sliceType
				}
			}
		}

		i = nalUnitStart + 1
	}

	return frameType
}

func h264SliceTypeAt(buf []byte) (FrameType, bool) {
	if _, ok := ueGolombAt(buf); !ok {
		return FrameUnknown, false
	}
	// first_mb_in_slice already consumed by ueGolombAt's bit accounting in
	// the caller's context; re-parse with a fresh reader for slice_type.
	br := bitsAfterUe(buf)
	if br == nil {
		return FrameUnknown, false
	}
	sliceType, ok := readUe(br)
	if !ok {
		return FrameUnknown, false
	}
	ft, known := h264SliceType[int(sliceType)%5]
	return ft, known
}

// parseH264Sps decodes the SPS fields this pipeline cares about: picture
// dimensions (in pixels, cropped) and, when present, the VUI aspect ratio.
// profile_idc only selects the SPS layout; level_idc and VUI timing info
// are skipped.
func parseH264Sps(buf []byte, info *StreamInfo) {
	br := NewBitReader(rbspUnescape(buf))

	profileIdc := br.Bits(8)
	br.Skip(8) // constraint flags + reserved
	br.Skip(8) // level_idc
	_, _ = readUe(br) // seq_parameter_set_id

	if profileIdc == 100 || profileIdc == 110 || profileIdc == 122 || profileIdc == 244 ||
		profileIdc == 44 || profileIdc == 83 || profileIdc == 86 || profileIdc == 118 ||
		profileIdc == 128 {
		chromaFormatIdc, _ := readUe(br)
		if chromaFormatIdc == 3 {
			br.Skip(1) // separate_colour_plane_flag
		}
		readUe(br) // bit_depth_luma_minus8
		readUe(br) // bit_depth_chroma_minus8
		br.Skip(1) // qpprime_y_zero_transform_bypass_flag
		seqScalingMatrixPresent := br.Bit()
		if seqScalingMatrixPresent {
			// skip scaling lists: out of scope for this pipeline's needs.
			return
		}
	}

	readUe(br) // log2_max_frame_num_minus4
	picOrderCntType, _ := readUe(br)
	if picOrderCntType == 0 {
		readUe(br) // log2_max_pic_order_cnt_lsb_minus4
	} else if picOrderCntType == 1 {
		br.Skip(1)
		readSe(br)
		readSe(br)
		numRefFrames, _ := readUe(br)
		for i := uint32(0); i < numRefFrames; i++ {
			readSe(br)
		}
	}

	readUe(br) // max_num_ref_frames
	br.Skip(1) // gaps_in_frame_num_value_allowed_flag

	picWidthInMbs, _ := readUe(br)
	picHeightInMapUnits, _ := readUe(br)
	frameMbsOnly := br.Bit()
	if !frameMbsOnly {
		br.Skip(1) // mb_adaptive_frame_field_flag
	}
	br.Skip(1) // direct_8x8_inference_flag

	frameCropping := br.Bit()
	var cropLeft, cropRight, cropTop, cropBottom uint32
	if frameCropping {
		cropLeft, _ = readUe(br)
		cropRight, _ = readUe(br)
		cropTop, _ = readUe(br)
		cropBottom, _ = readUe(br)
	}

	heightMul := uint32(2)
	if frameMbsOnly {
		heightMul = 1
	} else {
		heightMul = 2
	}

	width := int((picWidthInMbs + 1) * 16)
	height := int((picHeightInMapUnits + 1) * 16 * heightMul)

	width -= int((cropLeft + cropRight) * 2)
	height -= int((cropTop + cropBottom) * 2 * heightMul / 2)

	info.Video.Width = width
	info.Video.Height = height

	vuiPresent := br.Bit()
	if vuiPresent {
		aspectRatioPresent := br.Bit()
		if aspectRatioPresent {
			aspectIdc := int(br.Bits(8))
			if aspectIdc == 255 {
				sarW := int(br.Bits(16))
				sarH := int(br.Bits(16))
				info.Video.AspectNum, info.Video.AspectDen = sarW, sarH
			} else if ar, ok := h264AspectRatios[aspectIdc]; ok {
				info.Video.AspectNum, info.Video.AspectDen = ar[0], ar[1]
			}
		}
	}
}

// firstNalAfterStartCode finds the first NAL unit start code in buf and
// returns its offset and NAL type, or (-1, 0) if none is found.
func firstNalAfterStartCode(buf []byte) (int, int) {
	idx := indexStartCode(buf)
	if idx < 0 {
		return -1, 0
	}
	nalStart := idx + 3
	if nalStart >= len(buf) {
		return -1, 0
	}
	return idx, int(buf[nalStart] & 0x1F)
}

// indexStartCode returns the offset of the next 00 00 01 sequence in buf
// (treating a leading 00 from a 4-byte start code as part of it), or -1.
func indexStartCode(buf []byte) int {
	for i := 0; i+3 <= len(buf); i++ {
		if buf[i] == 0x00 && buf[i+1] == 0x00 && buf[i+2] == 0x01 {
			return i
		}
	}
	return -1
}

// rbspUnescape removes emulation_prevention_three_byte (00 00 03 -> 00 00)
// sequences from a NAL payload before bitstream parsing.
func rbspUnescape(buf []byte) []byte {
	out := make([]byte, 0, len(buf))
	zeros := 0
	for _, b := range buf {
		if zeros >= 2 && b == 0x03 {
			zeros = 0
			continue
		}
		if b == 0x00 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}

// ueGolombAt reports whether a valid Exp-Golomb value can be decoded at the
// start of buf, without needing the full SPS/slice context; used only for
// the cheap first_mb_in_slice == 0 alignment check.
func ueGolombAt(buf []byte) (uint32, bool) {
	br := NewBitReader(buf)
	return readUe(br)
}

// bitsAfterUe re-creates a BitReader over buf positioned after the first
// Exp-Golomb code, for callers that already validated the first value and
// need to continue reading (first_mb_in_slice, then slice_type).
func bitsAfterUe(buf []byte) *BitReader {
	br := NewBitReader(buf)
	if _, ok := readUe(br); !ok {
		return nil
	}
	return br
}

// readUe decodes an unsigned Exp-Golomb-coded value.
func readUe(br *BitReader) (uint32, bool) {
	leadingZeros := 0
	for leadingZeros < 32 {
		if br.Remaining() == 0 {
			return 0, false
		}
		if br.Bit() {
			break
		}
		leadingZeros++
	}
	if leadingZeros == 0 {
		return 0, true
	}
	if br.Remaining() < leadingZeros {
		return 0, false
	}
	rest := br.Bits(leadingZeros)
	return (1 << uint(leadingZeros)) - 1 + rest, true
}

// readSe decodes a signed Exp-Golomb-coded value.
func readSe(br *BitReader) (int32, bool) {
	ue, ok := readUe(br)
	if !ok {
		return 0, false
	}
	if ue%2 == 0 {
		return -int32(ue / 2), true
	}
	return int32(ue+1) / 2, true
}
