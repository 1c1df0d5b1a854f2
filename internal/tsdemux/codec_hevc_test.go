package tsdemux

import "testing"

func TestHevcCheckAlignmentHeaderRecognizesAud(t *testing.T) {
	p := HevcParser{}
	buf := []byte{0x00, 0x00, 0x01, 0x46, 0x00, 0x00} // nal_unit_type 35 (AUD_NUT)
	ok, size := p.CheckAlignmentHeader(buf)
	if !ok || size != 0 {
		t.Fatalf("expected AUD to align, got ok=%v size=%d", ok, size)
	}
}

func TestHevcCheckAlignmentHeaderAcceptsFirstSlice(t *testing.T) {
	p := HevcParser{}
	buf := []byte{0x00, 0x00, 0x01, 0x26, 0x00, 0x80} // IDR_W_RADL, first_slice_segment_in_pic_flag=1
	ok, size := p.CheckAlignmentHeader(buf)
	if !ok || size != 0 {
		t.Fatalf("expected first-slice IDR to align, got ok=%v size=%d", ok, size)
	}
}

func TestHevcCheckAlignmentHeaderRejectsNonFirstSlice(t *testing.T) {
	p := HevcParser{}
	buf := []byte{0x00, 0x00, 0x01, 0x26, 0x00, 0x00} // first_slice_segment_in_pic_flag=0
	if ok, _ := p.CheckAlignmentHeader(buf); ok {
		t.Fatal("expected a non-first slice segment to not be an alignment point")
	}
}

func TestHevcCheckAlignmentHeaderRejectsNoStartCode(t *testing.T) {
	p := HevcParser{}
	if ok, _ := p.CheckAlignmentHeader([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}); ok {
		t.Fatal("expected a buffer without a start code to be rejected")
	}
}

func TestHevcParsePayloadIdrIsFrameI(t *testing.T) {
	p := HevcParser{}
	buf := []byte{0x00, 0x00, 0x01, 0x26, 0x00, 0x00, 0x00, 0x00, 0x00}
	info := &StreamInfo{}
	if ft := p.ParsePayload(buf, len(buf), info); ft != FrameI {
		t.Fatalf("expected FrameI for an IDR NAL, got %v", ft)
	}
}

func TestHevcParsePayloadDecodesSps(t *testing.T) {
	p := HevcParser{}

	w := &bitWriter{}
	w.WriteBits(0, 4) // sps_video_parameter_set_id
	w.WriteBits(0, 3) // sps_max_sub_layers_minus1 = 0
	w.WriteBit(0)     // sps_temporal_id_nesting_flag
	w.WriteBits(0, 8*12)
	writeUe(w, 0) // sps_seq_parameter_set_id
	writeUe(w, 1) // chroma_format_idc = 4:2:0
	writeUe(w, 1920)
	writeUe(w, 1080)
	w.WriteBit(0) // conformance_window_flag

	spsPayload := w.Bytes()
	buf := append([]byte{0x00, 0x00, 0x01, 0x42, 0x01}, spsPayload...) // nal_unit_type 33 (SPS_NUT)
	buf = append(buf, 0x00, 0x00, 0x00, 0x00)

	info := &StreamInfo{}
	p.ParsePayload(buf, len(buf), info)

	if info.Video.Width != 1920 || info.Video.Height != 1080 {
		t.Fatalf("expected 1920x1080, got %dx%d", info.Video.Width, info.Video.Height)
	}
}

func TestHevcMinHeaderSizeAndCodec(t *testing.T) {
	p := HevcParser{}
	if p.Codec() != CodecHevc {
		t.Fatalf("expected CodecHevc, got %v", p.Codec())
	}
	if p.MinHeaderSize() != 6 {
		t.Fatalf("expected MinHeaderSize 6, got %d", p.MinHeaderSize())
	}
}
