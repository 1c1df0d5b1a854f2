package tsdemux

import "testing"

func adtsHeaderBits(sampleRateIndex, channelIndex, frameLength int) []byte {
	w := &bitWriter{}
	w.WriteBits(0xFFF, 12) // syncword
	w.WriteBit(0)          // ID
	w.WriteBits(0, 2)      // layer
	w.WriteBit(1)          // protection_absent
	w.WriteBits(1, 2)      // profile (LC)
	w.WriteBits(uint32(sampleRateIndex), 4)
	w.WriteBit(0) // private_bit
	w.WriteBits(uint32(channelIndex), 3)
	w.WriteBit(0) // original/copy
	w.WriteBit(0) // home
	w.WriteBit(0) // copyright_identification_bit
	w.WriteBit(0) // copyright_identification_start
	w.WriteBits(uint32(frameLength), 13)
	w.WriteBits(0, 13) // buffer_fullness + number_of_raw_data_blocks_in_frame, padding to 7 bytes
	return w.Bytes()
}

func TestAdtsCheckAlignmentHeaderAndFrameLength(t *testing.T) {
	p := AdtsParser{}
	buf := adtsHeaderBits(3, 2, 400) // 48000Hz, stereo, 400-byte frame

	ok, frameSize := p.CheckAlignmentHeader(buf)
	if !ok || frameSize != 400 {
		t.Fatalf("expected ok=true frameSize=400, got ok=%v frameSize=%d", ok, frameSize)
	}

	info := &StreamInfo{}
	p.ParsePayload(buf, frameSize, info)
	if info.Audio.SampleRate != 48000 || info.Audio.Channels != 2 {
		t.Fatalf("expected 48000Hz/2ch, got %dHz/%dch", info.Audio.SampleRate, info.Audio.Channels)
	}
}

func TestAdtsCheckAlignmentHeaderRejectsBadSync(t *testing.T) {
	p := AdtsParser{}
	buf := adtsHeaderBits(3, 2, 400)
	buf[1] &^= 0xF0 // corrupt the low nibble of the sync word
	if ok, _ := p.CheckAlignmentHeader(buf); ok {
		t.Fatal("expected a corrupted sync word to be rejected")
	}
}

func TestAdtsCheckAlignmentHeaderRejectsReservedSampleRate(t *testing.T) {
	p := AdtsParser{}
	buf := adtsHeaderBits(15, 2, 400)
	if ok, _ := p.CheckAlignmentHeader(buf); ok {
		t.Fatal("expected sampleRateIndex 15 to be rejected")
	}
}

func TestAdtsCheckAlignmentHeaderRejectsTinyFrameLength(t *testing.T) {
	p := AdtsParser{}
	buf := adtsHeaderBits(3, 2, 3)
	if ok, _ := p.CheckAlignmentHeader(buf); ok {
		t.Fatal("expected a frame length smaller than the header to be rejected")
	}
}

func TestAdtsCheckAlignmentHeaderRejectsShortBuffer(t *testing.T) {
	p := AdtsParser{}
	if ok, _ := p.CheckAlignmentHeader([]byte{0xFF, 0xF0, 0, 0, 0, 0}); ok {
		t.Fatal("expected a 6-byte buffer to be rejected")
	}
}

func TestAdtsMinHeaderSizeAndCodec(t *testing.T) {
	p := AdtsParser{}
	if p.Codec() != CodecAacAdts {
		t.Fatalf("expected CodecAacAdts, got %v", p.Codec())
	}
	if p.MinHeaderSize() != 9 {
		t.Fatalf("expected MinHeaderSize 9, got %d", p.MinHeaderSize())
	}
}

func TestAdtsFrameDuration(t *testing.T) {
	if got := AdtsFrameDuration(48000); got != 1920 {
		t.Fatalf("expected 1920 ticks at 48000Hz, got %d", got)
	}
	if got := AdtsFrameDuration(0); got != 0 {
		t.Fatalf("expected 0 for a non-positive sample rate, got %d", got)
	}
}
