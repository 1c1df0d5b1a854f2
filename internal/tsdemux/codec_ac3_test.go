package tsdemux

import "testing"

func TestAc3CheckAlignmentHeaderAndFrameSize(t *testing.T) {
	p := Ac3Parser{}
	// fscod=0 (48kHz), frmsizecod=0 -> 64 words -> 128 bytes.
	// acmod=2 (stereo) with lfeon set -> 3 channels.
	buf := []byte{0x0B, 0x77, 0x00, 0x00, 0x00, 0x00, 0x50}

	ok, frameSize := p.CheckAlignmentHeader(buf)
	if !ok || frameSize != 128 {
		t.Fatalf("expected ok=true frameSize=128, got ok=%v frameSize=%d", ok, frameSize)
	}

	info := &StreamInfo{}
	p.ParsePayload(buf, frameSize, info)
	if info.Audio.SampleRate != 48000 || info.Audio.Channels != 3 {
		t.Fatalf("expected 48000Hz/3ch, got %dHz/%dch", info.Audio.SampleRate, info.Audio.Channels)
	}
}

func TestAc3CheckAlignmentHeaderRejectsBadSync(t *testing.T) {
	p := Ac3Parser{}
	if ok, _ := p.CheckAlignmentHeader([]byte{0x0B, 0x78, 0, 0, 0, 0, 0}); ok {
		t.Fatal("expected a mismatched sync word to be rejected")
	}
}

func TestAc3CheckAlignmentHeaderRejectsReservedFscod(t *testing.T) {
	p := Ac3Parser{}
	buf := []byte{0x0B, 0x77, 0, 0, 0xC0, 0, 0} // fscod=3 (reserved)
	if ok, _ := p.CheckAlignmentHeader(buf); ok {
		t.Fatal("expected reserved fscod to be rejected")
	}
}

func TestAc3CheckAlignmentHeaderRejectsShortBuffer(t *testing.T) {
	p := Ac3Parser{}
	if ok, _ := p.CheckAlignmentHeader([]byte{0x0B, 0x77, 0, 0, 0, 0}); ok {
		t.Fatal("expected a 6-byte buffer to be rejected")
	}
}

func TestAc3MinHeaderSizeAndCodec(t *testing.T) {
	p := Ac3Parser{}
	if p.Codec() != CodecAc3 {
		t.Fatalf("expected CodecAc3, got %v", p.Codec())
	}
	if p.MinHeaderSize() != 7 {
		t.Fatalf("expected MinHeaderSize 7, got %d", p.MinHeaderSize())
	}
}

func TestEac3CheckAlignmentHeaderAndFrameSize(t *testing.T) {
	p := Eac3Parser{}
	// strmtyp=0, frmsiz=100 -> (100+1)*2 = 202 bytes.
	buf := []byte{0x0B, 0x77, 0x00, 0x64, 0x03, 0x00, 0x00}

	ok, frameSize := p.CheckAlignmentHeader(buf)
	if !ok || frameSize != 202 {
		t.Fatalf("expected ok=true frameSize=202, got ok=%v frameSize=%d", ok, frameSize)
	}

	info := &StreamInfo{}
	p.ParsePayload(buf, frameSize, info)
	if info.Audio.SampleRate != 48000 || info.Audio.Channels != 2 {
		t.Fatalf("expected 48000Hz/2ch (mono+LFE), got %dHz/%dch", info.Audio.SampleRate, info.Audio.Channels)
	}
}

func TestEac3CheckAlignmentHeaderRejectsReservedStrmtyp(t *testing.T) {
	p := Eac3Parser{}
	buf := []byte{0x0B, 0x77, 0xC0, 0x00, 0x00, 0x00, 0x00} // strmtyp=3 (reserved)
	if ok, _ := p.CheckAlignmentHeader(buf); ok {
		t.Fatal("expected reserved strmtyp to be rejected")
	}
}

func TestMpegAudioCheckAlignmentHeaderAndFrameSize(t *testing.T) {
	p := MpegAudioParser{}
	// MPEG1 Layer III, bitrate index 9 (128kbps), sample rate index 0 (44100Hz), no padding, stereo.
	// 144*128000/44100 = 417.96 -> 417 bytes.
	buf := []byte{0xFF, 0xFA, 0x90, 0x00}

	ok, frameSize := p.CheckAlignmentHeader(buf)
	if !ok || frameSize != 417 {
		t.Fatalf("expected ok=true frameSize=417, got ok=%v frameSize=%d", ok, frameSize)
	}

	info := &StreamInfo{}
	p.ParsePayload(buf, frameSize, info)
	if info.Audio.SampleRate != 44100 || info.Audio.Channels != 2 {
		t.Fatalf("expected 44100Hz/2ch, got %dHz/%dch", info.Audio.SampleRate, info.Audio.Channels)
	}
}

func TestMpegAudioCheckAlignmentHeaderRejectsBadSync(t *testing.T) {
	p := MpegAudioParser{}
	if ok, _ := p.CheckAlignmentHeader([]byte{0xFF, 0x00, 0x00, 0x00}); ok {
		t.Fatal("expected a non-0xE0-masked second byte to be rejected")
	}
}

func TestMpegAudioCheckAlignmentHeaderRejectsReservedBitrate(t *testing.T) {
	p := MpegAudioParser{}
	buf := []byte{0xFF, 0xFA, 0xF0, 0x00} // bitrateIndex=15 (reserved)
	if ok, _ := p.CheckAlignmentHeader(buf); ok {
		t.Fatal("expected reserved bitrate index to be rejected")
	}
}

func TestMpegAudioMinHeaderSizeAndCodec(t *testing.T) {
	p := MpegAudioParser{}
	if p.Codec() != CodecMpegAudio {
		t.Fatalf("expected CodecMpegAudio, got %v", p.Codec())
	}
	if p.MinHeaderSize() != 4 {
		t.Fatalf("expected MinHeaderSize 4, got %d", p.MinHeaderSize())
	}
}
