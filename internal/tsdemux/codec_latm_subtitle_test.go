package tsdemux

import "testing"

func TestLatmCheckAlignmentHeaderAndFrameSize(t *testing.T) {
	p := LatmParser{}
	// sync=0x2B7, length=10 -> frameSize = 3 + 10 = 13.
	buf := []byte{0x56, 0xE0, 0x0A}

	ok, frameSize := p.CheckAlignmentHeader(buf)
	if !ok || frameSize != 13 {
		t.Fatalf("expected ok=true frameSize=13, got ok=%v frameSize=%d", ok, frameSize)
	}
}

func TestLatmCheckAlignmentHeaderRejectsBadSync(t *testing.T) {
	p := LatmParser{}
	buf := []byte{0x00, 0xE0, 0x0A}
	if ok, _ := p.CheckAlignmentHeader(buf); ok {
		t.Fatal("expected a mismatched sync pattern to be rejected")
	}
}

func TestLatmCheckAlignmentHeaderRejectsShortBuffer(t *testing.T) {
	p := LatmParser{}
	if ok, _ := p.CheckAlignmentHeader([]byte{0x56, 0xE0}); ok {
		t.Fatal("expected a 2-byte buffer to be rejected")
	}
}

func TestLatmParsePayloadDefaultsToBroadcastCommonConfig(t *testing.T) {
	p := LatmParser{}
	info := &StreamInfo{}
	p.ParsePayload([]byte{0x56, 0xE0, 0x0A}, 13, info)
	if info.Audio.SampleRate != 48000 || info.Audio.Channels != 2 {
		t.Fatalf("expected default 48000Hz/2ch, got %dHz/%dch", info.Audio.SampleRate, info.Audio.Channels)
	}
}

func TestLatmParsePayloadPreservesAlreadyKnownConfig(t *testing.T) {
	p := LatmParser{}
	info := &StreamInfo{Audio: AudioParams{SampleRate: 44100, Channels: 6}}
	p.ParsePayload([]byte{0x56, 0xE0, 0x0A}, 13, info)
	if info.Audio.SampleRate != 44100 || info.Audio.Channels != 6 {
		t.Fatalf("expected existing config to survive, got %dHz/%dch", info.Audio.SampleRate, info.Audio.Channels)
	}
}

func TestLatmMinHeaderSizeAndCodec(t *testing.T) {
	p := LatmParser{}
	if p.Codec() != CodecAacLatm {
		t.Fatalf("expected CodecAacLatm, got %v", p.Codec())
	}
	if p.MinHeaderSize() != 3 {
		t.Fatalf("expected MinHeaderSize 3, got %d", p.MinHeaderSize())
	}
}

func TestSubtitleParserWholeBufferFraming(t *testing.T) {
	p := SubtitleParser{}
	ok, frameSize := p.CheckAlignmentHeader([]byte{0x01, 0x02, 0x03})
	if !ok || frameSize != 3 {
		t.Fatalf("expected ok=true frameSize=3, got ok=%v frameSize=%d", ok, frameSize)
	}
	if ok, _ := p.CheckAlignmentHeader(nil); ok {
		t.Fatal("expected an empty buffer to be rejected")
	}
	if ft := p.ParsePayload([]byte{0x01}, 1, &StreamInfo{}); ft != FrameUnknown {
		t.Fatalf("expected FrameUnknown, got %v", ft)
	}
	if p.Codec() != CodecDvbSubtitle || p.MinHeaderSize() != 1 {
		t.Fatalf("unexpected codec/header size: %v/%d", p.Codec(), p.MinHeaderSize())
	}
}

func TestTeletextParserWholeBufferFraming(t *testing.T) {
	p := TeletextParser{}
	ok, frameSize := p.CheckAlignmentHeader([]byte{0x01, 0x02})
	if !ok || frameSize != 2 {
		t.Fatalf("expected ok=true frameSize=2, got ok=%v frameSize=%d", ok, frameSize)
	}
	if ok, _ := p.CheckAlignmentHeader(nil); ok {
		t.Fatal("expected an empty buffer to be rejected")
	}
	if ft := p.ParsePayload([]byte{0x01}, 1, &StreamInfo{}); ft != FrameUnknown {
		t.Fatalf("expected FrameUnknown, got %v", ft)
	}
	if p.Codec() != CodecTeletext || p.MinHeaderSize() != 1 {
		t.Fatalf("unexpected codec/header size: %v/%d", p.Codec(), p.MinHeaderSize())
	}
}
