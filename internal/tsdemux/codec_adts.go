package tsdemux

// adtsSampleRates is the ADTS sampling_frequency_index table. Index 15 is
// reserved/invalid (index 13, 14 are marked reserved in the spec too, but
// the original only special-cases 15 as the definite reject).
var adtsSampleRates = [16]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350, 0, 0, 0,
}

// adtsChannels is the ADTS channel_configuration table; index 0 means the
// channel configuration is signaled out-of-band (PCE) and is treated here
// as unknown until a PCE parser exists, so it maps to 0.
var adtsChannels = [8]int{0, 1, 2, 3, 4, 5, 6, 8}

// AdtsParser recognizes raw AAC in ADTS framing: 12-bit sync 0xFFF, a fixed
// 7-byte header plus an optional CRC, and a 13-bit frame length covering
// header and payload.
//
// m_headerSize is 9 even though the sync-word fields below only span 7
// bytes: the extra two bytes cover the optional CRC word, which is not
// present in every stream but is accounted for in the minimum lookahead so
// a short read never misparses a following frame's sync word as payload.
type AdtsParser struct{}

func (AdtsParser) Codec() CodecType   { return CodecAacAdts }
func (AdtsParser) MinHeaderSize() int { return 9 }

func (AdtsParser) CheckAlignmentHeader(buf []byte) (bool, int) {
	if len(buf) < 7 {
		return false, 0
	}

	// 12-bit sync word 0xFFF, then ID(1) + layer(2) + protection_absent(1).
	if buf[0] != 0xFF || buf[1]&0xF0 != 0xF0 {
		return false, 0
	}

	br := NewBitReader(buf)
	br.Skip(12) // syncword
	br.Skip(1)  // ID
	br.Skip(2)  // layer
	br.Skip(1)  // protection_absent
	br.Skip(2)  // profile
	sampleRateIndex := int(br.Bits(4))
	br.Skip(1) // private_bit
	channelIndex := int(br.Bits(3))
	br.Skip(1) // original/copy
	br.Skip(1) // home
	br.Skip(1) // copyright_identification_bit
	br.Skip(1) // copyright_identification_start
	frameLength := int(br.Bits(13))

	if sampleRateIndex == 15 {
		return false, 0
	}
	// The source rejects channelindex > 7; index 7 is a valid table entry
	// (8 channels) and must be accepted, not excluded.
	if channelIndex > 7 {
		return false, 0
	}
	if frameLength < 7 {
		return false, 0
	}

	return true, frameLength
}

func (a AdtsParser) ParsePayload(buf []byte, frameSize int, info *StreamInfo) FrameType {
	if len(buf) < 7 {
		return FrameUnknown
	}

	br := NewBitReader(buf)
	br.Skip(12 + 1 + 2 + 1 + 2)
	sampleRateIndex := int(br.Bits(4))
	br.Skip(1)
	channelIndex := int(br.Bits(3))

	sampleRate := adtsSampleRates[sampleRateIndex]
	channels := adtsChannels[channelIndex&0x7]

	info.Audio.SampleRate = sampleRate
	info.Audio.Channels = channels

	return FrameUnknown
}

// AdtsFrameDuration returns the presentation duration of one 1024-sample
// AAC frame in 90kHz ticks for the given sample rate, per the worked
// example: duration = 1024 * 90000 / sampleRate (integer truncation).
func AdtsFrameDuration(sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return int64(1024) * 90000 / int64(sampleRate)
}
