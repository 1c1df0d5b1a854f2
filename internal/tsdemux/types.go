package tsdemux

import (
	"fmt"

	"golang.org/x/text/language"
)

// ContentClass categorizes an elementary stream for reordering and gating
// decisions (I-frame gate only applies to video, for instance).
type ContentClass int

const (
	ClassNone ContentClass = iota
	ClassVideo
	ClassAudio
	ClassSubtitle
	ClassTeletext
	ClassStreamInfo
)

func (c ContentClass) String() string {
	switch c {
	case ClassVideo:
		return "video"
	case ClassAudio:
		return "audio"
	case ClassSubtitle:
		return "subtitle"
	case ClassTeletext:
		return "teletext"
	case ClassStreamInfo:
		return "stream-info"
	default:
		return "none"
	}
}

// CodecType enumerates the elementary stream codecs this demuxer can align
// and parse.
type CodecType int

const (
	CodecUnknown CodecType = iota
	CodecMpeg2Video
	CodecH264
	CodecHevc
	CodecMpegAudio
	CodecAc3
	CodecEac3
	CodecAacAdts
	CodecAacLatm
	CodecDvbSubtitle
	CodecTeletext
)

func (c CodecType) String() string {
	switch c {
	case CodecMpeg2Video:
		return "MPEG2VIDEO"
	case CodecH264:
		return "H264"
	case CodecHevc:
		return "HEVC"
	case CodecMpegAudio:
		return "MPEG2AUDIO"
	case CodecAc3:
		return "AC3"
	case CodecEac3:
		return "EAC3"
	case CodecAacAdts:
		return "AAC"
	case CodecAacLatm:
		return "AAC_LATM"
	case CodecDvbSubtitle:
		return "DVBSUB"
	case CodecTeletext:
		return "TELETEXT"
	default:
		return "UNKNOWN"
	}
}

// ContentClass returns the content class a codec type belongs to.
func (c CodecType) ContentClass() ContentClass {
	switch c {
	case CodecMpeg2Video, CodecH264, CodecHevc:
		return ClassVideo
	case CodecMpegAudio, CodecAc3, CodecEac3, CodecAacAdts, CodecAacLatm:
		return ClassAudio
	case CodecDvbSubtitle:
		return ClassSubtitle
	case CodecTeletext:
		return ClassTeletext
	default:
		return ClassNone
	}
}

// FrameType identifies the coding type of an assembled video frame. Audio,
// subtitle, and teletext frames are always FrameUnknown.
type FrameType int

const (
	FrameUnknown FrameType = iota
	FrameI
	FrameP
	FrameB
	FrameD
)

func (f FrameType) String() string {
	switch f {
	case FrameI:
		return "I"
	case FrameP:
		return "P"
	case FrameB:
		return "B"
	case FrameD:
		return "D"
	default:
		return "?"
	}
}

// AudioType is the descriptive audio-track tag carried in StreamInfo
// (e.g. normal, impaired, clean-effects, hearing-impaired, visually-impaired
// per the DVB audio type table in the AC-3/audio descriptors).
type AudioType int

const (
	AudioTypeNormal AudioType = iota
	AudioTypeCleanEffects
	AudioTypeHearingImpaired
	AudioTypeVisuallyImpaired
)

// VideoParams holds parsed parameters specific to a video codec type.
type VideoParams struct {
	Width       int
	Height      int
	AspectNum   int
	AspectDen   int
	FpsNum      int
	FpsDen      int
	SPS         []byte
	PPS         []byte
}

// AudioParams holds parsed parameters specific to an audio codec type.
type AudioParams struct {
	SampleRate int
	Channels   int
	Bitrate    int
}

// StreamInfo describes one elementary stream carried by the transport
// stream: its PID, codec identity, and codec-specific parsed parameters.
//
// A StreamInfo is "parsed" once its mandatory codec parameters (width/height
// for video, sample rate/channels for audio) are non-zero.
type StreamInfo struct {
	PID       int
	Class     ContentClass
	Codec     CodecType
	Language  string // ISO-639, audio/subtitle only
	AudioType AudioType
	Video     VideoParams
	Audio     AudioParams
}

// Parsed reports whether mandatory codec parameters have been observed.
func (s StreamInfo) Parsed() bool {
	switch s.Class {
	case ClassVideo:
		return s.Video.Width > 0 && s.Video.Height > 0
	case ClassAudio:
		return s.Audio.SampleRate > 0 && s.Audio.Channels > 0
	default:
		return true
	}
}

// isMetaOf reports whether s and other describe the same (PID, codec type),
// ignoring parsed parameters and language.
func (s StreamInfo) isMetaOf(other StreamInfo) bool {
	return s.PID == other.PID && s.Codec == other.Codec
}

// StreamBundle is an ordered mapping of PID to StreamInfo.
type StreamBundle struct {
	order   []int
	streams map[int]StreamInfo
}

// NewStreamBundle returns an empty bundle.
func NewStreamBundle() *StreamBundle {
	return &StreamBundle{streams: make(map[int]StreamInfo)}
}

// Set inserts or replaces the StreamInfo for a PID, preserving the original
// insertion order of the PID within the bundle.
func (b *StreamBundle) Set(info StreamInfo) {
	if _, exists := b.streams[info.PID]; !exists {
		b.order = append(b.order, info.PID)
	}
	b.streams[info.PID] = info
}

// Get returns the StreamInfo for a PID, if present.
func (b *StreamBundle) Get(pid int) (StreamInfo, bool) {
	info, ok := b.streams[pid]
	return info, ok
}

// Delete removes a PID from the bundle.
func (b *StreamBundle) Delete(pid int) {
	if _, ok := b.streams[pid]; !ok {
		return
	}
	delete(b.streams, pid)
	for i, p := range b.order {
		if p == pid {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// PIDs returns the bundle's PIDs in insertion order.
func (b *StreamBundle) PIDs() []int {
	out := make([]int, len(b.order))
	copy(out, b.order)
	return out
}

// Len returns the number of streams in the bundle.
func (b *StreamBundle) Len() int {
	return len(b.streams)
}

// Ready reports whether every stream in the bundle has been parsed.
func (b *StreamBundle) Ready() bool {
	if len(b.streams) == 0 {
		return false
	}
	for _, info := range b.streams {
		if !info.Parsed() {
			return false
		}
	}
	return true
}

// IsMetaOf reports whether b and other describe the same set of
// (PID, codecType) pairs, regardless of parsed parameters.
func (b *StreamBundle) IsMetaOf(other *StreamBundle) bool {
	if b.Len() != other.Len() {
		return false
	}
	for pid, info := range b.streams {
		otherInfo, ok := other.streams[pid]
		if !ok || !info.isMetaOf(otherInfo) {
			return false
		}
	}
	return true
}

// Clone returns a deep-enough copy (StreamInfo is a value type, so this is
// a shallow field copy per entry) safe to mutate independently of b.
func (b *StreamBundle) Clone() *StreamBundle {
	clone := NewStreamBundle()
	for _, pid := range b.order {
		clone.Set(b.streams[pid])
	}
	return clone
}

// ReorderedPIDs returns the bundle's PIDs ordered by descending weight per
// the preference rules: video first, then audio/subtitle by language,
// preferred codec, and audio-type priority, with PID as the final, stable
// tie-break. preferredCodec is the client's preferred audio codec (e.g.
// CodecAc3); CodecUnknown means no codec preference.
func (b *StreamBundle) ReorderedPIDs(preferredLang string, preferredType AudioType, preferredCodec CodecType) []int {
	type weighted struct {
		pid    int
		weight uint32
	}

	entries := make([]weighted, 0, len(b.streams))
	for pid, info := range b.streams {
		entries = append(entries, weighted{pid: pid, weight: streamWeight(info, preferredLang, preferredType, preferredCodec)})
	}

	// stable-sort descending by weight; PID tie-break is already folded
	// into the low 16 bits of the weight, so a plain stable sort over
	// weight alone satisfies the total-order + PID-tie-break invariant.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].weight < entries[j].weight; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}

	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.pid
	}
	return out
}

// streamWeight computes the 32-bit reorder weight for one stream:
//
//	V . . . . . . C A S L T x x x x P P P P P P P P P P P P P P P P
//
// V=video, C=preferred-codec-match (the original's STREAMTYPE_MASK:
// stream->GetType() == type), A=audio, S=subtitle, L=language-match,
// T=audio-type-match, x=audio-type priority (4-audioType),
// P=0xFFFF-(PID&0xFFFF) tie-break.
//
// preferredType is the DVB audio-type descriptor (normal, impaired, ...);
// preferredCodec is the client's preferred audio codec (e.g. CodecAc3 to
// prefer an AC-3 track over an MPEG-audio track carrying the same
// language). These are two independent preferences in the original and
// must not be conflated into one bit.
func streamWeight(info StreamInfo, preferredLang string, preferredType AudioType, preferredCodec CodecType) uint32 {
	var w uint32

	switch info.Class {
	case ClassVideo:
		w |= 0x80000000
	case ClassAudio:
		w |= 0x00800000
	case ClassSubtitle:
		w |= 0x00400000
	}

	if info.Class == ClassAudio || info.Class == ClassSubtitle {
		if preferredLang != "" && languageBaseMatch(info.Language, preferredLang) {
			w |= 0x00200000
		}
	}

	if info.Class == ClassAudio {
		if preferredCodec != CodecUnknown && info.Codec == preferredCodec {
			w |= 0x01000000
		}
		if info.AudioType == preferredType {
			w |= 0x00100000
		}
		priority := 4 - int(info.AudioType)
		if priority < 0 {
			priority = 0
		}
		w |= uint32(priority&0xF) << 16
	}

	w |= 0xFFFF - (uint32(info.PID) & 0xFFFF)
	return w
}

// languageBaseMatch compares two ISO-639 tags by base language (e.g. "eng"
// and "en" both carry language.English as their Base()), so a three-letter
// broadcast tag matches a two-letter client preference. Falls back to exact
// string comparison if either tag fails to parse.
func languageBaseMatch(streamLang, preferredLang string) bool {
	a, errA := language.Parse(streamLang)
	b, errB := language.Parse(preferredLang)
	if errA != nil || errB != nil {
		return streamLang == preferredLang
	}
	baseA, _ := a.Base()
	baseB, _ := b.Base()
	return baseA == baseB
}

// StreamPacket is an assembled elementary-stream payload emitted by a
// StreamParser.
type StreamPacket struct {
	PID         int
	Class       ContentClass
	FrameType   FrameType
	RawPTS      int64
	RawDTS      int64
	NormPTS     int64
	NormDTS     int64
	Duration    int64 // in 90kHz ticks
	Payload     []byte
}

func (p StreamPacket) String() string {
	return fmt.Sprintf("pid=%d class=%s frame=%s pts=%d dts=%d dur=%d len=%d",
		p.PID, p.Class, p.FrameType, p.NormPTS, p.NormDTS, p.Duration, len(p.Payload))
}
