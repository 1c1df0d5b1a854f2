// Package live implements the per-session channel streamer described in
// spec.md §4.8: a channel-switch state machine, a receiver goroutine that
// drains the tuner device into ring buffers via a DemuxerBundle, and
// per-packet MsgPacket emission to the owning session's send queue.
// Grounded on the original's livestreamer.cpp (retry cadence, attach/ingest
// split, I-frame gate, signal-loss detection) and the teacher's
// errgroup-based goroutine lifecycle idiom.
package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pipelka/robotv-go/internal/channelcache"
	"github.com/pipelka/robotv-go/internal/hostapi"
	"github.com/pipelka/robotv-go/internal/tsdemux"
	"github.com/pipelka/robotv-go/internal/wire"
)

// State is the channel-switch finite state machine (spec.md §4.8).
type State int

const (
	StateDetached State = iota
	StateSwitching
	StateAttached
	StateSignalLost
	StatePausedAttached
)

func (s State) String() string {
	switch s {
	case StateSwitching:
		return "switching"
	case StateAttached:
		return "attached"
	case StateSignalLost:
		return "signal_lost"
	case StatePausedAttached:
		return "paused_attached"
	default:
		return "detached"
	}
}

// Config tunes retry/timeout behavior.
type Config struct {
	ScanTimeout  time.Duration // default 10s: bounds channel-switch retries and signal-loss detection
	RetrySpin    time.Duration // default 10ms: delay between trySwitch attempts
	WaitIFrame   bool          // gate emission until the first I-frame, per session
	RawPTS       bool          // when true, emit raw broadcast-clock PTS/DTS instead of normalized
	ProtocolVersion uint32     // client's LOGIN-announced protocol version (gates MUXPKT's duration field)
	RingAudioSize int          // per-stream ring buffer bytes for audio/subtitle/teletext parsers; 0 uses tsdemux's default
	RingVideoSize int          // per-stream ring buffer bytes for video parsers; 0 uses tsdemux's default
}

// DefaultConfig matches spec.md §4.8's defaults.
func DefaultConfig() Config {
	return Config{
		ScanTimeout: 10 * time.Second,
		RetrySpin:   10 * time.Millisecond,
		WaitIFrame:  true,
	}
}

// Sink receives framed output from the streamer: MUXPKT, STREAMCHANGE,
// STATUS, and OSD status messages (the streamer sends no SIGNALINFO
// frames). A Session implements this
// and forwards to its SendQueue; the streamer holds only this one-way
// callback, never a back-reference into the session (spec.md §9 DESIGN
// NOTES: "the streamer holds a channel sender").
type Sink interface {
	QueueMessage(msg *wire.MsgPacket)
}

// Streamer owns one active channel attach for a session.
type Streamer struct {
	host  hostapi.Host
	cache *channelcache.Cache
	sink  Sink
	cfg   Config
	log   *slog.Logger

	mu      sync.Mutex
	state   State
	uid     hostapi.UID
	device  hostapi.Device
	bundle  *tsdemux.DemuxerBundle
	ring    *tsdemux.RingBuffer
	iframeGateOpen bool
	requestStreamChange bool
	lastTick time.Time

	preferredLang      string
	preferredAudioType tsdemux.AudioType
	preferredCodec     tsdemux.CodecType

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a streamer bound to host and cache, delivering output to sink.
func New(host hostapi.Host, cache *channelcache.Cache, sink Sink, cfg Config, log *slog.Logger) *Streamer {
	return &Streamer{
		host:  host,
		cache: cache,
		sink:  sink,
		cfg:   cfg,
		log:   log,
		state: StateDetached,
		ring:  tsdemux.NewRingBuffer(4 * 1024 * 1024),
	}
}

// State returns the current FSM state.
func (s *Streamer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SwitchChannel attaches the streamer to uid, replacing any existing
// attach. A second switch request invalidates the first: Detach is called
// before the new attempt begins (spec.md §5 cancellation semantics,
// "re-entrant ... invalidates the first").
func (s *Streamer) SwitchChannel(ctx context.Context, uid hostapi.UID) {
	s.Detach()

	s.mu.Lock()
	s.uid = uid
	s.state = StateSwitching
	s.iframeGateOpen = !s.cfg.WaitIFrame
	s.requestStreamChange = true
	s.lastTick = time.Now()
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	g, runCtx := errgroup.WithContext(runCtx)

	s.mu.Lock()
	s.cancel = cancel
	s.group = g
	s.mu.Unlock()

	g.Go(func() error {
		return s.trySwitchLoop(runCtx, uid)
	})
}

// trySwitchLoop retries trySwitch every RetrySpin until it succeeds or
// ScanTimeout elapses, at which point the classified failure is published
// and the retry clock resets (spec.md §4.8).
func (s *Streamer) trySwitchLoop(ctx context.Context, uid hostapi.UID) error {
	deadline := time.Now().Add(s.cfg.ScanTimeout)

	for {
		device, err := s.host.Switch(ctx, uid)
		if err == nil {
			return s.attach(ctx, uid, device)
		}

		var tunerErr *hostapi.TunerError
		failure := hostapi.FailureError
		if errors.As(err, &tunerErr) {
			failure = tunerErr.Failure
		}

		if time.Now().After(deadline) {
			s.publishTunerFailure(failure)
			deadline = time.Now().Add(s.cfg.ScanTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.RetrySpin):
		}
	}
}

func (s *Streamer) publishTunerFailure(f hostapi.TunerFailure) {
	text := "channel switch failed"
	switch f {
	case hostapi.FailureEncrypted:
		text = "Unable to decrypt channel"
	case hostapi.FailureAllTunersBusy:
		text = "All tuners are busy"
	case hostapi.FailureBlockedByRecording:
		text = "Blocked by an active recording"
	}
	s.sink.QueueMessage(wire.NewOsdStatusMessage(0, text))
}

// attach acquires the device, derives/updates the cached bundle, creates
// demuxers, and starts receiving (spec.md §4.8 Attach).
func (s *Streamer) attach(ctx context.Context, uid hostapi.UID, device hostapi.Device) error {
	cached, _ := s.cache.GetOrAddFromChannel(ctx, uid)

	fresh, ok := s.host.ChannelStreamInfo(uid)
	if !ok {
		fresh = tsdemux.NewStreamBundle()
	}
	if cached != nil && cached.IsMetaOf(fresh) {
		fresh = cached
	} else {
		s.cache.UpdateIfDifferent(uid, fresh)
	}

	ringSizes := tsdemux.RingSizes{Audio: s.cfg.RingAudioSize, Video: s.cfg.RingVideoSize}

	s.mu.Lock()
	s.device = device
	s.bundle = tsdemux.NewDemuxerBundle(tsdemux.ListenerFunc(s.onStreamPacket), ringSizes)
	s.bundle.UpdateFrom(fresh)
	s.state = StateAttached
	s.lastTick = time.Now()
	s.mu.Unlock()

	device.SetReceiver(s.receive)

	s.group.Go(func() error {
		return s.ingestLoop(ctx)
	})
	s.group.Go(func() error {
		return s.signalLossLoop(ctx)
	})

	return nil
}

// receive is called on the device's own goroutine; it must not block, per
// spec.md §9 DESIGN NOTES, so it only copies into the ring.
func (s *Streamer) receive(b []byte) {
	s.mu.Lock()
	ring := s.ring
	s.mu.Unlock()
	if ring == nil {
		return
	}
	n := ring.Put(b)
	if n < len(b) {
		ring.ReportOverflow(len(b) - n)
	}
}

// ingestLoop runs on the streamer's own goroutine: it dequeues
// TS-packet-aligned bytes from the ring and feeds the bundle.
func (s *Streamer) ingestLoop(ctx context.Context) error {
	const tsPacketSize = 188

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.mu.Lock()
		ring := s.ring
		bundle := s.bundle
		s.mu.Unlock()

		buf := ring.Get()
		n := len(buf) - (len(buf) % tsPacketSize)
		if n == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		for off := 0; off < n; off += tsPacketSize {
			bundle.ProcessTsPacket(buf[off : off+tsPacketSize])
		}
		ring.Del(n)
	}
}

// signalLossLoop monitors lastTick and emits the SignalLost status
// transition per spec.md §4.8; SignalRestored is emitted by onStreamPacket
// when the next frame arrives.
func (s *Streamer) signalLossLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ScanTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.mu.Lock()
			since := time.Since(s.lastTick)
			state := s.state
			s.mu.Unlock()

			if state == StateAttached && since > s.cfg.ScanTimeout {
				s.mu.Lock()
				s.state = StateSignalLost
				s.mu.Unlock()
				s.sink.QueueMessage(wire.NewStatus(0, wire.StatusSignalLost))
			}
		}
	}
}

// onStreamPacket is the DemuxerBundle's listener callback, invoked on the
// ingest goroutine for every assembled elementary-stream frame.
func (s *Streamer) onStreamPacket(pkt tsdemux.StreamPacket) {
	s.mu.Lock()
	wasSignalLost := s.state == StateSignalLost
	if wasSignalLost {
		s.state = StateAttached
	}
	s.lastTick = time.Now()

	if !s.iframeGateOpen {
		if pkt.Class == tsdemux.ClassVideo && pkt.FrameType == tsdemux.FrameI {
			s.iframeGateOpen = true
		} else {
			s.mu.Unlock()
			return
		}
	}

	requestChange := s.requestStreamChange && s.bundle.IsReady()
	if requestChange {
		s.requestStreamChange = false
	}
	bundle := s.bundle
	rawPTS := s.cfg.RawPTS
	protocolVersion := s.cfg.ProtocolVersion
	s.mu.Unlock()

	if wasSignalLost {
		s.sink.QueueMessage(wire.NewStatus(0, wire.StatusSignalRestored))
		requestChange = true
	}

	if requestChange {
		s.emitStreamChange(bundle)
	}

	s.emitMuxPacket(pkt, rawPTS, protocolVersion)
}

func (s *Streamer) emitStreamChange(bundle *tsdemux.DemuxerBundle) {
	lang, audioType, codec := s.preferredSelectors()
	order := bundle.ReorderStreams(lang, audioType, codec)

	sb := bundle.Snapshot()
	entries := make([]wire.StreamChangeEntry, 0, len(order))
	for _, pid := range order {
		info, ok := sb.Get(pid)
		if !ok {
			continue
		}
		entries = append(entries, streamChangeEntry(info))
	}

	s.sink.QueueMessage(wire.NewStreamChange(0, entries))
}

func streamChangeEntry(info tsdemux.StreamInfo) wire.StreamChangeEntry {
	e := wire.StreamChangeEntry{
		PID:       uint16(info.PID),
		CodecName: info.Codec.String(),
		Language:  info.Language,
	}
	switch info.Class {
	case tsdemux.ClassAudio:
		e.SampleRate = info.Audio.SampleRate
		e.Channels = info.Audio.Channels
	case tsdemux.ClassVideo:
		e.Width = info.Video.Width
		e.Height = info.Video.Height
		e.AspectNum = info.Video.AspectNum
		e.AspectDen = info.Video.AspectDen
		e.FpsNum = info.Video.FpsNum
		e.FpsDen = info.Video.FpsDen
	}
	return e
}

func (s *Streamer) emitMuxPacket(pkt tsdemux.StreamPacket, rawPTS bool, protocolVersion uint32) {
	pts, dts := pkt.NormPTS, pkt.NormDTS
	if rawPTS {
		pts, dts = pkt.RawPTS, pkt.RawDTS
	}

	msg := wire.NewMuxPacket(0, wire.MuxPacketParams{
		PID:             uint16(pkt.PID),
		PTS:             pts,
		DTS:             dts,
		Duration:        uint32(pkt.Duration),
		FrameType:       uint16(pkt.FrameType),
		Payload:         pkt.Payload,
		ProtocolVersion: protocolVersion,
	})
	s.sink.QueueMessage(msg)
}

// preferredSelectors returns the session's preferred language/audio-type/
// codec for reordering, as last set via SetPreferences.
func (s *Streamer) preferredSelectors() (string, tsdemux.AudioType, tsdemux.CodecType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preferredLang, s.preferredAudioType, s.preferredCodec
}

// SetPreferences updates the language/audio-type/preferred-codec used for
// stream reordering on the next stream-change. preferredCodec lets a
// client prefer one audio codec over another (e.g. AC-3 over MPEG audio)
// when two tracks otherwise tie on language; CodecUnknown means no codec
// preference.
func (s *Streamer) SetPreferences(lang string, audioType tsdemux.AudioType, preferredCodec tsdemux.CodecType) {
	s.mu.Lock()
	s.preferredLang = lang
	s.preferredAudioType = audioType
	s.preferredCodec = preferredCodec
	s.mu.Unlock()
}

// SetProtocolVersion records the client's LOGIN-announced protocol version,
// gating MUXPKT's duration field (wire.ProtocolVersionDuration) and any
// future version-conditional wire behavior.
func (s *Streamer) SetProtocolVersion(version uint32) {
	s.mu.Lock()
	s.cfg.ProtocolVersion = version
	s.mu.Unlock()
}

// SetWaitIFrame overrides the I-frame gating behavior for the next
// SwitchChannel call, letting a session request immediate playback on a
// per-open basis (CHANNELSTREAM_OPEN's waitIFrame flag) without changing the
// streamer's default configuration.
func (s *Streamer) SetWaitIFrame(wait bool) {
	s.mu.Lock()
	s.cfg.WaitIFrame = wait
	s.mu.Unlock()
}

// Detach cancels the current attach with a 5s grace, draining the receiver
// goroutine; if it has not observed cancellation by then it is forced
// (spec.md §5 cancellation semantics).
func (s *Streamer) Detach() {
	s.mu.Lock()
	cancel := s.cancel
	group := s.group
	device := s.device
	s.device = nil
	s.state = StateDetached
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		if group != nil {
			_ = group.Wait()
		}
		close(done)
	}()

	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()

	cancel()
	select {
	case <-done:
	case <-timer.C:
	}

	if device != nil {
		device.Detach()
	}

	s.sink.QueueMessage(wire.NewDetach(0))
}
