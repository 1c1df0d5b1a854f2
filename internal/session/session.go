// Package session implements the per-client request/response loop
// (spec.md §4.10's "Spawn a Session", §6.3 Session requests, §7 error
// handling). One Session owns one TCP connection, one LiveStreamer, and one
// SendQueue; it dispatches incoming opcodes and relays outgoing
// notifications and live-stream packets to its queue. Grounded on the
// teacher's cyclic_buffer.go goroutine-lifecycle idiom and
// oklog/ulid/v2-based per-request correlation IDs, per SPEC_FULL.md §B.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/pipelka/robotv-go/internal/channelcache"
	"github.com/pipelka/robotv-go/internal/hostapi"
	"github.com/pipelka/robotv-go/internal/live"
	"github.com/pipelka/robotv-go/internal/sendqueue"
	"github.com/pipelka/robotv-go/internal/tsdemux"
	"github.com/pipelka/robotv-go/internal/wire"
)

// MinProtocolVersion is the fixed floor below which LOGIN is rejected; it is
// a constant and is not read from configuration.
const MinProtocolVersion = 3

// Config carries the relay tuning knobs a Session threads into its
// LiveStreamer and SendQueue (spec.md §6.4's relay.* settings): per-stream
// ring buffer sizes and the paused-queue byte threshold at which delivery
// auto-promotes to Timeshift mode. A zero Config falls back to each
// collaborator's own DefaultConfig values.
type Config struct {
	RingAudioSize      int
	RingVideoSize      int
	TimeshiftThreshold int64
	ScanTimeout        time.Duration
}

// Session represents one connected client.
type Session struct {
	conn   net.Conn
	clientID   uint16
	externalID uuid.UUID // opaque id surviving clientID reuse, for diagnostics/logging
	host   hostapi.Host
	cache  *channelcache.Cache
	log    *slog.Logger

	queue    *sendqueue.Queue
	streamer *live.Streamer

	connectedAt time.Time

	mu              sync.Mutex
	clientName      string
	protocolVersion uint32
	loggedIn        bool
	lastActivity    atomic.Int64 // unix nanos

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a session for an accepted connection. clientID is the
// monotonic id assigned by AcceptLoop.
func New(conn net.Conn, clientID uint16, host hostapi.Host, cache *channelcache.Cache, log *slog.Logger, cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	externalID := uuid.New()
	s := &Session{
		conn:        conn,
		clientID:    clientID,
		externalID:  externalID,
		host:        host,
		cache:       cache,
		log:         log.With(slog.Uint64("client_id", uint64(clientID)), slog.String("session_id", externalID.String())),
		connectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		closed:      make(chan struct{}),
	}
	s.touch()

	sqCfg := sendqueue.DefaultConfig()
	if cfg.TimeshiftThreshold > 0 {
		sqCfg.TimeshiftThreshold = cfg.TimeshiftThreshold
	}
	s.queue = sendqueue.New(conn, sqCfg)

	liveCfg := live.DefaultConfig()
	liveCfg.RingAudioSize = cfg.RingAudioSize
	liveCfg.RingVideoSize = cfg.RingVideoSize
	if cfg.ScanTimeout > 0 {
		liveCfg.ScanTimeout = cfg.ScanTimeout
	}
	s.streamer = live.New(host, cache, s, liveCfg, s.log)

	return s
}

// QueueMessage implements live.Sink, relaying streamer output onto the
// session's send queue.
func (s *Session) QueueMessage(msg *wire.MsgPacket) {
	class := sendqueue.ClassOther
	if msg.ChannelID == wire.ChannelStream && msg.Opcode == wire.OpStreamMuxPkt {
		class = sendqueue.ClassAudioVideo
	}
	_ = s.queue.Enqueue(class, msg)
}

// Serve runs the session's request/response read loop until the
// connection closes or an unrecoverable error occurs.
func (s *Session) Serve() {
	defer s.shutdown()

	for {
		req, err := wire.Decode(s.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("session read error", slog.String("error", err.Error()))
			}
			return
		}
		s.touch()
		s.handle(req)
	}
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// IsInactive reports whether the session has seen no activity for timeout.
func (s *Session) IsInactive(timeout time.Duration) bool {
	last := time.Unix(0, s.lastActivity.Load())
	return time.Since(last) > timeout
}

func (s *Session) correlationID() string {
	return ulid.Make().String()
}

func (s *Session) handle(req *wire.MsgPacket) {
	corrID := s.correlationID()
	log := s.log.With(slog.String("correlation_id", corrID), slog.String("opcode", opcodeName(req.Opcode)))

	switch wire.Classify(req.Opcode) {
	case wire.OpcodeUnknown:
		log.Warn("unknown opcode")
		s.QueueMessage(wire.NewErrorResponse(req.RequestID, "unknown opcode"))
		return
	case wire.OpcodeRecognizedNotImplemented:
		log.Debug("recognized but unimplemented opcode")
		s.QueueMessage(wire.NewErrorResponse(req.RequestID, "not implemented"))
		return
	}

	switch req.Opcode {
	case wire.OpLogin:
		s.handleLogin(req)
	case wire.OpGetTime:
		s.handleGetTime(req)
	case wire.OpEnableStatusInterface:
		// acknowledged implicitly: status/OSD notifications already flow
		// once queued; no payload to build for this request.
	case wire.OpChannelStreamOpen:
		s.handleStreamOpen(req)
	case wire.OpChannelStreamClose:
		s.streamer.Detach()
	case wire.OpChannelStreamPause:
		s.handleStreamPause(req)
	case wire.OpChannelStreamRequest:
		s.queue.Request()
	case wire.OpChannelStreamSignal:
		// no SIGNALINFO frame is built for this request, here or by the
		// streamer; the request gets no response payload.
	default:
		log.Warn("opcode classified implemented but has no handler")
		s.QueueMessage(wire.NewErrorResponse(req.RequestID, "not implemented"))
	}
}

func (s *Session) handleLogin(req *wire.MsgPacket) {
	req.Reset()
	name, _ := req.GetString()
	version, _ := req.GetU32()

	if version < MinProtocolVersion {
		s.log.Warn("login rejected: protocol version below floor",
			slog.Uint64("client_version", uint64(version)), slog.Int("min_version", MinProtocolVersion))
		s.QueueMessage(wire.NewErrorResponse(req.RequestID, "protocol version too old"))
		return
	}

	s.mu.Lock()
	s.clientName = name
	s.protocolVersion = version
	s.loggedIn = true
	s.mu.Unlock()

	s.streamer.SetProtocolVersion(version)
	s.streamer.SetPreferences("", tsdemux.AudioTypeNormal, tsdemux.CodecUnknown)

	resp := wire.NewMsgPacket(wire.ChannelRequestResponse, wire.OpLogin, req.RequestID)
	resp.PutString("robotvd")
	s.QueueMessage(resp)
}

func (s *Session) handleGetTime(req *wire.MsgPacket) {
	resp := wire.NewMsgPacket(wire.ChannelRequestResponse, wire.OpGetTime, req.RequestID)
	resp.PutS64(time.Now().Unix())
	s.QueueMessage(resp)
}

func (s *Session) handleStreamOpen(req *wire.MsgPacket) {
	req.Reset()
	uid, _ := req.GetU32()
	waitIFrame, _ := req.GetU8()

	s.streamer.SetWaitIFrame(waitIFrame != 0)
	s.streamer.SwitchChannel(s.ctx, hostapi.UID(uid))

	resp := wire.NewMsgPacket(wire.ChannelRequestResponse, wire.OpChannelStreamOpen, req.RequestID)
	s.QueueMessage(resp)
}

func (s *Session) handleStreamPause(req *wire.MsgPacket) {
	req.Reset()
	pause, _ := req.GetU8()
	s.queue.Pause(pause != 0)

	resp := wire.NewMsgPacket(wire.ChannelRequestResponse, wire.OpChannelStreamPause, req.RequestID)
	s.QueueMessage(resp)
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.streamer.Detach()
		s.queue.Close()
		_ = s.conn.Close()
		close(s.closed)
	})
}

// Close shuts the session down from outside its Serve loop (e.g. AcceptLoop
// reaping an inactive session).
func (s *Session) Close() {
	s.shutdown()
}

// Done returns a channel closed once the session has shut down.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// ClientID returns the monotonic id AcceptLoop assigned this session.
func (s *Session) ClientID() uint16 { return s.clientID }

// ExternalID returns the session's opaque, globally-unique id. Unlike
// ClientID (a small monotonic counter AcceptLoop recycles across the
// process lifetime), this id is safe to use as a stable external
// identifier, e.g. for log correlation or a diagnostics API session
// handle that must not collide with a previous connection's id.
func (s *Session) ExternalID() uuid.UUID { return s.externalID }

// RemoteAddr returns the connected peer's address.
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr().String() }

// ConnectedSince returns how long ago the session accepted its connection.
func (s *Session) ConnectedSince() time.Duration { return time.Since(s.connectedAt) }

// StreamState returns the session's live-streamer FSM state, for the
// diagnostics API.
func (s *Session) StreamState() live.State { return s.streamer.State() }

func opcodeName(op wire.Opcode) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

var opcodeNames = map[wire.Opcode]string{
	wire.OpLogin:                 "LOGIN",
	wire.OpGetTime:                "GETTIME",
	wire.OpEnableStatusInterface:  "ENABLESTATUSINTERFACE",
	wire.OpUpdateChannels:         "UPDATECHANNELS",
	wire.OpChannelFilter:          "CHANNELFILTER",
	wire.OpChannelStreamOpen:      "CHANNELSTREAM_OPEN",
	wire.OpChannelStreamClose:     "CHANNELSTREAM_CLOSE",
	wire.OpChannelStreamPause:     "CHANNELSTREAM_PAUSE",
	wire.OpChannelStreamRequest:   "CHANNELSTREAM_REQUEST",
	wire.OpChannelStreamSignal:    "CHANNELSTREAM_SIGNAL",
}
