package server

import (
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pipelka/robotv-go/internal/channelcache"
	"github.com/pipelka/robotv-go/internal/hostapi"
	"github.com/pipelka/robotv-go/internal/session"
)

// tcpKeepIdle/Interval/Count match server.c's socket tuning exactly
// (spec.md §4.10 / SPEC_FULL.md §C), reproduced here with stdlib
// net.TCPConn.SetKeepAlive/SetKeepAlivePeriod for the coarse on/off +
// period knobs Go exposes portably. Per-field KEEPIDLE/KEEPINTVL/KEEPCNT
// granularity is set in setPlatformKeepAlive (keepalive_linux.go), a small justified
// syscall-level helper: no third-party library in the pack wraps Linux
// per-field TCP keepalive tuning.
const (
	tcpKeepIdle     = 30 * time.Second
	tcpKeepInterval = 15 * time.Second
	tcpKeepCount    = 5
)

// Config tunes the accept loop.
type Config struct {
	ListenAddr          string
	AllowListPath       string
	AllowListReloadCron string // robfig/cron spec, e.g. "@every 30s"
	SessionTimeout      time.Duration
	RecordingsTimersNotifyInterval time.Duration // rate limit for reporting recordings/timers changes

	// ScanTimeout is threaded into every accepted session's LiveStreamer as
	// live.Config.ScanTimeout, bounding channel-switch retries and
	// signal-loss detection. Per the original (livestreamer.cpp's
	// m_scanTimeout), this is the same -t/--stream-timeout value as
	// SessionTimeout, not an independently configured knob.
	ScanTimeout time.Duration

	// Relay tuning, threaded into every accepted session's LiveStreamer/
	// SendQueue (spec.md §6.4's relay.* settings). Zero values fall back to
	// session.Config's own defaults.
	RingAudioSize      int
	RingVideoSize      int
	TimeshiftThreshold int64
}

// DefaultConfig matches spec.md §4.10/§6.4's defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:                      ":34892",
		AllowListPath:                   "allowed_hosts.conf",
		AllowListReloadCron:             "@every 30s",
		SessionTimeout:                  5 * time.Minute,
		RecordingsTimersNotifyInterval:  10 * time.Second,
		ScanTimeout:                     10 * time.Second,
		RingAudioSize:                   64 * 1024,
		RingVideoSize:                   2 * 1024 * 1024,
		TimeshiftThreshold:              32 * 1024 * 1024,
	}
}

// Server runs the TCP accept loop: one listen socket, a source-address
// allow-list, and tick-driven housekeeping (spec.md §4.10). ServerId is
// time(now) XOR pid, assigned once at startup.
type Server struct {
	cfg   Config
	host  hostapi.Host
	cache *channelcache.Cache
	log   *slog.Logger

	serverID uint64

	allowList *AllowList
	cron      *cron.Cron

	ln net.Listener

	mu            sync.Mutex
	sessions      map[uint16]*session.Session
	nextClientID  uint32
	lastChannels  uint64
	lastTimers    uint64
	lastRecs      uint64
	lastRecsTimersNotify time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a Server bound to host/cache, not yet listening.
func New(cfg Config, host hostapi.Host, cache *channelcache.Cache, log *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		host:      host,
		cache:     cache,
		log:       log,
		serverID:  uint64(time.Now().Unix()) ^ uint64(os.Getpid()),
		allowList: NewAllowList(cfg.AllowListPath),
		sessions:  make(map[uint16]*session.Session),
		stopCh:    make(chan struct{}),
	}
}

// ServerID returns the instance's time^pid identifier.
func (s *Server) ServerID() uint64 {
	return s.serverID
}

// Addr returns the listener's actual bound address, useful when
// Config.ListenAddr uses port 0. Empty until ListenAndServe has started
// listening.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// ListenAndServe opens the listen socket and runs the accept loop until
// Stop is called or an unrecoverable listen error occurs.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("listening",
		slog.String("addr", s.cfg.ListenAddr),
		slog.Uint64("server_id", s.serverID),
		slog.String("allow_list_source", s.allowList.Source()))

	if s.cfg.AllowListReloadCron != "" {
		s.cron = cron.New()
		_, err := s.cron.AddFunc(s.cfg.AllowListReloadCron, s.allowList.Reload)
		if err != nil {
			s.log.Warn("invalid allow-list reload schedule, hot-reload disabled", slog.String("error", err.Error()))
		} else {
			s.cron.Start()
		}
	}

	s.acceptLoop()
	return nil
}

// Stop closes the listen socket and shuts every session down. Safe to call
// more than once (e.g. once explicitly and once via a deferred cleanup).
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.cron != nil {
			s.cron.Stop()
		}
		if s.ln != nil {
			s.ln.Close()
		}

		s.mu.Lock()
		sessions := make([]*session.Session, 0, len(s.sessions))
		for _, sess := range s.sessions {
			sessions = append(sessions, sess)
		}
		s.mu.Unlock()

		for _, sess := range sessions {
			sess.Close()
		}
		s.wg.Wait()
	})
}

// acceptLoop implements spec.md §4.10's 5s-timeout select loop: Go doesn't
// expose select(2) over accept directly, so a TCP deadline on the listener
// stands in for it — Accept returns a timeout error every 5s when idle,
// which is when housekeeping runs.
func (s *Server) acceptLoop() {
	tcpLn, _ := s.ln.(*net.TCPListener)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if tcpLn != nil {
			tcpLn.SetDeadline(time.Now().Add(5 * time.Second))
		}

		conn, err := s.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				s.houseKeep()
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
				s.log.Error("accept failed", slog.String("error", err.Error()))
				return
			}
		}

		s.acceptOne(conn)
	}
}

// acceptOne reloads and enforces the allow-list, configures the socket,
// assigns a monotonic client id, and spawns a Session.
func (s *Server) acceptOne(conn net.Conn) {
	s.allowList.Reload()
	if !s.allowList.Allowed(conn.RemoteAddr()) {
		s.log.Warn("connection rejected by allow-list", slog.String("remote", conn.RemoteAddr().String()))
		conn.Close()
		return
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tuneTCPConn(tcpConn)
	}

	clientID := uint16(atomic.AddUint32(&s.nextClientID, 1))
	sessCfg := session.Config{
		RingAudioSize:      s.cfg.RingAudioSize,
		RingVideoSize:      s.cfg.RingVideoSize,
		TimeshiftThreshold: s.cfg.TimeshiftThreshold,
		ScanTimeout:        s.cfg.ScanTimeout,
	}
	sess := session.New(conn, clientID, s.host, s.cache, s.log, sessCfg)

	s.mu.Lock()
	s.sessions[clientID] = sess
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.Serve()
		s.mu.Lock()
		delete(s.sessions, clientID)
		s.mu.Unlock()
	}()
}

// tuneTCPConn applies SO_KEEPALIVE/TCP_KEEPIDLE=30/TCP_KEEPINTVL=15/
// TCP_KEEPCNT=5/TCP_NODELAY=1 per SUPPLEMENTED FEATURES §C.
func tuneTCPConn(conn *net.TCPConn) {
	conn.SetNoDelay(true)
	conn.SetKeepAlive(true)
	conn.SetKeepAlivePeriod(tcpKeepIdle)
	setPlatformKeepAlive(conn, tcpKeepIdle, tcpKeepInterval, tcpKeepCount)
}

// houseKeep runs on every 5s accept-loop timeout tick: reap inactive
// sessions, and detect channel/recordings/timers changes via the host's
// monotonic state counters (spec.md §4.10.2).
func (s *Server) houseKeep() {
	s.reapInactive()
	s.notifyStateChanges()
}

func (s *Server) reapInactive() {
	s.mu.Lock()
	var stale []*session.Session
	for _, sess := range s.sessions {
		if sess.IsInactive(s.cfg.SessionTimeout) {
			stale = append(stale, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.Close()
	}
}

// notifyStateChanges compares the host's current channel/timer/recording
// state-version counters against the last observed values and logs what
// changed at Debug level: channel-list changes on every tick they occur,
// recordings/timers changes at most once per RecordingsTimersNotifyInterval.
// No message is sent to the sessions.
func (s *Server) notifyStateChanges() {
	channels, timers, recs := s.host.StateVersion()

	s.mu.Lock()
	channelsChanged := channels != s.lastChannels
	timersChanged := timers != s.lastTimers
	recsChanged := recs != s.lastRecs
	dueForRateLimitedNotify := time.Since(s.lastRecsTimersNotify) >= s.cfg.RecordingsTimersNotifyInterval

	s.lastChannels = channels
	s.lastTimers = timers
	s.lastRecs = recs
	if (timersChanged || recsChanged) && dueForRateLimitedNotify {
		s.lastRecsTimersNotify = time.Now()
	}
	s.mu.Unlock()

	if channelsChanged {
		s.log.Debug("channel list changed")
	}

	if (timersChanged || recsChanged) && dueForRateLimitedNotify {
		s.log.Debug("recordings/timers changed (rate limited)")
	}
}

// SessionCount returns the number of currently active sessions, used by
// internal/diagapi's health endpoint.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sessions returns a snapshot of the currently connected sessions, for
// internal/diagapi's read-only session listing endpoint.
func (s *Server) Sessions() []*session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}
