package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pipelka/robotv-go/internal/channelcache"
	"github.com/pipelka/robotv-go/internal/hostapi"
	"github.com/pipelka/robotv-go/internal/tsdemux"
	"github.com/pipelka/robotv-go/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHost struct{}

func (fakeHost) Switch(context.Context, hostapi.UID) (hostapi.Device, error) { return nil, nil }
func (fakeHost) Channel(hostapi.UID) (hostapi.Channel, bool)                 { return hostapi.Channel{}, false }
func (fakeHost) ChannelStreamInfo(hostapi.UID) (*tsdemux.StreamBundle, bool) {
	return tsdemux.NewStreamBundle(), true
}
func (fakeHost) StateVersion() (uint64, uint64, uint64) { return 0, 0, 0 }
func (fakeHost) Timers() []hostapi.Timer                { return nil }
func (fakeHost) Recordings() []hostapi.Recording        { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	allowPath := filepath.Join(dir, "allowed_hosts.conf")
	if err := os.WriteFile(allowPath, []byte("127.0.0.1/32\n::1/128\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.AllowListPath = allowPath
	cfg.AllowListReloadCron = ""

	host := fakeHost{}
	cache := channelcache.New(host)
	s := New(cfg, host, cache, discardLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()

	deadline := time.Now().Add(2 * time.Second)
	for s.ln == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.ln == nil {
		t.Fatal("server never started listening")
	}

	t.Cleanup(s.Stop)
	return s
}

func TestServerAcceptsAllowedConnection(t *testing.T) {
	s := newTestServer(t)

	conn, err := net.Dial("tcp", s.ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := wire.NewMsgPacket(wire.ChannelRequestResponse, wire.OpGetTime, 1)
	if _, err := req.WriteTo(conn); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := wire.Decode(conn)
	if err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Opcode != wire.OpGetTime {
		t.Fatalf("expected OpGetTime response, got %v", resp.Opcode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.SessionCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	if s.SessionCount() != 1 {
		t.Fatalf("expected 1 active session, got %d", s.SessionCount())
	}
}

func TestServerSessionsSnapshot(t *testing.T) {
	s := newTestServer(t)

	conn, err := net.Dial("tcp", s.ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(s.Sessions()) == 0 {
		time.Sleep(time.Millisecond)
	}
	if len(s.Sessions()) != 1 {
		t.Fatalf("expected 1 session in snapshot, got %d", len(s.Sessions()))
	}
}

func TestServerStopClosesSessions(t *testing.T) {
	s := newTestServer(t)

	conn, err := net.Dial("tcp", s.ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.SessionCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	s.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected connection to be closed after Stop")
	}
}

func TestServerID(t *testing.T) {
	s := newTestServer(t)
	if s.ServerID() == 0 {
		t.Fatal("expected a non-zero server id")
	}
}
