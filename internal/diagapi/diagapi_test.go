package diagapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pipelka/robotv-go/internal/channelcache"
	"github.com/pipelka/robotv-go/internal/hostapi"
	"github.com/pipelka/robotv-go/internal/server"
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

func newTestTCPServer(t *testing.T) *server.Server {
	t.Helper()
	dir := t.TempDir()
	allowPath := filepath.Join(dir, "allowed_hosts.conf")
	if err := os.WriteFile(allowPath, []byte("127.0.0.1/32\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.AllowListPath = allowPath
	cfg.AllowListReloadCron = ""

	host := fakeHost{}
	cache := channelcache.New(host)
	srv := server.New(cfg, host, cache, discardLogger())

	go srv.ListenAndServe()
	t.Cleanup(srv.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for srv.ServerID() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestTCPServer(t)
	diag := New("127.0.0.1:0", srv, "test-version", discardLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	diag.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if body.Status != "healthy" {
		t.Fatalf("expected status healthy, got %q", body.Status)
	}
	if body.Version != "test-version" {
		t.Fatalf("expected version echoed, got %q", body.Version)
	}
	if body.CPU.Cores == 0 {
		t.Fatal("expected a non-zero core count")
	}
}

func TestSessionsEndpointEmpty(t *testing.T) {
	srv := newTestTCPServer(t)
	diag := New("127.0.0.1:0", srv, "test-version", discardLogger())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	diag.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Sessions []sessionInfo `json:"sessions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding sessions response: %v", err)
	}
	if len(body.Sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(body.Sessions))
	}
}

func TestSessionsEndpointReflectsConnectedClient(t *testing.T) {
	srv := newTestTCPServer(t)
	diag := New("127.0.0.1:0", srv, "test-version", discardLogger())

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := wire.NewMsgPacket(wire.ChannelRequestResponse, wire.OpGetTime, 1)
	if _, err := req.WriteTo(conn); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := wire.Decode(conn); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && srv.SessionCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	rr := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	diag.router.ServeHTTP(rr, httpReq)

	var body struct {
		Sessions []sessionInfo `json:"sessions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding sessions response: %v", err)
	}
	if len(body.Sessions) != 1 {
		t.Fatalf("expected 1 connected session, got %d", len(body.Sessions))
	}
}

func TestShutdown(t *testing.T) {
	srv := newTestTCPServer(t)
	diag := New("127.0.0.1:0", srv, "test-version", discardLogger())

	go diag.ListenAndServe()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := diag.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
