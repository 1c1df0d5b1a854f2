package session

import (
	"context"
	"io"
	"log/slog"
	"net"
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

type fakeDevice struct{}

func (fakeDevice) Descriptor() string                      { return "fake" }
func (fakeDevice) SetReceiver(hostapi.ReceiveFunc)          {}
func (fakeDevice) SignalInfo() (string, uint32, uint32)     { return "locked", 0xFFFF, 0xFFFF }
func (fakeDevice) Detach()                                  {}

type fakeHost struct{}

func (fakeHost) Switch(context.Context, hostapi.UID) (hostapi.Device, error) {
	return fakeDevice{}, nil
}
func (fakeHost) Channel(hostapi.UID) (hostapi.Channel, bool) { return hostapi.Channel{}, false }
func (fakeHost) ChannelStreamInfo(hostapi.UID) (*tsdemux.StreamBundle, bool) {
	return tsdemux.NewStreamBundle(), true
}
func (fakeHost) StateVersion() (uint64, uint64, uint64) { return 0, 0, 0 }
func (fakeHost) Timers() []hostapi.Timer                { return nil }
func (fakeHost) Recordings() []hostapi.Recording        { return nil }

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close() })

	cache := channelcache.New(fakeHost{})
	sess := New(serverConn, 1, fakeHost{}, cache, discardLogger(), Config{})
	go sess.Serve()
	t.Cleanup(sess.Close)

	return sess, clientConn
}

func writeRequest(t *testing.T, conn net.Conn, req *wire.MsgPacket) {
	t.Helper()
	if _, err := req.WriteTo(conn); err != nil {
		t.Fatalf("writing request: %v", err)
	}
}

func readResponse(t *testing.T, conn net.Conn) *wire.MsgPacket {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := wire.Decode(conn)
	if err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestLoginRoundTrip(t *testing.T) {
	_, client := newTestSession(t)

	req := wire.NewMsgPacket(wire.ChannelRequestResponse, wire.OpLogin, 42)
	req.PutString("test-client")
	req.PutU32(5)
	writeRequest(t, client, req)

	resp := readResponse(t, client)
	if resp.Opcode != wire.OpLogin {
		t.Fatalf("expected OpLogin response, got %v", resp.Opcode)
	}
	if resp.RequestID != 42 {
		t.Fatalf("expected echoed request id 42, got %d", resp.RequestID)
	}
	name, err := resp.GetString()
	if err != nil || name != "robotvd" {
		t.Fatalf("expected server name 'robotvd', got %q err=%v", name, err)
	}
}

func TestGetTimeRoundTrip(t *testing.T) {
	_, client := newTestSession(t)

	req := wire.NewMsgPacket(wire.ChannelRequestResponse, wire.OpGetTime, 7)
	writeRequest(t, client, req)

	resp := readResponse(t, client)
	if resp.Opcode != wire.OpGetTime || resp.RequestID != 7 {
		t.Fatalf("unexpected response: opcode=%v requestID=%d", resp.Opcode, resp.RequestID)
	}
	ts, err := resp.GetS64()
	if err != nil {
		t.Fatalf("decoding timestamp: %v", err)
	}
	if time.Since(time.Unix(ts, 0)) > time.Minute {
		t.Fatalf("expected a recent timestamp, got %d", ts)
	}
}

func TestUnknownOpcodeReturnsErrorResponse(t *testing.T) {
	_, client := newTestSession(t)

	req := wire.NewMsgPacket(wire.ChannelRequestResponse, wire.Opcode(0xFEFE), 9)
	writeRequest(t, client, req)

	resp := readResponse(t, client)
	if resp.Opcode != wire.OpErrorResponse || resp.RequestID != 9 {
		t.Fatalf("expected an error response echoing request id 9, got opcode=%v requestID=%d", resp.Opcode, resp.RequestID)
	}
}

func TestChannelStreamOpenAcknowledges(t *testing.T) {
	_, client := newTestSession(t)

	req := wire.NewMsgPacket(wire.ChannelRequestResponse, wire.OpChannelStreamOpen, 11)
	req.PutU32(1) // uid
	req.PutU8(1)  // waitIFrame
	writeRequest(t, client, req)

	resp := readResponse(t, client)
	if resp.Opcode != wire.OpChannelStreamOpen || resp.RequestID != 11 {
		t.Fatalf("expected CHANNELSTREAM_OPEN ack, got opcode=%v requestID=%d", resp.Opcode, resp.RequestID)
	}
}

func TestSessionShutsDownOnConnClose(t *testing.T) {
	sess, client := newTestSession(t)
	client.Close()

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected session to shut down after the peer closed the connection")
	}
}

func TestIsInactive(t *testing.T) {
	sess, _ := newTestSession(t)
	if sess.IsInactive(time.Hour) {
		t.Fatal("a freshly created session should not be inactive")
	}
	sess.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())
	if !sess.IsInactive(time.Minute) {
		t.Fatal("expected session to be inactive after backdating lastActivity")
	}
}
