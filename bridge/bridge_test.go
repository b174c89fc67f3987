package bridge

import (
	"bytes"
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hypebeast/go-osc/osc"
)

func rms(t *testing.T, level float32) []byte {
	t.Helper()
	msg := osc.NewMessage(Logged)
	msg.Append(int32(1), int32(0), level)
	data, err := msg.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return pc
}

func setup(t *testing.T) (*Bridge, net.PacketConn, *websocket.Conn) {
	t.Helper()
	target := listenUDP(t)
	t.Cleanup(func() { target.Close() })

	b, err := New(target.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })

	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ws.Close() })
	return b, target, ws
}

func TestWebSocketToUDP(t *testing.T) {
	_, target, ws := setup(t)
	want := rms(t, 0.5)
	if err := ws.WriteMessage(websocket.BinaryMessage, want); err != nil {
		t.Fatal(err)
	}

	target.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := target.ReadFrom(buf)
	if err != nil {
		t.Fatalf("no UDP packet: %v", err)
	}
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("relayed %x, want %x", buf[:n], want)
	}
}

func TestUDPToWebSocket(t *testing.T) {
	b, _, ws := setup(t)
	in := listenUDP(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.ServeUDP(ctx, in) }()

	sender, err := net.Dial("udp", in.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	// The client registers right after the upgrade; wait for it.
	deadline := time.Now().Add(5 * time.Second)
	for b.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	want := rms(t, 0.25)
	if _, err := sender.Write(want); err != nil {
		t.Fatal(err)
	}

	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, got, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("no WebSocket frame: %v", err)
	}
	if kind != websocket.BinaryMessage || !bytes.Equal(got, want) {
		t.Errorf("got %d %x, want binary %x", kind, got, want)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("ServeUDP() = %v", err)
	}
}

func TestClientsUnregisterOnClose(t *testing.T) {
	b, _, ws := setup(t)
	deadline := time.Now().Add(5 * time.Second)
	for b.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()
	for b.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := b.Clients(); n != 0 {
		t.Errorf("Clients() = %d after close, want 0", n)
	}
}
