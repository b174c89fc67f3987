// Package bridge relays OSC packets between UDP and WebSocket clients, so a
// browser can talk to a synth and the other way around.
package bridge

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/hypebeast/go-osc/osc"
)

// Logged is the address whose traffic is logged as it passes.
const Logged = "/rms"

const sendQueue = 64

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Bridge forwards every WebSocket binary frame to a UDP target and every UDP
// packet to all WebSocket clients.
type Bridge struct {
	out      net.Conn
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New returns a bridge sending UDP to target.
func New(target string) (*Bridge, error) {
	out, err := net.Dial("udp", target)
	if err != nil {
		return nil, fmt.Errorf("bridge: dial %s: %w", target, err)
	}
	return &Bridge{
		out:      out,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*client]struct{}),
	}, nil
}

// Close stops forwarding to UDP and disconnects every client.
func (b *Bridge) Close() error {
	b.mu.Lock()
	for c := range b.clients {
		c.conn.Close()
	}
	b.mu.Unlock()
	return b.out.Close()
}

// Clients returns the number of connected WebSocket clients.
func (b *Bridge) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Bridge) observe(from string, data []byte) {
	p, err := osc.ParsePacket(string(data))
	if err != nil {
		log.Debug("Relaying unparsable packet", "from", from, "err", err)
		return
	}
	if msg, ok := p.(*osc.Message); ok && msg.Address == Logged {
		log.Info("RMS", "from", from, "args", msg.Arguments)
	}
}

// ServeHTTP upgrades the request and relays the client's frames to UDP.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("WebSocket upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendQueue)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	log.Info("WebSocket client connected", "remote", r.RemoteAddr)

	go func() {
		for data := range c.send {
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				conn.Close()
				return
			}
		}
	}()

	defer func() {
		b.mu.Lock()
		delete(b.clients, c)
		b.mu.Unlock()
		close(c.send)
		conn.Close()
		log.Info("WebSocket client disconnected", "remote", r.RemoteAddr)
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("WebSocket read ended", "err", err)
			}
			return
		}
		b.observe("ws", data)
		if _, err := b.out.Write(data); err != nil {
			log.Warn("UDP forward failed", "err", err)
		}
	}
}

func (b *Bridge) broadcast(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			log.Warn("WebSocket client too slow, dropping packet")
		}
	}
}

// ServeUDP reads packets from conn and broadcasts them until ctx is done. It
// closes conn.
func (b *Bridge) ServeUDP(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	buf := make([]byte, 65535)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bridge: read: %w", err)
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		b.observe(addr.String(), data)
		b.broadcast(data)
	}
}
