package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"
)

// Address is the OSC address level messages are sent to.
const Address = "/rms"

// ErrMalformed is returned for a level message with unusable arguments.
var ErrMalformed = errors.New("malformed level message")

// Sample is one decoded level message.
type Sample struct {
	Stream  string
	Channel int
	Level   float64
}

// Decode extracts a sample from an /rms message. The arguments are
// (streamId, channel, level).
func Decode(msg *osc.Message) (Sample, error) {
	if msg.Address != Address {
		return Sample{}, fmt.Errorf("%w: address %s", ErrMalformed, msg.Address)
	}
	if len(msg.Arguments) < 3 {
		return Sample{}, fmt.Errorf("%w: %d arguments", ErrMalformed, len(msg.Arguments))
	}
	ch, ok := number(msg.Arguments[1])
	if !ok {
		return Sample{}, fmt.Errorf("%w: channel %v", ErrMalformed, msg.Arguments[1])
	}
	level, ok := number(msg.Arguments[2])
	if !ok {
		return Sample{}, fmt.Errorf("%w: level %v", ErrMalformed, msg.Arguments[2])
	}
	return Sample{
		Stream:  fmt.Sprint(msg.Arguments[0]),
		Channel: int(ch),
		Level:   level,
	}, nil
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Listener receives level messages over UDP. Packets are decoded on a single
// goroutine so samples reach Sink in arrival order.
type Listener struct {
	// Stream, when set, drops samples from any other stream id.
	Stream string
	// Sink receives every accepted sample.
	Sink func(Sample)
}

// ListenAndServe opens addr and serves until ctx is done.
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("telemetry: listen %s: %w", addr, err)
	}
	log.Infof("Listening for %s on udp %s", Address, conn.LocalAddr())
	return l.Serve(ctx, conn)
}

// Serve reads packets from conn until ctx is done. It closes conn.
func (l *Listener) Serve(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("telemetry: read: %w", err)
		}
		packet, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			log.Debug("dropping OSC packet", "err", err)
			continue
		}
		l.dispatch(packet)
	}
}

func (l *Listener) dispatch(p osc.Packet) {
	switch p := p.(type) {
	case *osc.Message:
		l.handle(p)
	case *osc.Bundle:
		for _, m := range p.Messages {
			l.handle(m)
		}
		for _, b := range p.Bundles {
			l.dispatch(b)
		}
	}
}

func (l *Listener) handle(msg *osc.Message) {
	if msg.Address != Address {
		return
	}
	s, err := Decode(msg)
	if err != nil {
		log.Debug("dropping level message", "err", err)
		return
	}
	if l.Stream != "" && s.Stream != l.Stream {
		return
	}
	if l.Sink != nil {
		l.Sink(s)
	}
}
