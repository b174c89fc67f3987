package telemetry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hypebeast/go-osc/osc"
)

func TestUnseenChannelReadsZero(t *testing.T) {
	s := NewState()
	if got := s.Level(7); got != 0 {
		t.Errorf("Level(7) = %v, want 0", got)
	}
}

func TestLastWriteWinsWithoutDecay(t *testing.T) {
	s := NewState()
	s.Update(1, 0.2)
	s.Update(1, 0.9)
	s.Update(2, 0.4)
	if got := s.Level(1); got != 0.9 {
		t.Errorf("Level(1) = %v, want 0.9", got)
	}
	if got := s.Level(2); got != 0.4 {
		t.Errorf("Level(2) = %v, want 0.4", got)
	}
	if s.Channels() != 2 {
		t.Errorf("Channels() = %d, want 2", s.Channels())
	}
}

func TestLastSubscriberWins(t *testing.T) {
	s := NewState()
	var first, second []float64
	s.Subscribe(3, func(l float64) error { first = append(first, l); return nil })
	s.Subscribe(3, func(l float64) error { second = append(second, l); return nil })
	s.Update(3, 0.5)
	s.Update(4, 0.7)

	if len(first) != 0 {
		t.Errorf("replaced subscriber called with %v", first)
	}
	if diff := cmp.Diff([]float64{0.5}, second); diff != "" {
		t.Errorf("subscriber calls mismatch (-want +got):\n%s", diff)
	}

	s.Subscribe(3, nil)
	s.Update(3, 0.6)
	if len(second) != 1 {
		t.Errorf("removed subscriber still called: %v", second)
	}
}

func TestSubscriberErrorIsSwallowed(t *testing.T) {
	s := NewState()
	s.Subscribe(0, func(float64) error { return errors.New("boom") })
	s.Update(0, 1)
	if s.Level(0) != 1 {
		t.Errorf("Level(0) = %v, want 1", s.Level(0))
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		msg     *osc.Message
		want    Sample
		wantErr bool
	}{
		{
			name: "int stream float level",
			msg:  osc.NewMessage("/rms", int32(0), int32(2), float32(0.25)),
			want: Sample{Stream: "0", Channel: 2, Level: 0.25},
		},
		{
			name: "string stream",
			msg:  osc.NewMessage("/rms", "synth", int32(1), float64(0.5)),
			want: Sample{Stream: "synth", Channel: 1, Level: 0.5},
		},
		{
			name:    "too few arguments",
			msg:     osc.NewMessage("/rms", int32(0), int32(1)),
			wantErr: true,
		},
		{
			name:    "non numeric level",
			msg:     osc.NewMessage("/rms", int32(0), int32(1), "loud"),
			wantErr: true,
		},
		{
			name:    "other address",
			msg:     osc.NewMessage("/note", int32(0), int32(1), float32(1)),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.msg)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("Decode() error = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestServeFiltersStreamAndKeepsOrder(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan Sample, 8)
	l := &Listener{Stream: "1", Sink: func(s Sample) { got <- s }}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, conn) }()

	out, err := net.Dial("udp", conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	send := func(m *osc.Message) {
		data, err := m.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := out.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	send(osc.NewMessage("/rms", int32(2), int32(0), float32(0.9)))
	send(osc.NewMessage("/rms", int32(1), int32(0), float32(0.25)))
	send(osc.NewMessage("/rms", int32(1), int32(0), float32(0.5)))

	var levels []float64
	for len(levels) < 2 {
		select {
		case s := <-got:
			levels = append(levels, s.Level)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, received %v", levels)
		}
	}
	if diff := cmp.Diff([]float64{0.25, 0.5}, levels); diff != "" {
		t.Errorf("levels mismatch (-want +got):\n%s", diff)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
