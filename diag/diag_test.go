package diag

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type recordingSurface struct{ events []string }

func (s *recordingSurface) ShowError(msg string) { s.events = append(s.events, "show "+msg) }
func (s *recordingSurface) HideError()           { s.events = append(s.events, "hide") }

type manualClock struct{ pending []func() }

func (c *manualClock) after(_ time.Duration, f func()) { c.pending = append(c.pending, f) }

func (c *manualClock) fire() {
	p := c.pending
	c.pending = nil
	for _, f := range p {
		f()
	}
}

func TestSetErrorShowsAndClears(t *testing.T) {
	s := &recordingSurface{}
	c := New(s, nil)
	c.SetError("scene id 3 not defined")
	if got := c.Message(); got != "scene id 3 not defined" {
		t.Errorf("Message() = %q", got)
	}
	c.SetError("")
	if got := c.Message(); got != "" {
		t.Errorf("Message() after clear = %q", got)
	}
	want := []string{"show scene id 3 not defined", "hide"}
	if diff := cmp.Diff(want, s.events); diff != "" {
		t.Errorf("surface events mismatch (-want +got):\n%s", diff)
	}
}

func TestFlashClearsItself(t *testing.T) {
	s := &recordingSurface{}
	clk := &manualClock{}
	c := New(s, clk.after)
	c.Flash("panic", 500*time.Millisecond)
	if c.Message() != "panic" {
		t.Fatalf("Message() = %q, want panic", c.Message())
	}
	clk.fire()
	if c.Message() != "" {
		t.Errorf("flash not cleared, Message() = %q", c.Message())
	}
}

func TestLaterErrorSurvivesFlashClear(t *testing.T) {
	clk := &manualClock{}
	c := New(nil, clk.after)
	c.Flash("panic", time.Second)
	c.SetError("bad payload")
	clk.fire()
	if got := c.Message(); got != "bad payload" {
		t.Errorf("Message() = %q, want the later error", got)
	}
}
