// Package diag is the error surface shown over the visuals.
package diag

import (
	"time"

	"github.com/charmbracelet/log"
)

// Surface displays the error banner. Implementations need not be safe for
// concurrent use; the Channel only calls them from the session loop.
type Surface interface {
	ShowError(msg string)
	HideError()
}

// Scheduler runs f on the session loop after d.
type Scheduler func(d time.Duration, f func())

// Channel holds the latest error message and drives the Surface.
type Channel struct {
	surface Surface
	after   Scheduler
	msg     string
	seq     uint64
}

// New returns a channel writing to s. after defers flash clears; if nil,
// time.AfterFunc is used, which calls back on its own goroutine.
func New(s Surface, after Scheduler) *Channel {
	if after == nil {
		after = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return &Channel{surface: s, after: after}
}

// SetError shows msg, or clears the banner when msg is empty.
func (c *Channel) SetError(msg string) {
	c.seq++
	c.set(msg)
}

// Flash shows msg and clears it after d unless another message replaced it
// first.
func (c *Channel) Flash(msg string, d time.Duration) {
	c.seq++
	seq := c.seq
	c.set(msg)
	c.after(d, func() {
		if c.seq == seq {
			c.set("")
		}
	})
}

// Message returns the text currently shown, or "" when hidden.
func (c *Channel) Message() string { return c.msg }

func (c *Channel) set(msg string) {
	c.msg = msg
	if msg == "" {
		if c.surface != nil {
			c.surface.HideError()
		}
		return
	}
	log.Error("Error:", "msg", msg)
	if c.surface != nil {
		c.surface.ShowError(msg)
	}
}
