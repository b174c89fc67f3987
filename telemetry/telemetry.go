// Package telemetry keeps the last audio level seen on every channel.
package telemetry

import "github.com/charmbracelet/log"

// Subscriber is called with every new level of the channel it is registered
// on. An error is logged and otherwise ignored.
type Subscriber func(level float64) error

// State maps channels to their last level. Levels never decay; a channel that
// was never updated reads as 0. It is not safe for concurrent use.
type State struct {
	levels map[int]float64
	subs   map[int]Subscriber
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		levels: make(map[int]float64),
		subs:   make(map[int]Subscriber),
	}
}

// Update stores level for ch and notifies the channel's subscriber.
func (s *State) Update(ch int, level float64) {
	s.levels[ch] = level
	fn, ok := s.subs[ch]
	if !ok {
		return
	}
	if err := fn(level); err != nil {
		log.Warn("telemetry subscriber failed", "channel", ch, "err", err)
	}
}

// Level returns the last level of ch.
func (s *State) Level(ch int) float64 {
	return s.levels[ch]
}

// Subscribe registers fn for ch, replacing any previous subscriber. A nil fn
// removes it.
func (s *State) Subscribe(ch int, fn Subscriber) {
	if fn == nil {
		delete(s.subs, ch)
		return
	}
	s.subs[ch] = fn
}

// Channels returns the number of channels that received at least one update.
func (s *State) Channels() int { return len(s.levels) }
