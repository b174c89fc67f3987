package control

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

// ErrNoInputs is returned when no MIDI input port is available.
var ErrNoInputs = errors.New("no MIDI input ports")

// Event is one control change received from any port on any channel.
type Event struct {
	Port       string
	Controller int
	Value      int
}

// Listen subscribes to every MIDI input port and hands control changes to
// sink in the order each port delivers them. The returned function stops all
// listeners. A port that fails to open is logged and skipped.
func Listen(sink func(Event)) (stop func(), err error) {
	ports := midi.GetInPorts()
	if len(ports) == 0 {
		return nil, ErrNoInputs
	}

	var stops []func()
	for _, in := range ports {
		name := in.String()
		s, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
			var ch, cc, val uint8
			if !msg.GetControlChange(&ch, &cc, &val) {
				return
			}
			sink(Event{Port: name, Controller: int(cc), Value: int(val)})
		})
		if err != nil {
			log.Warnf("Failed to open MIDI input %s: %v", name, err)
			continue
		}
		log.Infof("Listening to MIDI input: %s", name)
		stops = append(stops, s)
	}
	if len(stops) == 0 {
		return nil, fmt.Errorf("%w: none of %d ports opened", ErrNoInputs, len(ports))
	}

	return func() {
		for _, s := range stops {
			s()
		}
	}, nil
}
