// Package audio captures sound from the local input device for the level
// analyzer.
//
// Capture goes through portaudio:
//
//	macos:   brew install portaudio
//	debian:  sudo apt-get install portaudio19-dev
//	windows: pacman -S mingw-w64-x86_64-portaudio
package audio

// Device produces a stream of mono sample chunks.
type Device interface {
	// Start begins capture and returns a receive-only channel of chunks.
	Start() (<-chan []float32, error)
	// Stop ends capture and closes the channel.
	Stop() error
	SampleRate() float64
}

// NullDevice never produces audio.
type NullDevice struct {
	rate float64
}

func NewNullDevice(sampleRate float64) *NullDevice {
	return &NullDevice{rate: sampleRate}
}

// Start returns a nil channel, which blocks forever on receive.
func (d *NullDevice) Start() (<-chan []float32, error) { return nil, nil }

func (d *NullDevice) Stop() error { return nil }

func (d *NullDevice) SampleRate() float64 { return d.rate }
