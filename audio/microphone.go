package audio

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
)

// Microphone captures the default input device.
type Microphone struct {
	sampleRate      float64
	framesPerBuffer int

	mu        sync.Mutex
	stream    *portaudio.Stream
	audioChan chan []float32
	dropped   int
}

func NewMicrophone(sampleRate float64, framesPerBuffer int) (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &Microphone{sampleRate: sampleRate, framesPerBuffer: framesPerBuffer}, nil
}

// audioCallback runs on the portaudio thread and must not block.
func (m *Microphone) audioCallback(in []float32) {
	chunk := make([]float32, len(in))
	copy(chunk, in)
	select {
	case m.audioChan <- chunk:
	default:
		m.dropped++
		if m.dropped%100 == 1 {
			log.Warn("Audio channel full, dropping chunks", "dropped", m.dropped)
		}
	}
}

func (m *Microphone) Start() (<-chan []float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return nil, fmt.Errorf("microphone already started")
	}
	m.audioChan = make(chan []float32, 16)

	host, err := portaudio.DefaultHostApi()
	if err != nil {
		return nil, fmt.Errorf("default host api: %w", err)
	}
	if host.DefaultInputDevice == nil {
		return nil, fmt.Errorf("no default input device on %s", host.Name)
	}
	params := portaudio.HighLatencyParameters(host.DefaultInputDevice, nil)
	params.Input.Channels = 1
	params.SampleRate = m.sampleRate
	params.FramesPerBuffer = m.framesPerBuffer

	stream, err := portaudio.OpenStream(params, m.audioCallback)
	if err != nil {
		return nil, fmt.Errorf("open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start audio stream: %w", err)
	}
	m.stream = stream
	log.Info("Microphone started", "device", host.DefaultInputDevice.Name, "rate", m.sampleRate)
	return m.audioChan, nil
}

func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}
	err := m.stream.Close()
	m.stream = nil
	close(m.audioChan)
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

func (m *Microphone) SampleRate() float64 { return m.sampleRate }
