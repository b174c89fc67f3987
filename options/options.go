// Package options holds the runtime configuration, read from a YAML file
// over built-in defaults.
package options

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid options")

type Options struct {
	Window     Window        `yaml:"window"`
	Grid       Grid          `yaml:"grid"`
	Control    Control       `yaml:"control"`
	Telemetry  Telemetry     `yaml:"telemetry"`
	Remote     Remote        `yaml:"remote"`
	Audio      Audio         `yaml:"audio"`
	Media      Media         `yaml:"media"`
	Journal    Journal       `yaml:"journal"`
	Log        Log           `yaml:"log"`
	PanicFlash time.Duration `yaml:"panic_flash"`
	FPS        int           `yaml:"fps"`
}

type Window struct {
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Title      string `yaml:"title"`
	Fullscreen bool   `yaml:"fullscreen"`
	Headless   bool   `yaml:"headless"` // run without a window or renderer
}

// Grid is the size of the point cloud, one point per source pixel.
type Grid struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type Control struct {
	Enabled bool `yaml:"enabled"`
}

type Telemetry struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Stream  string `yaml:"stream"` // empty accepts every stream
}

type Remote struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	EvalTimeout time.Duration `yaml:"eval_timeout"` // negative disables the limit
}

// Audio configures the local microphone levels fed into telemetry.
type Audio struct {
	Enabled         bool          `yaml:"enabled"`
	SampleRate      float64       `yaml:"sample_rate"`
	FramesPerBuffer int           `yaml:"frames_per_buffer"`
	BaseChannel     int           `yaml:"base_channel"`
	Bands           int           `yaml:"bands"`
	Interval        time.Duration `yaml:"interval"`
}

type Media struct {
	DefaultImage string `yaml:"default_image"`
	FFmpegPath   string `yaml:"ffmpeg"`
}

type Journal struct {
	Path   string `yaml:"path"` // empty disables the journal
	Replay bool   `yaml:"replay"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // auto, text or json
}

// Default returns the built-in configuration.
func Default() Options {
	return Options{
		Window:    Window{Width: 1280, Height: 720, Title: "in.organico"},
		Grid:      Grid{Width: 640, Height: 480},
		Control:   Control{Enabled: true},
		Telemetry: Telemetry{Enabled: true, Addr: ":9129"},
		Remote:    Remote{Enabled: true, Addr: ":3000", EvalTimeout: 2 * time.Second},
		Audio: Audio{
			SampleRate:      44100,
			FramesPerBuffer: 1024,
			BaseChannel:     100,
			Bands:           4,
			Interval:        20 * time.Millisecond,
		},
		Media:      Media{DefaultImage: "assets/default.png"},
		Log:        Log{Level: "info", Format: "auto"},
		PanicFlash: 500 * time.Millisecond,
		FPS:        60,
	}
}

// Load reads path over the defaults and validates the result. An empty path
// returns the defaults.
func Load(path string) (Options, error) {
	o := Default()
	if path == "" {
		return o, o.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("read options: %w", err)
	}
	if err := o.Decode(data); err != nil {
		return o, fmt.Errorf("%s: %w", path, err)
	}
	return o, o.Validate()
}

// Decode merges YAML data into o. Unknown keys are rejected.
func (o *Options) Decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(o); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}

// Validate checks the ranges the rest of the program relies on.
func (o Options) Validate() error {
	switch {
	case o.FPS <= 0:
		return fmt.Errorf("%w: fps must be positive, was %d", ErrInvalid, o.FPS)
	case o.Grid.Width <= 0 || o.Grid.Height <= 0:
		return fmt.Errorf("%w: grid must be positive, was %dx%d", ErrInvalid, o.Grid.Width, o.Grid.Height)
	case !o.Window.Headless && (o.Window.Width <= 0 || o.Window.Height <= 0):
		return fmt.Errorf("%w: window must be positive, was %dx%d", ErrInvalid, o.Window.Width, o.Window.Height)
	case o.PanicFlash <= 0:
		return fmt.Errorf("%w: panic_flash must be positive", ErrInvalid)
	case o.Telemetry.Enabled && o.Telemetry.Addr == "":
		return fmt.Errorf("%w: telemetry.addr is required", ErrInvalid)
	case o.Remote.Enabled && o.Remote.Addr == "":
		return fmt.Errorf("%w: remote.addr is required", ErrInvalid)
	case o.Journal.Replay && o.Journal.Path == "":
		return fmt.Errorf("%w: journal.replay needs journal.path", ErrInvalid)
	}
	if o.Audio.Enabled {
		switch {
		case o.Audio.SampleRate <= 0 || o.Audio.FramesPerBuffer <= 0:
			return fmt.Errorf("%w: audio sample_rate and frames_per_buffer must be positive", ErrInvalid)
		case o.Audio.Bands < 0 || o.Audio.Bands > 32:
			return fmt.Errorf("%w: audio.bands must be in [0,32], was %d", ErrInvalid, o.Audio.Bands)
		case o.Audio.Interval <= 0:
			return fmt.Errorf("%w: audio.interval must be positive", ErrInvalid)
		}
	}
	switch o.Log.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be auto, text or json, was %q", ErrInvalid, o.Log.Format)
	}
	return nil
}
