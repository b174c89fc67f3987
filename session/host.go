package session

import (
	"github.com/1risS/in.organico/params"
	"github.com/1risS/in.organico/scenes"
	"github.com/1risS/in.organico/telemetry"
	"github.com/charmbracelet/log"
)

// The methods below are the scene API. They run on the session goroutine.

func (s *Session) DefineScene(id int, p scenes.Program) error {
	if err := s.scenes.Register(id, p); err != nil {
		return err
	}
	log.Debug("scene defined", "id", id)
	return nil
}

func (s *Session) ActivateScene(id int) error {
	if err := s.scenes.Activate(id); err != nil {
		return err
	}
	log.Debug("scene active", "id", id)
	return nil
}

func (s *Session) BindVideo(uri string) { s.resources.BindVideo(uri) }

func (s *Session) BindImage(uri string) { s.resources.BindImage(uri) }

func (s *Session) Telemetry(ch int) float64 { return s.telemetry.Level(ch) }

func (s *Session) OnTelemetry(ch int, fn telemetry.Subscriber) { s.telemetry.Subscribe(ch, fn) }

// SetParam stores an absolute value, clamped into the parameter's range.
func (s *Session) SetParam(name string, v float64) error {
	id, err := params.Lookup(name)
	if err != nil {
		return err
	}
	s.params.SetValue(id, v)
	return nil
}

// SetParamNorm stores v, given in [0,1], rescaled into the parameter's range.
func (s *Session) SetParamNorm(name string, v float64) error {
	id, err := params.Lookup(name)
	if err != nil {
		return err
	}
	s.params.Set(id, v, params.Normalized)
	return nil
}

func (s *Session) Param(name string) (float64, error) {
	id, err := params.Lookup(name)
	if err != nil {
		return 0, err
	}
	return s.params.Get(id), nil
}

func (s *Session) SetError(msg string) { s.diag.SetError(msg) }

// Panic puts the blank source back at once, flashes a banner and rebinds the
// default image.
func (s *Session) Panic() {
	log.Warn("Panic!")
	s.resources.Reset(s.blank())
	s.diag.Flash(panicMessage, s.cfg.PanicFlash)
	if s.cfg.DefaultImage != "" {
		s.resources.BindImage(s.cfg.DefaultImage)
	}
}
