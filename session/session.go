// Package session is the coordinator context. It owns every registry and
// serializes all mutations onto the goroutine that runs the frame loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/1risS/in.organico/control"
	"github.com/1risS/in.organico/diag"
	"github.com/1risS/in.organico/params"
	"github.com/1risS/in.organico/resources"
	"github.com/1risS/in.organico/scenes"
	"github.com/1risS/in.organico/scheduler"
	"github.com/1risS/in.organico/script"
	"github.com/1risS/in.organico/store"
	"github.com/1risS/in.organico/telemetry"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by Call once the session stopped serving.
	ErrClosed = errors.New("session closed")
	// ErrNoJournal is returned by ClearJournal when no journal is configured.
	ErrNoJournal = errors.New("no journal configured")
)

const (
	mailboxSize       = 1024
	defaultPanicFlash = 500 * time.Millisecond
	panicMessage      = "PANIC: video source reset"
)

// Frame is everything the rendering backend needs for one draw.
type Frame struct {
	scheduler.View
	Params params.Snapshot
	Source resources.Resource
}

// Renderer draws frames. It is called on the session goroutine.
type Renderer interface {
	Render(Frame)
}

// Journal records evaluated code for replay.
type Journal interface {
	Append(code string) (int, error)
	Each(f func(store.Entry) error) error
	Clear() error
}

// Config tunes a session.
type Config struct {
	// ID identifies the session in logs. A random one is used when empty.
	ID string
	// DefaultImage is bound at start and after a panic.
	DefaultImage string
	// Blank returns the source bound while nothing else is.
	Blank func() resources.Resource
	// PanicFlash is how long the panic banner stays up.
	PanicFlash time.Duration
	// Journal, if set, receives every successful remote evaluation.
	Journal Journal
	// EvalTimeout bounds one remote evaluation. Zero uses the interpreter
	// default, a negative value disables the limit.
	EvalTimeout time.Duration
}

// Session is the explicit context shared by every adapter.
type Session struct {
	id      string
	cfg     Config
	mailbox chan func()
	done    chan struct{}

	params    *params.Registry
	scenes    *scenes.Registry
	sched     *scheduler.Scheduler
	telemetry *telemetry.State
	resources *resources.Manager
	diag      *diag.Channel
	control   *control.Dispatcher
	script    *script.Interpreter
	renderer  Renderer

	replaying bool
}

// New returns a session drawing through r and showing errors on surface.
// Both may be nil.
func New(cfg Config, loader resources.Loader, r Renderer, surface diag.Surface) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.PanicFlash <= 0 {
		cfg.PanicFlash = defaultPanicFlash
	}
	s := &Session{
		id:        cfg.ID,
		cfg:       cfg,
		mailbox:   make(chan func(), mailboxSize),
		done:      make(chan struct{}),
		sched:     scheduler.New(),
		scenes:    scenes.New(),
		telemetry: telemetry.NewState(),
		renderer:  r,
	}
	s.params = params.New(s.sched)
	s.diag = diag.New(surface, s.after)
	s.resources = resources.New(loader, s.sched, s.Post, s.loadFailed)
	s.control = control.NewDispatcher(controlTarget{s.params, s})
	s.script = script.New(s)
	if cfg.EvalTimeout != 0 {
		s.script.SetTimeout(cfg.EvalTimeout)
	}

	s.resources.Reset(s.blank())
	if cfg.DefaultImage != "" {
		s.resources.BindImage(cfg.DefaultImage)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

func (s *Session) blank() resources.Resource {
	if s.cfg.Blank == nil {
		return nil
	}
	return s.cfg.Blank()
}

func (s *Session) after(d time.Duration, f func()) {
	time.AfterFunc(d, func() { s.Post(f) })
}

func (s *Session) loadFailed(err error) {
	s.diag.SetError(err.Error())
}

// Post queues f to run on the session goroutine. It must not be called from
// that goroutine while the mailbox is full.
func (s *Session) Post(f func()) {
	select {
	case s.mailbox <- f:
	case <-s.done:
	}
}

// Call runs f on the session goroutine and waits for it. It must not be
// called from the session goroutine.
func (s *Session) Call(ctx context.Context, f func() error) error {
	res := make(chan error, 1)
	select {
	case s.mailbox <- func() { res <- f() }:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain runs every queued function without blocking.
func (s *Session) Drain() {
	for {
		select {
		case f := <-s.mailbox:
			f()
		default:
			return
		}
	}
}

// Step drains the mailbox and advances one frame of dt seconds. It reports
// whether a frame was rendered.
func (s *Session) Step(dt float64) bool {
	s.Drain()
	return s.sched.Tick(dt, s.params.Get(params.TargetX), s.params.Get(params.TargetY), s.draw)
}

func (s *Session) draw(v scheduler.View) {
	if s.renderer == nil {
		return
	}
	s.renderer.Render(Frame{View: v, Params: s.params.Snapshot(), Source: s.resources.Current()})
}

// Run steps the session at fps until ctx is done, serving the mailbox in
// between frames. It is the loop for running without a window.
func (s *Session) Run(ctx context.Context, fps int) error {
	if fps <= 0 {
		return fmt.Errorf("session: invalid frame rate %d", fps)
	}
	t := time.NewTicker(time.Second / time.Duration(fps))
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-s.mailbox:
			f()
		case now := <-t.C:
			s.Step(now.Sub(last).Seconds())
			last = now
		}
	}
}

// Close stops serving and releases the bound source. Pending Calls return
// ErrClosed.
func (s *Session) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	s.Drain()
	s.resources.Close()
	log.Info("Session closed")
}

// HandleControl queues a control-surface event.
func (s *Session) HandleControl(ev control.Event) {
	s.Post(func() {
		log.Debug("MIDI CC", "port", ev.Port, "cc", ev.Controller, "value", ev.Value)
		if err := s.control.ControlChange(ev.Controller, ev.Value); err != nil {
			log.Warn("control change dropped", "cc", ev.Controller, "value", ev.Value, "err", err)
		}
	})
}

// HandleTelemetry queues a level sample.
func (s *Session) HandleTelemetry(sm telemetry.Sample) {
	s.Post(func() { s.telemetry.Update(sm.Channel, sm.Level) })
}

// Evaluate runs remote code on the session goroutine. The error banner is
// cleared first and set to the failure, if any.
func (s *Session) Evaluate(ctx context.Context, code string) (script.Result, error) {
	var res script.Result
	err := s.Call(ctx, func() error {
		var err error
		res, err = s.evaluate("[remote]", code)
		return err
	})
	return res, err
}

func (s *Session) evaluate(name, code string) (script.Result, error) {
	s.diag.SetError("")
	res, err := s.script.Eval(name, code)
	if err != nil {
		s.diag.SetError(err.Error())
		return res, err
	}
	if s.cfg.Journal != nil && !s.replaying {
		if _, err := s.cfg.Journal.Append(code); err != nil {
			log.Warn("journal append failed", "err", err)
		}
	}
	return res, nil
}

// Check reports whether code would be accepted by Evaluate, without running
// it.
func (s *Session) Check(ctx context.Context, code string) error {
	return s.Call(ctx, func() error { return s.script.Check("[check]", code) })
}

// ClearJournal drops every journaled entry.
func (s *Session) ClearJournal(ctx context.Context) error {
	return s.Call(ctx, func() error {
		if s.cfg.Journal == nil {
			return ErrNoJournal
		}
		if err := s.cfg.Journal.Clear(); err != nil {
			return fmt.Errorf("clear journal: %w", err)
		}
		log.Info("Journal cleared")
		return nil
	})
}

// Replay re-evaluates every journaled entry. Failing entries are logged and
// skipped. It must run on the session goroutine, typically before the loop
// starts.
func (s *Session) Replay() error {
	if s.cfg.Journal == nil {
		return nil
	}
	s.replaying = true
	defer func() { s.replaying = false }()
	n := 0
	err := s.cfg.Journal.Each(func(e store.Entry) error {
		if _, err := s.evaluate(fmt.Sprintf("[journal %d]", e.Seq), e.Code); err != nil {
			log.Warn("journal entry failed", "seq", e.Seq, "err", err)
			return nil
		}
		n++
		return nil
	})
	log.Infof("Replayed %d journal entries", n)
	return err
}

// Status is a snapshot of the coordinator state.
type Status struct {
	Session      string  `json:"session"`
	Scene        *int    `json:"scene"`
	Scenes       []int   `json:"scenes"`
	MustRender   bool    `json:"mustRender"`
	AlwaysRender bool    `json:"alwaysRender"`
	Source       string  `json:"source"`
	Generation   uint64  `json:"generation"`
	Error        string  `json:"error"`
	Channels     int     `json:"channels"`
	Renders      uint64  `json:"renders"`
	Elapsed      float64 `json:"elapsed"`
}

// Status reads the state on the session goroutine.
func (s *Session) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.Call(ctx, func() error {
		st = s.status()
		return nil
	})
	return st, err
}

func (s *Session) status() Status {
	flags := s.sched.Flags()
	st := Status{
		Session:      s.id,
		Scenes:       s.scenes.IDs(),
		MustRender:   flags.MustRender,
		AlwaysRender: flags.AlwaysRender,
		Generation:   s.resources.Generation(),
		Error:        s.diag.Message(),
		Channels:     s.telemetry.Channels(),
		Renders:      s.sched.Renders(),
		Elapsed:      s.sched.Elapsed(),
	}
	if id, ok := s.scenes.Current(); ok {
		st.Scene = &id
	}
	if src := s.resources.Current(); src != nil {
		st.Source = src.URI()
	}
	return st
}

type controlTarget struct {
	*params.Registry
	s *Session
}

func (t controlTarget) ActivateScene(id int) error { return t.s.scenes.Activate(id) }
func (t controlTarget) MarkDirty()                 { t.s.sched.MarkDirty() }

// TriggerPanic runs the panic action on the session goroutine.
func (s *Session) TriggerPanic(ctx context.Context) error {
	return s.Call(ctx, func() error {
		s.Panic()
		return nil
	})
}
