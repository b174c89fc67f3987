// Package script evaluates scene-definition code sent by a remote operator.
//
// Code is Elvish. Before anything runs, the whole parse tree is checked
// against an allow-list made of the scene API and a few pure builtins, so a
// payload can only reach parameters, scenes, sources and telemetry.
package script

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/1risS/in.organico/scenes"
	"github.com/1risS/in.organico/telemetry"
	"src.elv.sh/pkg/eval"
	"src.elv.sh/pkg/eval/vals"
	"src.elv.sh/pkg/parse"
)

var (
	// ErrExecution wraps any failure raised while running remote code.
	ErrExecution = errors.New("remote execution failed")
	// ErrForbidden is returned when code uses a construct outside the
	// allow-list. Nothing of it has run.
	ErrForbidden = errors.New("forbidden construct")
)

// Host is what scene code acts on.
type Host interface {
	DefineScene(id int, p scenes.Program) error
	ActivateScene(id int) error
	BindVideo(uri string)
	BindImage(uri string)
	Telemetry(ch int) float64
	OnTelemetry(ch int, fn telemetry.Subscriber)
	SetParam(name string, v float64) error
	SetParamNorm(name string, v float64) error
	Param(name string) (float64, error)
	SetError(msg string)
	Panic()
}

// Result is the output of one evaluation.
type Result struct {
	Values []string
	Output string
}

// DefaultTimeout bounds a single evaluation, including the scene programs
// and telemetry callbacks it runs.
const DefaultTimeout = 2 * time.Second

// Interpreter runs code against a Host. Calls must come from a single
// goroutine, the same one the Host expects to be mutated from.
type Interpreter struct {
	ev      *eval.Evaler
	host    Host
	checker *checker

	timeout time.Duration
	// stop is the deadline of the outermost evaluation in progress. Nested
	// calls share it.
	stop <-chan struct{}
}

// New returns an interpreter bound to h.
func New(h Host) *Interpreter {
	in := &Interpreter{ev: eval.NewEvaler(), host: h, timeout: DefaultTimeout}
	fns := in.api()

	allowed := make(map[string]bool, len(fns)+len(builtins))
	for name := range fns {
		allowed[name] = true
	}
	for _, name := range builtins {
		allowed[name] = true
	}
	in.checker = newChecker(allowed)
	in.ev.ExtendGlobal(eval.BuildNs().AddGoFns(fns))
	return in
}

func (in *Interpreter) api() map[string]any {
	bindVideo := func(uri string) { in.host.BindVideo(uri) }
	bindImage := func(uri string) { in.host.BindImage(uri) }
	activate := func(id int) error { return in.host.ActivateScene(id) }
	return map[string]any{
		"defScene": func(id int, body eval.Callable) error {
			return in.host.DefineScene(id, in.program(id, body))
		},
		"activateScene": activate,
		"setScene":      activate,
		"bindVideo":     bindVideo,
		"setVideo":      bindVideo,
		"bindImage":     bindImage,
		"setImage":      bindImage,
		"readTelemetry": func(ch int) float64 { return in.host.Telemetry(ch) },
		"onTelemetry": func(ch int, fn eval.Callable) {
			in.host.OnTelemetry(ch, func(level float64) error {
				return in.call(fmt.Sprintf("[telemetry %d]", ch), fn, level)
			})
		},
		"setParam":     func(name string, v float64) error { return in.host.SetParam(name, v) },
		"setParamNorm": func(name string, v float64) error { return in.host.SetParamNorm(name, v) },
		"getParam":     func(name string) (float64, error) { return in.host.Param(name) },
		"setError":     func(msg string) { in.host.SetError(msg) },
		"panic":        func() { in.host.Panic() },
	}
}

func (in *Interpreter) program(id int, body eval.Callable) scenes.Program {
	from := fmt.Sprintf("[scene %d]", id)
	return func() error { return in.call(from, body) }
}

// SetTimeout changes how long one evaluation may run before it is
// interrupted. Zero or less disables the limit.
func (in *Interpreter) SetTimeout(d time.Duration) {
	in.timeout = d
}

// interrupt returns the deadline channel for a new frame. The outermost
// frame arms it and nested frames reuse it.
func (in *Interpreter) interrupt() (<-chan struct{}, func()) {
	if in.stop != nil {
		return in.stop, func() {}
	}
	if in.timeout <= 0 {
		return nil, func() {}
	}
	ch := make(chan struct{})
	t := time.AfterFunc(in.timeout, func() { close(ch) })
	in.stop = ch
	return ch, func() {
		t.Stop()
		in.stop = nil
	}
}

func (in *Interpreter) call(from string, fn eval.Callable, args ...any) error {
	err := in.ev.Call(fn, eval.CallCfg{Args: args, From: from}, eval.EvalCfg{Interrupt: in.interrupt})
	if err != nil {
		return execError(err)
	}
	return nil
}

// Check reports whether code would be accepted, without running it.
func (in *Interpreter) Check(name, code string) error {
	return in.checker.check(name, code)
}

// Eval checks and runs code. Side effects performed before a failure are
// kept.
func (in *Interpreter) Eval(name, code string) (Result, error) {
	if err := in.checker.check(name, code); err != nil {
		if errors.Is(err, ErrForbidden) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %w", ErrExecution, err)
	}

	port, collect, err := eval.CapturePort()
	if err != nil {
		return Result{}, fmt.Errorf("capture output: %w", err)
	}
	err = in.ev.Eval(parse.Source{Name: name, Code: code}, eval.EvalCfg{
		Ports:     []*eval.Port{nil, port, nil},
		Interrupt: in.interrupt,
	})
	values, bytes := collect()

	res := Result{Output: strings.TrimRight(string(bytes), "\n")}
	for _, v := range values {
		res.Values = append(res.Values, vals.ToString(v))
	}
	if err != nil {
		return res, execError(err)
	}
	return res, nil
}

// execError unwraps an Elvish exception so callers can match the Go error
// that raised it.
func execError(err error) error {
	if errors.Is(err, ErrExecution) {
		return err
	}
	var exc eval.Exception
	if errors.As(err, &exc) && exc.Reason() != nil {
		err = exc.Reason()
		if errors.Is(err, ErrExecution) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrExecution, err)
}
