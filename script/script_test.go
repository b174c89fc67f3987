package script

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/1risS/in.organico/params"
	"github.com/1risS/in.organico/scenes"
	"github.com/1risS/in.organico/telemetry"
	"github.com/google/go-cmp/cmp"
	"src.elv.sh/pkg/eval"
)

type fakeHost struct {
	params    *params.Registry
	scenes    *scenes.Registry
	telemetry *telemetry.State
	dirty     int
	binds     []string
	errMsg    string
	panics    int
}

func newFakeHost() *fakeHost {
	h := &fakeHost{scenes: scenes.New(), telemetry: telemetry.NewState()}
	h.params = params.New(h)
	return h
}

func (h *fakeHost) MarkDirty() { h.dirty++ }

func (h *fakeHost) DefineScene(id int, p scenes.Program) error { return h.scenes.Register(id, p) }
func (h *fakeHost) ActivateScene(id int) error                 { return h.scenes.Activate(id) }
func (h *fakeHost) BindVideo(uri string)                       { h.binds = append(h.binds, "video "+uri) }
func (h *fakeHost) BindImage(uri string)                       { h.binds = append(h.binds, "image "+uri) }
func (h *fakeHost) Telemetry(ch int) float64                   { return h.telemetry.Level(ch) }
func (h *fakeHost) OnTelemetry(ch int, fn telemetry.Subscriber) {
	h.telemetry.Subscribe(ch, fn)
}

func (h *fakeHost) SetParam(name string, v float64) error {
	id, err := params.Lookup(name)
	if err != nil {
		return err
	}
	h.params.SetValue(id, v)
	return nil
}

func (h *fakeHost) SetParamNorm(name string, v float64) error {
	id, err := params.Lookup(name)
	if err != nil {
		return err
	}
	h.params.Set(id, v, params.Normalized)
	return nil
}

func (h *fakeHost) Param(name string) (float64, error) {
	id, err := params.Lookup(name)
	if err != nil {
		return 0, err
	}
	return h.params.Get(id), nil
}

func (h *fakeHost) SetError(msg string) { h.errMsg = msg }
func (h *fakeHost) Panic()              { h.panics++ }

func mustEval(t *testing.T, in *Interpreter, code string) Result {
	t.Helper()
	res, err := in.Eval("[test]", code)
	if err != nil {
		t.Fatalf("Eval(%q) error = %v", code, err)
	}
	return res
}

func TestDefineThenActivateScene(t *testing.T) {
	h := newFakeHost()
	in := New(h)
	mustEval(t, in, "defScene 5 { setParam hue 0.5 }")
	if h.dirty != 0 {
		t.Fatalf("defining a scene marked dirty %d times", h.dirty)
	}
	mustEval(t, in, "activateScene 5")

	if got := h.params.Get(params.Hue); got != 0.5 {
		t.Errorf("hue = %v, want 0.5", got)
	}
	if h.dirty != 1 {
		t.Errorf("marked dirty %d times, want 1", h.dirty)
	}
	if id, ok := h.scenes.Current(); !ok || id != 5 {
		t.Errorf("Current() = %d, %v, want 5", id, ok)
	}
}

func TestRedefiningActiveSceneRunsIt(t *testing.T) {
	h := newFakeHost()
	in := New(h)
	mustEval(t, in, "defScene 1 { setParam pointSize 2 }; setScene 1")
	mustEval(t, in, "defScene 1 { setParam pointSize 7 }")
	if got := h.params.Get(params.PointSize); got != 7 {
		t.Errorf("pointSize = %v, want 7", got)
	}
}

func TestAPI(t *testing.T) {
	h := newFakeHost()
	in := New(h)
	h.telemetry.Update(2, 0.75)

	res := mustEval(t, in, `
		setParamNorm zOffset 0.5
		bindImage a.jpg
		setVideo feed.mp4
		put (readTelemetry 2) (getParam zOffset)
		echo done
		setError 'lens dirty'
		panic
	`)
	if diff := cmp.Diff([]string{"0.75", "0.0"}, res.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if res.Output != "done" {
		t.Errorf("output = %q, want done", res.Output)
	}
	if diff := cmp.Diff([]string{"image a.jpg", "video feed.mp4"}, h.binds); diff != "" {
		t.Errorf("binds mismatch (-want +got):\n%s", diff)
	}
	if h.errMsg != "lens dirty" || h.panics != 1 {
		t.Errorf("errMsg = %q panics = %d", h.errMsg, h.panics)
	}
}

func TestOnTelemetryCallsBack(t *testing.T) {
	h := newFakeHost()
	in := New(h)
	mustEval(t, in, "onTelemetry 3 {|level| setParamNorm saturation $level }")
	h.telemetry.Update(3, 0.25)
	if got := h.params.Get(params.Saturation); got != 0.25 {
		t.Errorf("saturation = %v, want 0.25", got)
	}
}

func TestLocalsPersistAcrossEvaluations(t *testing.T) {
	h := newFakeHost()
	in := New(h)
	mustEval(t, in, "var size = 4")
	mustEval(t, in, "setParam pointSize $size")
	if got := h.params.Get(params.PointSize); got != 4 {
		t.Errorf("pointSize = %v, want 4", got)
	}
}

func TestFailuresAreExecutionErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		is   error
	}{
		{"unknown scene", "activateScene 64", scenes.ErrUnknownScene},
		{"invalid id", "defScene 128 { }", scenes.ErrInvalidIdentifier},
		{"negative id", "activateScene -1", scenes.ErrInvalidIdentifier},
		{"unknown param", "setParam brightness 1", params.ErrUnknownParam},
		{"parse error", "defScene 1 {", nil},
		{"failing scene body", "defScene 2 { activateScene 99 }; activateScene 2", scenes.ErrUnknownScene},
		{"self activation", "defScene 1 { activateScene 1 }; activateScene 1", scenes.ErrRecursiveScene},
		{"mutual activation", "defScene 1 { setScene 2 }; defScene 2 { setScene 1 }; setScene 1", scenes.ErrRecursiveScene},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(newFakeHost()).Eval("[test]", tt.code)
			if !errors.Is(err, ErrExecution) {
				t.Fatalf("Eval() error = %v, want ErrExecution", err)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Eval() error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestNoRollbackOnFailure(t *testing.T) {
	h := newFakeHost()
	_, err := New(h).Eval("[test]", "setParam hue 0.3; activateScene 9; setParam hue 0.9")
	if err == nil {
		t.Fatal("Eval() succeeded")
	}
	if got := h.params.Get(params.Hue); got != 0.3 {
		t.Errorf("hue = %v, want 0.3", got)
	}
}

func TestForbiddenConstructs(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"external command", "rm -rf /"},
		{"namespaced command", "e:ls"},
		{"use", "use os"},
		{"eval", "eval 'rm x'"},
		{"redirection", "echo x > out.txt"},
		{"wildcard", "put *"},
		{"tilde", "put ~"},
		{"background", "setParam hue 1 &"},
		{"pipeline", "put 1 | setParam hue"},
		{"function variable", "var f = $exit~"},
		{"namespaced variable", "put $os:args"},
		{"computed head", "var f = { }; $f"},
		{"inside scene body", "defScene 1 { rm x }"},
		{"inside output capture", "setParam hue (slurp)"},
		{"inside list", "put [(exit)]"},
		{"environment assignment", "set E:PATH = /tmp"},
		{"quoted environment assignment", "set 'E:PATH' = /tmp"},
		{"environment declaration", "var E:HOME = /"},
		{"working directory", "set pwd = /"},
		{"search path", "set paths = []"},
		{"rest into builtin", "var @args = 1 2"},
		{"braced targets", "var {a pwd} = 1 /"},
		{"function assignment", "var put~ = { }"},
		{"assignment in scene body", "defScene 1 { set pwd = / }"},
		{"computed target", "var (put x) = 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFakeHost()
			in := New(h)
			if err := in.Check("[test]", tt.code); !errors.Is(err, ErrForbidden) {
				t.Errorf("Check(%q) = %v, want ErrForbidden", tt.code, err)
			}
			_, err := in.Eval("[test]", tt.code)
			if !errors.Is(err, ErrForbidden) {
				t.Errorf("Eval(%q) = %v, want ErrForbidden", tt.code, err)
			}
			if h.dirty != 0 || len(h.binds) != 0 {
				t.Errorf("forbidden code had side effects")
			}
		})
	}
}

func TestAllowedBuiltins(t *testing.T) {
	h := newFakeHost()
	res := mustEval(t, New(h), `
		var n = 0
		for x [1 2 3] { set n = (+ $n $x) }
		if (== $n 6) { put ok } else { put bad }
		while (< $n 8) { set n = (+ $n 1) }
		put (to-string $n)
	`)
	if diff := cmp.Diff([]string{"ok", "8"}, res.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestAssignmentsStayLocal(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	in := New(newFakeHost())
	in.Eval("[test]", "set E:IN_ORGANICO_SCRIPT_TEST = leaked")
	in.Eval("[test]", "set pwd = /")
	if v, ok := os.LookupEnv("IN_ORGANICO_SCRIPT_TEST"); ok {
		t.Errorf("environment variable set to %q", v)
	}
	if now, _ := os.Getwd(); now != wd {
		t.Errorf("working directory changed to %s", now)
	}

	res := mustEval(t, in, "var a b = 1 2; set a = (+ $a $b); put (to-string $a)")
	if diff := cmp.Diff([]string{"3"}, res.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluationIsInterrupted(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"top level loop", "while $true { }"},
		{"loop in scene", "defScene 4 { while $true { } }; activateScene 4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := New(newFakeHost())
			in.SetTimeout(50 * time.Millisecond)
			done := make(chan error, 1)
			go func() {
				_, err := in.Eval("[test]", tt.code)
				done <- err
			}()
			select {
			case err := <-done:
				if !errors.Is(err, ErrExecution) || !errors.Is(err, eval.ErrInterrupted) {
					t.Fatalf("Eval() error = %v, want an interrupted execution", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Eval() was not interrupted")
			}
			// The deadline belongs to one evaluation only.
			res := mustEval(t, in, "put ok")
			if diff := cmp.Diff([]string{"ok"}, res.Values); diff != "" {
				t.Errorf("values mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTelemetryCallbackIsInterrupted(t *testing.T) {
	h := newFakeHost()
	in := New(h)
	in.SetTimeout(50 * time.Millisecond)
	mustEval(t, in, "onTelemetry 1 {|level| while $true { } }")
	done := make(chan struct{})
	go func() {
		h.telemetry.Update(1, 0.5)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("telemetry callback was not interrupted")
	}
}
