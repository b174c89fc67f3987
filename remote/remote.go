// Package remote receives scene code from a live-coding editor.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/1risS/in.organico/script"
	"github.com/1risS/in.organico/session"
	"github.com/charmbracelet/log"
)

const (
	// CmdEvaluate is the only command acted upon.
	CmdEvaluate = "evaluateCode"
	// Target is the only evaluation target acted upon.
	Target = "hydra"
)

// ErrMalformed is returned for a frame that is not a JSON message.
var ErrMalformed = errors.New("malformed message")

// Message is the frame sent by the editor.
type Message struct {
	Cmd  string `json:"cmd"`
	Args Args   `json:"args"`
}

// Args carries the code of an evaluateCode message.
type Args struct {
	Target string `json:"target"`
	Body   string `json:"body"`
}

// Decode parses a frame. ok is false for a well-formed message with another
// command or target.
func Decode(data []byte) (code string, ok bool, err error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Cmd != CmdEvaluate || m.Args.Target != Target {
		return "", false, nil
	}
	return m.Args.Body, true, nil
}

// Coordinator is the part of the session the remote side drives.
type Coordinator interface {
	Evaluate(ctx context.Context, code string) (script.Result, error)
	TriggerPanic(ctx context.Context) error
	Status(ctx context.Context) (session.Status, error)
	Check(ctx context.Context, code string) error
	ClearJournal(ctx context.Context) error
}

// Adapter filters frames and forwards matching code to the coordinator.
type Adapter struct {
	c Coordinator
}

// NewAdapter returns an adapter for c.
func NewAdapter(c Coordinator) *Adapter {
	return &Adapter{c: c}
}

// Handle processes one frame. Frames for other commands or targets are
// ignored. Evaluation failures are shown on the error banner by the
// coordinator and also returned.
func (a *Adapter) Handle(ctx context.Context, data []byte) error {
	code, ok, err := Decode(data)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug("ignoring message", "bytes", len(data))
		return nil
	}
	log.Debug("evaluating remote code", "bytes", len(code))
	_, err = a.c.Evaluate(ctx, code)
	return err
}
