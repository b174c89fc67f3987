// Package scenes keeps the registry of numbered scene programs and tracks the
// active one.
package scenes

import (
	"errors"
	"fmt"
)

// MaxID is the largest valid scene identifier; scene ids share the range of a
// MIDI control value.
const MaxID = 127

var (
	ErrInvalidIdentifier = errors.New("scene id must be a number between 0 and 127")
	ErrUnknownScene      = errors.New("scene not defined")
	// ErrRecursiveScene is returned when a scene program would run again
	// while it is still running.
	ErrRecursiveScene = errors.New("scene is already running")
)

// Program is the body of a scene. It mutates parameters and bindings when run.
type Program func() error

// Registry maps scene ids to programs. Scenes are never removed, only
// overwritten. Not safe for concurrent use.
type Registry struct {
	programs [MaxID + 1]Program
	running  [MaxID + 1]bool
	current  int
	active   bool
}

func New() *Registry {
	return &Registry{}
}

func validID(id int) error {
	if id < 0 || id > MaxID {
		return fmt.Errorf("%w, was %d", ErrInvalidIdentifier, id)
	}
	return nil
}

// Register stores p under id. Redefining the active scene runs the new
// program right away.
func (r *Registry) Register(id int, p Program) error {
	if err := validID(id); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("scene %d: nil program", id)
	}
	r.programs[id] = p
	if r.active && r.current == id {
		return r.run(id, p)
	}
	return nil
}

// Activate makes id the active scene, running its program unless it is
// already active. The active scene is left unchanged when the program fails.
func (r *Registry) Activate(id int) error {
	if err := validID(id); err != nil {
		return err
	}
	if !r.defined(id) {
		return fmt.Errorf("scene id %d: %w", id, ErrUnknownScene)
	}
	p := r.programs[id]
	if !r.active || r.current != id {
		if err := r.run(id, p); err != nil {
			return err
		}
	}
	r.current, r.active = id, true
	return nil
}

// Current returns the active scene id, if any.
func (r *Registry) Current() (int, bool) {
	return r.current, r.active
}

// defined reports whether a program is registered for id.
func (r *Registry) defined(id int) bool {
	return validID(id) == nil && r.programs[id] != nil
}

// IDs returns the registered scene ids in ascending order.
func (r *Registry) IDs() []int {
	var ids []int
	for id, p := range r.programs {
		if p != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) run(id int, p Program) error {
	if r.running[id] {
		return fmt.Errorf("scene %d: %w", id, ErrRecursiveScene)
	}
	r.running[id] = true
	defer func() { r.running[id] = false }()
	if err := p(); err != nil {
		return fmt.Errorf("scene %d: %w", id, err)
	}
	return nil
}
