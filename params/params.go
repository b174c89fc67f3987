// Package params holds the fixed set of visual parameters read by the
// point-cloud renderer and the camera.
package params

import (
	"fmt"
	"math"
)

// ID identifies a parameter. The set is closed; an ID outside of it is a
// programming error.
type ID int

const (
	NearClipping ID = iota
	FarClipping
	PointSize
	ZOffset
	Hue
	Saturation
	Random
	Depth
	ClipX
	ClipY
	ClipWidthX
	ClipWidthY
	TargetX
	TargetY

	numParams
)

// Target names the downstream consumer of a parameter.
type Target int

const (
	Uniform Target = iota // read by the point shader
	Camera                // component of the camera target position
)

// Spec is the static description of a parameter.
type Spec struct {
	ID      ID
	Name    string
	Min     float64
	Max     float64
	Default float64
	Target  Target
}

var specs = [numParams]Spec{
	NearClipping: {NearClipping, "nearClipping", 1, 10000, 850, Uniform},
	FarClipping:  {FarClipping, "farClipping", 1, 10000, 4000, Uniform},
	PointSize:    {PointSize, "pointSize", 1, 10, 1, Uniform},
	ZOffset:      {ZOffset, "zOffset", -2000, 2000, 1500, Uniform},
	Hue:          {Hue, "hue", 0, 1, 0, Uniform},
	Saturation:   {Saturation, "saturation", 0, 1, 1, Uniform},
	Random:       {Random, "random", 0, 1, 0, Uniform},
	Depth:        {Depth, "depth", 0, 2, 0, Uniform},
	ClipX:        {ClipX, "clipX", 0, 1, 0, Uniform},
	ClipY:        {ClipY, "clipY", 0, 1, 0, Uniform},
	ClipWidthX:   {ClipWidthX, "clipWidthX", 0, 1, 0, Uniform},
	ClipWidthY:   {ClipWidthY, "clipWidthY", 0, 1, 0, Uniform},
	TargetX:      {TargetX, "targetX", -3000, 3000, 0, Camera},
	TargetY:      {TargetY, "targetY", -6000, 6000, 0, Camera},
}

// All returns the specs of every parameter, in ID order.
func All() []Spec {
	out := make([]Spec, numParams)
	copy(out, specs[:])
	return out
}

// SpecOf returns the spec for id. It panics on an unknown id.
func SpecOf(id ID) Spec {
	if id < 0 || id >= numParams {
		panic(fmt.Sprintf("params: unknown parameter id %d", int(id)))
	}
	return specs[id]
}

func (id ID) String() string {
	if id < 0 || id >= numParams {
		return fmt.Sprintf("ID(%d)", int(id))
	}
	return specs[id].Name
}

// Lookup resolves a parameter by its name.
func Lookup(name string) (ID, error) {
	for _, s := range specs {
		if s.Name == name {
			return s.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownParam, name)
}

// Domain is the range raw input values are expressed in.
type Domain struct {
	Min, Max float64
}

var (
	// MIDI is the range of a control-change value.
	MIDI = Domain{0, 127}
	// Normalized is the unit range.
	Normalized = Domain{0, 1}
)

// Span returns the width of the domain.
func (d Domain) Span() float64 { return d.Max - d.Min }

// Rescale maps v linearly from one domain into another.
func Rescale(v float64, from, to Domain) float64 {
	return (v-from.Min)/from.Span()*to.Span() + to.Min
}

// Marker receives a notification for every write.
type Marker interface {
	MarkDirty()
}

// Registry stores the current value of every parameter. It is not safe for
// concurrent use; the session loop owns it.
type Registry struct {
	values [numParams]float64
	marker Marker
}

// New returns a registry holding the defaults. Writes are reported to m,
// which may be nil.
func New(m Marker) *Registry {
	r := &Registry{marker: m}
	r.Reset()
	return r
}

// Reset restores every parameter to its default without marking dirty.
func (r *Registry) Reset() {
	for i, s := range specs {
		r.values[i] = s.Default
	}
}

// Set rescales raw from domain d into the parameter's range, clamps and stores
// it. It always marks the state dirty.
func (r *Registry) Set(id ID, raw float64, d Domain) {
	s := SpecOf(id)
	r.store(s, Rescale(raw, d, Domain{s.Min, s.Max}))
}

// SetValue stores an absolute value, clamped into the parameter's range.
func (r *Registry) SetValue(id ID, v float64) {
	r.store(SpecOf(id), v)
}

func (r *Registry) store(s Spec, v float64) {
	if math.IsNaN(v) {
		v = s.Default
	}
	r.values[s.ID] = math.Min(s.Max, math.Max(s.Min, v))
	if r.marker != nil {
		r.marker.MarkDirty()
	}
}

// Get returns the current value of id.
func (r *Registry) Get(id ID) float64 {
	return r.values[SpecOf(id).ID]
}

// Snapshot is a copy of every value, indexed by ID.
type Snapshot [numParams]float64

// Get returns the value of id in the snapshot.
func (s *Snapshot) Get(id ID) float64 { return s[SpecOf(id).ID] }

// Snapshot copies the current values.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot(r.values)
}
