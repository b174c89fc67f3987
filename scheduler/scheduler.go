// Package scheduler decides, once per animation tick, whether the point cloud
// has to be redrawn.
package scheduler

import "math"

const (
	// Approach is the fraction of the remaining distance the camera covers
	// per tick.
	Approach = 0.5
	// SnapDistance is the step size below which the camera lands on its
	// target. It bounds the tail of the exponential approach.
	SnapDistance = 1e-3
)

// Vec3 is a position in scene space.
type Vec3 struct {
	X, Y, Z float64
}

var (
	// DefaultEye is where the camera starts.
	DefaultEye = Vec3{0, 0, 500}
	// Center is the point the camera always looks at.
	Center = Vec3{0, 0, -1000}
)

// Flags is the render dirtiness state. MustRender is one-shot and cleared by
// every performed render; AlwaysRender is sticky and set while the bound
// source changes on its own.
type Flags struct {
	MustRender   bool
	AlwaysRender bool
}

// ShouldRender reports whether the next tick renders.
func (f Flags) ShouldRender() bool {
	return f.AlwaysRender || f.MustRender
}

// View is what the backend needs to draw one frame.
type View struct {
	Eye     Vec3
	Center  Vec3
	Elapsed float64
}

// Scheduler owns the render flags, the camera position and the elapsed time.
type Scheduler struct {
	flags   Flags
	eye     Vec3
	elapsed float64
	renders uint64
}

// New returns a scheduler that renders on its first tick.
func New() *Scheduler {
	return &Scheduler{
		flags: Flags{MustRender: true, AlwaysRender: true},
		eye:   DefaultEye,
	}
}

// MarkDirty requests one render on the next tick.
func (s *Scheduler) MarkDirty() { s.flags.MustRender = true }

// SetAlwaysRender switches continuous rendering on or off.
func (s *Scheduler) SetAlwaysRender(on bool) { s.flags.AlwaysRender = on }

// Flags returns the current flag pair.
func (s *Scheduler) Flags() Flags { return s.flags }

// Eye returns the current camera position.
func (s *Scheduler) Eye() Vec3 { return s.eye }

// Elapsed returns the accumulated tick time in seconds.
func (s *Scheduler) Elapsed() float64 { return s.elapsed }

// Renders returns how many renders have been performed.
func (s *Scheduler) Renders() uint64 { return s.renders }

// Tick advances one frame. targetX and targetY are the camera target; the
// camera moves toward (targetX, -targetY). draw is invoked when a render is
// due, and Tick reports whether it was.
func (s *Scheduler) Tick(dt, targetX, targetY float64, draw func(View)) bool {
	if s.follow(targetX, -targetY) {
		s.flags.MustRender = true
	}

	s.elapsed += dt

	if !s.flags.ShouldRender() {
		return false
	}
	if draw != nil {
		draw(View{Eye: s.eye, Center: Center, Elapsed: s.elapsed})
	}
	s.flags.MustRender = false
	s.renders++
	return true
}

// follow moves the eye toward (x, y) and reports whether it moved.
func (s *Scheduler) follow(x, y float64) bool {
	dx := (x - s.eye.X) * Approach
	dy := (y - s.eye.Y) * Approach
	if dx == 0 && dy == 0 {
		return false
	}
	if math.Abs(dx) < SnapDistance && math.Abs(dy) < SnapDistance {
		s.eye.X, s.eye.Y = x, y
		return true
	}
	s.eye.X += dx
	s.eye.Y += dy
	return true
}
