package renderer

import (
	"math"
	"testing"

	"github.com/1risS/in.organico/params"
	"github.com/1risS/in.organico/scheduler"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/go-cmp/cmp"
)

func TestGridCoords(t *testing.T) {
	got := gridCoords(2, 2)
	want := []float32{0.25, 0.25, 0.75, 0.25, 0.25, 0.75, 0.75, 0.75}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("gridCoords mismatch (-want +got):\n%s", diff)
	}
	if n := len(gridCoords(640, 480)); n != 640*480*2 {
		t.Errorf("len = %d, want one pair per point", n)
	}
}

func TestProjectionAspect(t *testing.T) {
	wide := projection(1600, 800)
	square := projection(800, 800)
	// m[0] is f/aspect, m[5] is f.
	if r := wide[5] / wide[0]; math.Abs(float64(r)-2) > 1e-5 {
		t.Errorf("aspect = %v, want 2", r)
	}
	if square[0] != square[5] {
		t.Errorf("square projection not symmetric: %v vs %v", square[0], square[5])
	}
	f := float32(1 / math.Tan(float64(mgl32.DegToRad(fovDegrees))/2))
	if math.Abs(float64(square[5]-f)) > 1e-5 {
		t.Errorf("focal = %v, want %v", square[5], f)
	}
	if zero := projection(0, 0); zero[0] != zero[5] {
		t.Error("empty framebuffer should fall back to a square aspect")
	}
}

func TestViewMatrixLooksAtCenter(t *testing.T) {
	v := scheduler.View{Eye: scheduler.DefaultEye, Center: scheduler.Center}
	m := viewMatrix(v)
	// The center lies straight ahead, on the negative z axis in eye space.
	c := m.Mul4x1(mgl32.Vec4{0, 0, -1000, 1})
	if math.Abs(float64(c.X())) > 1e-3 || math.Abs(float64(c.Y())) > 1e-3 || c.Z() >= 0 {
		t.Errorf("center in eye space = %v", c)
	}
	if math.Abs(float64(c.Z())+1500) > 1e-2 {
		t.Errorf("center distance = %v, want 1500", -c.Z())
	}
}

func TestUniformValues(t *testing.T) {
	r := params.New(nil)
	r.SetValue(params.Hue, 0.25)
	got := uniformValues(r.Snapshot())
	if got["hue"] != 0.25 {
		t.Errorf("hue = %v, want 0.25", got["hue"])
	}
	if got["pointSize"] != 1 {
		t.Errorf("pointSize = %v, want default 1", got["pointSize"])
	}
	if _, ok := got["targetX"]; ok {
		t.Error("camera parameters must not become uniforms")
	}
}
