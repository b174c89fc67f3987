package renderer

import (
	"github.com/1risS/in.organico/params"
	"github.com/1risS/in.organico/scheduler"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	fovDegrees = 50
	near       = 1
	far        = 10000
)

// projection returns the perspective matrix for a framebuffer of w x h.
func projection(w, h int) mgl32.Mat4 {
	aspect := float32(1)
	if w > 0 && h > 0 {
		aspect = float32(w) / float32(h)
	}
	return mgl32.Perspective(mgl32.DegToRad(fovDegrees), aspect, near, far)
}

func vec(v scheduler.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

// viewMatrix looks from the camera eye at the scene center.
func viewMatrix(v scheduler.View) mgl32.Mat4 {
	return mgl32.LookAtV(vec(v.Eye), vec(v.Center), mgl32.Vec3{0, 1, 0})
}

// gridCoords returns one texture coordinate pair per grid cell, sampled at
// the cell center.
func gridCoords(w, h int) []float32 {
	out := make([]float32, 0, w*h*2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out = append(out, (float32(x)+0.5)/float32(w), (float32(y)+0.5)/float32(h))
		}
	}
	return out
}

// uniformValues maps each shader-bound parameter name to its value.
func uniformValues(s params.Snapshot) map[string]float32 {
	out := make(map[string]float32)
	for _, spec := range params.All() {
		if spec.Target == params.Uniform {
			out[spec.Name] = float32(s.Get(spec.ID))
		}
	}
	return out
}
