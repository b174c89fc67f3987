// Package renderer draws the point cloud: one additive point per grid cell,
// displaced and tinted by the bound source.
package renderer

import (
	"context"
	"fmt"
	"sync"

	"github.com/1risS/in.organico/graphics"
	"github.com/1risS/in.organico/media"
	"github.com/1risS/in.organico/resources"
	"github.com/1risS/in.organico/session"
	"github.com/1risS/in.organico/shader"
	"github.com/charmbracelet/log"
	"github.com/go-gl/gl/v4.1-core/gl"
)

var glInitOnce sync.Once

// Renderer implements session.Renderer on an OpenGL context.
type Renderer struct {
	context    graphics.Context
	gridWidth  int
	gridHeight int
	fbWidth    int
	fbHeight   int

	program  uint32
	vao, vbo uint32
	texture  uint32
	locs     map[string]int32

	// source and version identify the pixels last uploaded.
	source  resources.Resource
	version uint64
}

// New compiles the point program on ctx for a grid of gridWidth x gridHeight
// points.
func New(ctx context.Context, gc graphics.Context, gridWidth, gridHeight int) (*Renderer, error) {
	gc.MakeCurrent()
	var initErr error
	glInitOnce.Do(func() {
		initErr = gl.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", initErr)
	}
	log.Info("OpenGL initialized", "version", gl.GoStr(gl.GetString(gl.VERSION)))

	src, err := shader.Points(ctx, gc.IsGLES())
	if err != nil {
		return nil, err
	}
	r := &Renderer{
		context:    gc,
		gridWidth:  gridWidth,
		gridHeight: gridHeight,
		locs:       make(map[string]int32),
	}
	r.program, err = newProgram(src.Vertex, src.Fragment)
	if err != nil {
		return nil, fmt.Errorf("failed to create point program: %w", err)
	}
	for _, name := range shader.Uniforms {
		r.locs[name] = -1
		if mapped, ok := src.Names[name]; ok {
			r.locs[name] = gl.GetUniformLocation(r.program, gl.Str(mapped+"\x00"))
		}
	}

	attr := shader.Attribute
	if mapped, ok := src.Names[attr]; ok {
		attr = mapped
	}
	coords := gridCoords(gridWidth, gridHeight)
	gl.GenVertexArrays(1, &r.vao)
	gl.GenBuffers(1, &r.vbo)
	gl.BindVertexArray(r.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(coords)*4, gl.Ptr(coords), gl.STATIC_DRAW)
	loc := uint32(gl.GetAttribLocation(r.program, gl.Str(attr+"\x00")))
	gl.EnableVertexAttribArray(loc)
	gl.VertexAttribPointer(loc, 2, gl.FLOAT, false, 2*4, gl.PtrOffset(0))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)

	gl.GenTextures(1, &r.texture)
	gl.BindTexture(gl.TEXTURE_2D, r.texture)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(gridWidth), int32(gridHeight), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.Enable(gl.PROGRAM_POINT_SIZE)
	r.fbWidth, r.fbHeight = gc.GetFramebufferSize()
	return r, nil
}

// Resize adapts the viewport and aspect ratio to a new framebuffer size.
func (r *Renderer) Resize(width, height int) {
	r.fbWidth, r.fbHeight = width, height
	log.Debug("Renderer resized", "width", width, "height", height)
}

// upload copies the source pixels into the texture if they changed since the
// last upload.
func (r *Renderer) upload(res resources.Resource) {
	src, ok := res.(media.Source)
	if !ok {
		return
	}
	pixels, version := src.Frame()
	if pixels == nil || (res == r.source && version == r.version) {
		return
	}
	b := pixels.Bounds()
	gl.BindTexture(gl.TEXTURE_2D, r.texture)
	if b.Dx() == r.gridWidth && b.Dy() == r.gridHeight {
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(b.Dx()), int32(b.Dy()), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels.Pix))
	} else {
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(b.Dx()), int32(b.Dy()), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels.Pix))
	}
	r.source, r.version = res, version
}

func (r *Renderer) setFloat(name string, v float32) {
	if loc := r.locs[name]; loc >= 0 {
		gl.Uniform1f(loc, v)
	}
}

// Render draws one frame into the default framebuffer and swaps it in.
func (r *Renderer) Render(f session.Frame) {
	r.upload(f.Source)

	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Viewport(0, 0, int32(r.fbWidth), int32(r.fbHeight))
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	gl.Disable(gl.DEPTH_TEST)
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE)

	gl.UseProgram(r.program)
	proj := projection(r.fbWidth, r.fbHeight)
	view := viewMatrix(f.View)
	if loc := r.locs["projection"]; loc >= 0 {
		gl.UniformMatrix4fv(loc, 1, false, &proj[0])
	}
	if loc := r.locs["view"]; loc >= 0 {
		gl.UniformMatrix4fv(loc, 1, false, &view[0])
	}
	r.setFloat("time", float32(f.Elapsed))
	r.setFloat("width", float32(r.gridWidth))
	r.setFloat("height", float32(r.gridHeight))
	for name, v := range uniformValues(f.Params) {
		r.setFloat(name, v)
	}

	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, r.texture)
	if loc := r.locs["map"]; loc >= 0 {
		gl.Uniform1i(loc, 0)
	}

	gl.BindVertexArray(r.vao)
	gl.DrawArrays(gl.POINTS, 0, int32(r.gridWidth*r.gridHeight))
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	r.context.SwapBuffers()
}

// Shutdown frees the GL objects. The context is shut down by its owner.
func (r *Renderer) Shutdown() {
	gl.DeleteProgram(r.program)
	gl.DeleteTextures(1, &r.texture)
	gl.DeleteBuffers(1, &r.vbo)
	gl.DeleteVertexArrays(1, &r.vao)
}
