package glfwcontext

import (
	"runtime"

	"github.com/1risS/in.organico/options"
	"github.com/charmbracelet/log"
	glfw "github.com/go-gl/glfw/v3.3/glfw"
)

// Context is a GLFW window with a current OpenGL 4.1 core context.
type Context struct {
	window *glfw.Window
	title  string
	// A map to store functions to be called on key presses.
	keyCallbacks map[glfw.Key]func()
	onResize     func(width, height int)
}

// New creates the render window. Esc always closes it.
func New(w options.Window) (*Context, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	width, height := w.Width, w.Height
	var monitor *glfw.Monitor
	if w.Fullscreen {
		monitor = glfw.GetPrimaryMonitor()
		if mode := monitor.GetVideoMode(); mode != nil {
			width, height = mode.Width, mode.Height
		}
	}

	win, err := glfw.CreateWindow(width, height, w.Title, monitor, nil)
	if err != nil {
		return nil, err
	}
	c := &Context{
		window:       win,
		title:        w.Title,
		keyCallbacks: make(map[glfw.Key]func()),
	}
	win.SetKeyCallback(c.glfwKeyCallback)
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		if c.onResize != nil {
			c.onResize(width, height)
		}
	})
	return c, nil
}

// RegisterKeyCallback runs f whenever key is pressed.
func (c *Context) RegisterKeyCallback(key glfw.Key, f func()) {
	c.keyCallbacks[key] = f
}

// OnResize runs f with the new framebuffer size after every resize.
func (c *Context) OnResize(f func(width, height int)) {
	c.onResize = f
}

func (c *Context) glfwKeyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Press {
		return
	}
	if key == glfw.KeyEscape {
		w.SetShouldClose(true)
	}
	if callback, ok := c.keyCallbacks[key]; ok {
		callback()
	}
}

// ShowError puts msg in the window title.
func (c *Context) ShowError(msg string) {
	c.window.SetTitle(bannerTitle(c.title, msg))
}

// HideError restores the plain title.
func (c *Context) HideError() {
	c.window.SetTitle(c.title)
}

func bannerTitle(title, msg string) string {
	if msg == "" {
		return title
	}
	return title + " | " + msg
}

func (c *Context) IsGLES() bool {
	// GLFW does not provide a direct way to check if the context is GLES.
	return false
}

// MakeCurrent makes the context current for the calling goroutine.
func (c *Context) MakeCurrent() {
	c.window.MakeContextCurrent()
}

func (c *Context) Shutdown() {
	c.window.Destroy()
}

func (c *Context) ShouldClose() bool {
	return c.window.ShouldClose()
}

func (c *Context) SwapBuffers() {
	c.window.SwapBuffers()
}

func (c *Context) PollEvents() {
	glfw.PollEvents()
}

func (c *Context) GetFramebufferSize() (int, int) {
	return c.window.GetFramebufferSize()
}

func (c *Context) Time() float64 {
	return glfw.GetTime()
}

// InitGraphics initializes GLFW. Must be called from the main thread.
func InitGraphics() error {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return err
	}
	log.Info("GLFW initialized")
	return nil
}

// TerminateGraphics shuts GLFW down. Must be called from the main thread.
func TerminateGraphics() {
	glfw.Terminate()
	log.Info("GLFW terminated")
}
