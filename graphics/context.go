package graphics

// Context is an OpenGL context bound to a presentable surface. It also shows
// the diagnostics banner.
type Context interface {
	MakeCurrent()
	Shutdown()
	ShouldClose() bool
	SwapBuffers()
	PollEvents()
	GetFramebufferSize() (int, int)
	Time() float64
	IsGLES() bool

	ShowError(msg string)
	HideError()
}
