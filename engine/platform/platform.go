package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window *glfw.Window

	// OnResize receives the new framebuffer size in pixels. Zero while the
	// window is minimized.
	OnResize func(width, height uint32)
	// OnKey receives key presses and repeats.
	OnKey func(key glfw.Key, action glfw.Action)

	startTime float64
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogFatal("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogFatal("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	p.startTime = glfw.GetTime()
	core.LogInfo("window `%s` created at %dx%d", applicationName, width, height)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events and reports whether the
// window should stay open.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// RequestClose makes the next PumpMessages return false.
func (p *Platform) RequestClose() {
	p.Window.SetShouldClose(true)
}

// GetRequiredExtensionNames lists the instance extensions the window
// surface needs.
func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) FramebufferExtent() metadata.Extent2D {
	w, h := p.Window.GetFramebufferSize()
	return metadata.Extent2D{Width: uint32(max(0, w)), Height: uint32(max(0, h))}
}

func (p *Platform) Minimized() bool {
	return p.Window.GetAttrib(glfw.Iconified) == glfw.True
}

// GetAbsoluteTime returns seconds since Startup.
func (p *Platform) GetAbsoluteTime() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if p.OnKey != nil {
		p.OnKey(key, action)
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	core.LogDebug("framebuffer resized to %dx%d", width, height)
	if p.OnResize != nil {
		p.OnResize(uint32(max(0, width)), uint32(max(0, height)))
	}
}
