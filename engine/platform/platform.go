package platform

import (
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/math"
)

var startTime float64 = 0

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window *glfw.Window

	lastCursorX float64
	lastCursorY float64
	looking     bool
}

/**
 * @brief Keyboard and mouse state sampled once per frame.
 * Move holds the axes in [-1, 1]: x right (D/A), y up (Q/E), z backwards (S/W).
 * Look is the cursor movement in pixels while the right mouse button is held.
 */
type InputState struct {
	Move math.Vec3
	Look math.Vec2
}

func New() *Platform {
	return &Platform{
		Window: nil,
	}
}

// Startup creates a resizable window without a client API, ready for a Vulkan surface.
func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return errors.Wrap(err, "initializing glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw: Vulkan loader not found")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return errors.Wrap(err, "creating window")
	}
	p.Window = window

	p.Window.SetKeyCallback(keyCallback)
	p.Window.SetCloseCallback(closeCallback)
	p.Window.SetFramebufferSizeCallback(framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	startTime = glfw.GetTime()
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

// PumpMessages processes pending window events. It returns false once the window should close.
func (p *Platform) PumpMessages() bool {
	if p.Window == nil {
		return true
	}
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// FramebufferSize returns the size of the drawable area in pixels.
func (p *Platform) FramebufferSize() (uint32, uint32) {
	if p.Window == nil {
		return 0, 0
	}
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

// Input returns the zero state when there is no window.
func (p *Platform) Input() InputState {
	var state InputState
	if p.Window == nil {
		return state
	}
	state.Move.X = p.axis(glfw.KeyD, glfw.KeyA)
	state.Move.Y = p.axis(glfw.KeyQ, glfw.KeyE)
	state.Move.Z = p.axis(glfw.KeyS, glfw.KeyW)

	x, y := p.Window.GetCursorPos()
	if p.Window.GetMouseButton(glfw.MouseButtonRight) == glfw.Press {
		// The first frame of a drag only records the cursor.
		if p.looking {
			state.Look = math.NewVec2(float32(x-p.lastCursorX), float32(y-p.lastCursorY))
		}
		p.looking = true
	} else {
		p.looking = false
	}
	p.lastCursorX, p.lastCursorY = x, y
	return state
}

func (p *Platform) axis(positive, negative glfw.Key) float32 {
	var value float32
	if p.Window.GetKey(positive) == glfw.Press {
		value++
	}
	if p.Window.GetKey(negative) == glfw.Press {
		value--
	}
	return value
}

func (p *Platform) Sleep(d time.Duration) {
	time.Sleep(d)
}

// GetAbsoluteTime returns the seconds elapsed since Startup.
func GetAbsoluteTime() float64 {
	return glfw.GetTime() - startTime
}

func keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		w.SetShouldClose(true)
		core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, w, core.EventContext{})
	}
}

func closeCallback(w *glfw.Window) {
	core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, w, core.EventContext{})
}

func framebufferSizeCallback(w *glfw.Window, width, height int) {
	context := core.EventContext{}
	context.Data.U32[0] = uint32(width)
	context.Data.U32[1] = uint32(height)
	core.EventFire(core.EVENT_CODE_RESIZED, w, context)
}
