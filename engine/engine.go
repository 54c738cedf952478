package engine

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/quartz/engine/assets"
	"github.com/spaghettifunk/quartz/engine/config"
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/platform"
	"github.com/spaghettifunk/quartz/engine/renderer"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu/headless"
	"github.com/spaghettifunk/quartz/engine/renderer/vulkan"
	"github.com/spaghettifunk/quartz/engine/scene"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const statisticsInterval = 5 * time.Second

type Engine struct {
	currentStage Stage
	gameInstance *Game
	cfg          *config.Config
	isRunning    atomic.Bool
	isSuspended  bool
	// False when rendering offscreen, either on request or with the headless driver.
	windowed bool
	platform *platform.Platform
	watcher  *assets.ShaderWatcher
	device   *gpu.Device
	renderer renderer.RendererBackend
	width    uint32
	height   uint32
	clock    *core.Clock
	lastTime time.Duration
	// Frames drawn since Run started, independent of accumulation restarts.
	framesDrawn  uint32
	lastStatsLog time.Duration
}

func New(g *Game) (*Engine, error) {
	cfg, err := config.Load(g.ApplicationConfig.ConfigPath)
	if err != nil {
		core.LogError("%v", err)
		return nil, err
	}
	core.SetLogLevel(cfg.Log.Level)

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		cfg:          cfg,
		windowed:     !cfg.Renderer.Headless && cfg.Renderer.Driver == config.DriverVulkan,
		platform:     platform.New(),
		clock:        core.NewClock(),
		width:        cfg.Renderer.Width,
		height:       cfg.Renderer.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_RESIZED, e, e.onResized)

	if e.windowed {
		if err := e.platform.Startup(e.gameInstance.ApplicationConfig.Name,
			e.gameInstance.ApplicationConfig.StartPosX,
			e.gameInstance.ApplicationConfig.StartPosY,
			e.width,
			e.height); err != nil {
			return err
		}
		// High DPI displays report a framebuffer larger than the window.
		e.width, e.height = e.platform.FramebufferSize()
	}

	driver, err := e.createDriver()
	if err != nil {
		return err
	}
	e.device = gpu.NewDevice(driver)

	e.renderer = renderer.New(e.cfg, e.device)
	if err := e.renderer.Initialize(); err != nil {
		return errors.Wrap(err, "initializing renderer")
	}

	if e.cfg.Renderer.WatchShaders {
		e.startShaderWatcher()
	}

	e.gameInstance.Scene = scene.NewScene()
	if err := e.gameInstance.FnInitialize(); err != nil {
		return err
	}
	e.renderer.SetScene(e.gameInstance.Scene)

	if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
		return err
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) createDriver() (gpu.Driver, error) {
	if e.cfg.Renderer.Driver == config.DriverHeadless {
		core.LogInfo("using the headless driver, no GPU work is performed")
		return headless.New(), nil
	}
	options := vulkan.Options{
		ApplicationName: e.gameInstance.ApplicationConfig.Name,
		Width:           e.width,
		Height:          e.height,
		Validation:      e.cfg.Renderer.EnableValidation,
	}
	if e.windowed {
		options.Window = e.platform.Window
	}
	driver, err := vulkan.New(options)
	if err != nil {
		return nil, errors.Wrap(err, "creating vulkan driver")
	}
	return driver, nil
}

// A watcher that fails to start only disables hot reloading.
func (e *Engine) startShaderWatcher() {
	watcher, err := assets.NewShaderWatcher()
	if err != nil {
		core.LogWarn("shader hot reload disabled: %v", err)
		return
	}
	if err := watcher.Watch(e.cfg.Renderer.ShaderDir); err != nil {
		core.LogWarn("shader hot reload disabled: %v", err)
		_ = watcher.Close()
		return
	}
	core.LogInfo("watching %d shaders in %s", len(watcher.Shaders()), e.cfg.Renderer.ShaderDir)
	e.watcher = watcher
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.ErrNotInitialized
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}

		if e.isSuspended {
			e.platform.Sleep(100 * time.Millisecond)
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := (currentTime - e.lastTime).Seconds()

		if err := e.gameInstance.FnUpdate(delta, e.platform.Input()); err != nil {
			core.LogError("Game update failed, shutting down: %v", err)
			return err
		}

		if err := e.renderer.DrawFrame(); err != nil {
			return err
		}
		e.framesDrawn++

		if currentTime-e.lastStatsLog >= statisticsInterval {
			stats := e.renderer.Statistics()
			core.LogInfo("frame %d: cpu %.2fms gpu %.2fms, %d frames accumulated in %s",
				e.framesDrawn, stats.CPUFrameTimeMS, stats.GPUFrameTimeMS, stats.AccumulatedFrames, stats.TotalRenderTime.Round(time.Millisecond))
			e.lastStatsLog = currentTime
		}

		if !e.windowed && e.cfg.Renderer.FrameCount > 0 && e.framesDrawn >= e.cfg.Renderer.FrameCount {
			if err := e.exportImage(); err != nil {
				return err
			}
			e.isRunning.Store(false)
		}

		e.lastTime = currentTime
	}
	return nil
}

// Stop ends Run after the current frame. Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) exportImage() error {
	data, err := e.renderer.GrabImage()
	if err != nil {
		return errors.Wrap(err, "grabbing rendered image")
	}
	if err := assets.ExportImage(data.ToImage(), e.cfg.Output.Path, e.cfg.Output.Format); err != nil {
		return err
	}
	core.LogInfo("wrote %s after %d frames", e.cfg.Output.Path, e.framesDrawn)
	return nil
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown

	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			core.LogWarn("failed to close shader watcher: %v", err)
		}
		e.watcher = nil
	}
	if e.renderer != nil && e.renderer.IsInitialized() {
		if err := e.renderer.Shutdown(); err != nil {
			return err
		}
	}
	if e.device != nil {
		e.device.Driver().Destroy()
		e.device = nil
	}

	core.EventUnregister(core.EVENT_CODE_APPLICATION_QUIT, e)
	core.EventUnregister(core.EVENT_CODE_RESIZED, e)
	core.EventShutdown()

	if e.windowed {
		if err := e.platform.Shutdown(); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageUninitialized
	return nil
}

func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, context core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, context core.EventContext) bool {
	width := context.Data.U32[0]
	height := context.Data.U32[1]
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height

	core.LogDebug("Window resize: %d, %d", width, height)

	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError("game resize failed: %v", err)
	}
	if err := e.renderer.Resized(width, height); err != nil {
		core.LogError("renderer resize failed: %v", err)
	}
	return false
}
