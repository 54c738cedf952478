package renderer

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/quartz/engine/config"
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/scene"
	"github.com/spaghettifunk/quartz/engine/systems"
)

type FrameState int

const (
	FrameStateIdle FrameState = iota
	FrameStateDirtyAnalysis
	FrameStateJobExecution
	FrameStateCommandRecording
	FrameStateSubmit
	FrameStatePresent
)

var frameStateNames = [...]string{"idle", "dirty_analysis", "job_execution", "command_recording", "submit", "present"}

func (s FrameState) String() string {
	if s < 0 || int(s) >= len(frameStateNames) {
		return "unknown"
	}
	return frameStateNames[s]
}

const (
	raygenShader     = "pathtrace.rgen"
	missShader       = "pathtrace.rmiss"
	closestHitShader = "pathtrace.rchit"
	vertexShader     = "display.vert"
	fragmentShader   = "display.frag"
)

/**
 * @brief Drives the frame loop of the ray tracing backend: turns scene changes into a job
 * graph, records one command buffer per frame in flight and presents the accumulated image.
 * Every method must be called from the goroutine that owns the frame loop.
 */
type Renderer struct {
	cfg       *config.Config
	device    *gpu.Device
	presenter gpu.Presenter

	jobs         *systems.JobSystem
	descriptors  *systems.DescriptorManager
	commands     *systems.CommandBufferManager
	staging      *systems.StagingResourceManager
	sceneManager *systems.SceneManager
	cameras      *systems.CameraManager

	renderPipeline  gpu.Pipeline
	displayPipeline gpu.Pipeline
	renderPass      gpu.RenderPassHandle
	framebuffers    []gpu.FramebufferHandle
	displaySampler  gpu.SamplerHandle
	framePool       gpu.CommandPoolHandle
	descriptorPool  gpu.DescriptorPoolHandle
	queryPool       gpu.QueryPoolHandle

	frames            []FrameResources
	frameIndex        int
	timestampsWritten []bool
	extent            gpu.Extent2D
	imageIndex        uint32
	imageAvailable    gpu.SemaphoreHandle

	scene              *scene.Scene
	renderSettings     scene.RenderSettings
	frameNumber        uint32
	clearPrevious      bool
	renderBuffersReady bool
	// A frame was submitted since the render buffers were created.
	hasFrame           bool
	state              FrameState
	shadersChanged     atomic.Bool
	initialized        bool

	stats *statistics
	rng   *rand.Rand
}

func New(cfg *config.Config, device *gpu.Device) *Renderer {
	return &Renderer{
		cfg:            cfg,
		device:         device,
		renderSettings: renderSettingsFromConfig(cfg.RenderSettings),
		stats:          newStatistics(),
		rng:            rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

func renderSettingsFromConfig(c config.RenderSettingsConfig) scene.RenderSettings {
	settings := scene.NewRenderSettings()
	settings.PrimarySamples = c.PrimarySamples
	settings.SecondarySamples = c.SecondarySamples
	settings.MaxDepth = c.MaxDepth
	settings.SkyColor.X, settings.SkyColor.Y, settings.SkyColor.Z = c.SkyColor[0], c.SkyColor[1], c.SkyColor[2]
	settings.SkyIntensity = c.SkyIntensity
	return settings
}

/**
 * @brief Creates the managers, pipelines and per frame resources. On failure everything
 * created so far is released and the renderer stays uninitialized.
 */
func (r *Renderer) Initialize() error {
	if r.initialized {
		return nil
	}
	r.presenter = r.device.Presenter()
	if r.presenter != nil {
		r.extent = r.presenter.SurfaceExtent()
	} else {
		r.extent = gpu.Extent2D{Width: r.cfg.Renderer.Width, Height: r.cfg.Renderer.Height}
	}

	if err := r.initialize(); err != nil {
		r.destroy()
		return err
	}
	core.EventRegister(core.EVENT_CODE_SHADER_CHANGED, r, r.onShaderChanged)
	r.initialized = true
	core.LogInfo("renderer initialized on %s: %dx%d, %d frames in flight", r.device.Driver().Name(), r.extent.Width, r.extent.Height, len(r.frames))
	return nil
}

func (r *Renderer) initialize() error {
	jobs, err := systems.NewJobSystem(r.cfg.Jobs.Workers, r.cfg.Jobs.QueueSize)
	if err != nil {
		return errors.Wrap(err, "creating job system")
	}
	r.jobs = jobs

	r.descriptors = systems.NewDescriptorManager(r.device)
	capacities := map[systems.ResourceClass]uint32{
		systems.ResourceClassAttributeBuffer: r.cfg.Descriptors.AttributeCapacity,
		systems.ResourceClassIndexBuffer:     r.cfg.Descriptors.IndexCapacity,
		systems.ResourceClassTexture:         r.cfg.Descriptors.TextureCapacity,
	}
	for _, class := range []systems.ResourceClass{systems.ResourceClassAttributeBuffer, systems.ResourceClassIndexBuffer, systems.ResourceClassTexture} {
		if !r.descriptors.CreateDescriptorPool(class, capacities[class]) {
			return errors.Wrapf(ErrResourceCreation, "%s descriptor pool", class)
		}
	}

	framesInFlight := int(r.cfg.Renderer.FramesInFlight)
	r.commands = systems.NewCommandBufferManager(r.device)
	r.staging = systems.NewStagingResourceManager(r.device)
	r.sceneManager = systems.NewSceneManager(r.device, r.descriptors, framesInFlight)
	r.cameras = systems.NewCameraManager()

	if r.presenter != nil {
		if err := r.createDisplayTargets(); err != nil {
			return err
		}
	}
	if err := r.createPipelines(); err != nil {
		return err
	}
	if err := r.createFrameResources(framesInFlight); err != nil {
		return err
	}
	return r.createDescriptorSets()
}

func (r *Renderer) onShaderChanged(code core.SystemEventCode, sender interface{}, data core.EventContext) bool {
	core.LogInfo("shader %s changed, reloading pipelines on the next frame", data.Data.S)
	r.shadersChanged.Store(true)
	return false
}

// Shutdown waits for the device and destroys everything the renderer created.
func (r *Renderer) Shutdown() error {
	if !r.initialized {
		return core.ErrNotInitialized
	}
	core.EventUnregister(core.EVENT_CODE_SHADER_CHANGED, r)
	r.device.WaitIdle()
	r.destroy()
	r.initialized = false
	core.LogInfo("renderer shut down")
	return nil
}

func (r *Renderer) destroy() {
	if r.jobs != nil {
		if err := r.jobs.Shutdown(); err != nil {
			core.LogWarn("failed to shut down job system: %v", err)
		}
		r.jobs = nil
	}
	if r.commands != nil {
		r.commands.Cleanup(true)
	}
	if r.staging != nil {
		r.staging.ProceedToNextFrame()
	}

	r.destroyFrameResources()
	r.device.DestroyDescriptorPool(&r.descriptorPool)
	r.device.DestroyPipeline(&r.renderPipeline)
	r.device.DestroyPipeline(&r.displayPipeline)
	r.destroyDisplayTargets()
	r.device.DestroySampler(&r.displaySampler)

	if r.sceneManager != nil {
		r.sceneManager.DestroyResources()
		r.sceneManager = nil
	}
	if r.commands != nil {
		r.commands.Destroy()
		r.commands = nil
	}
	if r.staging != nil {
		r.staging.Destroy()
		r.staging = nil
	}
	if r.descriptors != nil {
		r.descriptors.Destroy()
		r.descriptors = nil
	}
}

/**
 * @brief Replaces the rendered scene. The GPU resources of the previous scene are destroyed
 * and everything in the new scene is considered dirty.
 */
func (r *Renderer) SetScene(s *scene.Scene) {
	if r.initialized && r.scene != nil && r.scene != s {
		r.releaseSceneResources()
	}
	r.scene = s
	if s != nil {
		s.MarkAllDirty()
	}
}

func (r *Renderer) releaseSceneResources() {
	// Queued uploads may still write into the resources about to be destroyed.
	if !r.commands.SubmitCommandBuffers(r.device.GraphicsQueue()) {
		core.LogWarn("failed to submit pending scene updates before the scene change")
	}
	r.device.WaitIdle()
	r.commands.Cleanup(true)
	r.staging.ProceedToNextFrame()
	r.sceneManager.DestroyResources()
	r.descriptors.ResetDescriptors()
	r.cameras.SetActiveCamera(nil)
	r.resetProgress()
	core.LogDebug("released the resources of the previous scene")
}

func (r *Renderer) Scene() *scene.Scene {
	return r.scene
}

func (r *Renderer) State() FrameState {
	return r.state
}

// FrameNumber is the number of frames accumulated since the last scene change.
func (r *Renderer) FrameNumber() uint32 {
	return r.frameNumber
}

func (r *Renderer) SceneManager() *systems.SceneManager {
	return r.sceneManager
}

func (r *Renderer) Cameras() *systems.CameraManager {
	return r.cameras
}

func (r *Renderer) Extent() gpu.Extent2D {
	return r.extent
}

func (r *Renderer) IsInitialized() bool {
	return r.initialized
}

// DrawFrame runs a whole frame. A booting swapchain skips the frame without an error.
func (r *Renderer) DrawFrame() error {
	if err := r.BeginFrame(); err != nil {
		if errors.Is(err, core.ErrSwapchainBooting) {
			return nil
		}
		core.LogError("%v", err)
		return err
	}
	if err := r.EndFrame(); err != nil {
		core.LogError("RendererEndFrame failed: %v", err)
		return err
	}
	return nil
}

/**
 * @brief Adapts the render target to a new surface size. Accumulation restarts.
 */
func (r *Renderer) Resized(width, height uint32) error {
	if !r.initialized {
		return core.ErrNotInitialized
	}
	if width == 0 || height == 0 {
		return nil
	}
	r.device.WaitIdle()
	if r.presenter != nil {
		if res := r.presenter.RecreateSwapchain(width, height); !res.IsSuccess() {
			return errors.Wrapf(ErrResourceCreation, "recreating swapchain: %s", res)
		}
		r.destroyDisplayTargets()
		if err := r.createDisplayTargets(); err != nil {
			return err
		}
		r.extent = r.presenter.SurfaceExtent()
	} else {
		r.extent = gpu.Extent2D{Width: width, Height: height}
	}

	if err := r.recreateRenderBuffers(); err != nil {
		return err
	}
	if err := r.createDescriptorSets(); err != nil {
		return err
	}
	r.resetProgress()
	core.LogDebug("renderer resized to %dx%d", r.extent.Width, r.extent.Height)
	return nil
}

func (r *Renderer) resetProgress() {
	r.frameNumber = 0
	r.clearPrevious = true
	r.stats.restart()
}
