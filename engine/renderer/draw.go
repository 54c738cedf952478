package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/scene"
	"github.com/spaghettifunk/quartz/engine/systems"
)

/**
 * @brief Waits for the frame slot to be free, applies the scene changes and runs the jobs
 * they need.
 * @return core.ErrSwapchainBooting when the swapchain had to be recreated and the frame must be skipped.
 */
func (r *Renderer) BeginFrame() error {
	if !r.initialized {
		return core.ErrNotInitialized
	}
	r.stats.beginFrame()

	frame := &r.frames[r.frameIndex]
	if !r.device.WaitForFence(frame.ExecutedFence, gpu.FenceTimeoutInfinite) {
		return errors.Wrapf(ErrSubmission, "waiting for frame %d", r.frameIndex)
	}
	r.readTimestamps(r.frameIndex)

	r.commands.ProceedToNextFrame()
	r.staging.ProceedToNextFrame()
	r.sceneManager.UpdateRetiredResources()
	r.sceneManager.DestroyExpiredResources()

	if r.shadersChanged.Swap(false) {
		r.reloadPipelines()
	}

	if r.presenter != nil {
		index, available, res := r.presenter.AcquireNextImage()
		switch {
		case res == gpu.ErrorOutOfDate:
			extent := r.presenter.SurfaceExtent()
			if err := r.Resized(extent.Width, extent.Height); err != nil {
				return err
			}
			return core.ErrSwapchainBooting
		case !res.IsSuccess():
			return errors.Wrapf(ErrSubmission, "acquiring swapchain image: %s", res)
		}
		r.imageIndex, r.imageAvailable = index, available
	}

	r.state = FrameStateDirtyAnalysis
	graph := r.analyzeScene()

	r.state = FrameStateJobExecution
	if graph != nil && graph.Len() > 0 {
		if err := r.jobs.Execute(graph); err != nil {
			core.LogWarn("frame %d: some scene updates failed: %v", r.frameNumber, err)
		}
	}
	return nil
}

// analyzeScene consumes the dirty state of the scene and returns the jobs it requires.
func (r *Renderer) analyzeScene() *systems.JobGraph {
	if r.scene == nil {
		return nil
	}
	dirty := r.scene.TakeDirty()
	if dirty.IsEmpty() {
		return nil
	}
	core.LogDebug("scene changes: %s", dirty.Flags)

	r.scene.UpdateWorldTransforms()
	if dirty.Flags.Has(scene.DirtyEntity | scene.DirtyTransform | scene.DirtyGeometry | scene.DirtyMaterial | scene.DirtyLights) {
		r.sceneManager.GatherEntities(r.scene)
	}
	if dirty.Flags.Has(scene.DirtyCamera | scene.DirtyEntity) {
		r.cameras.SetActiveCamera(r.scene.ActiveCamera())
	}
	if dirty.Flags.Has(scene.DirtyRenderSettings) {
		r.renderSettings = r.scene.RenderSettings()
	}
	r.resetProgress()
	return r.PlanJobs(dirty)
}

/**
 * @brief Records, submits and presents the frame started by BeginFrame, then moves on to
 * the next frame slot.
 */
func (r *Renderer) EndFrame() error {
	if !r.initialized {
		return core.ErrNotInitialized
	}
	frame := &r.frames[r.frameIndex]

	r.state = FrameStateCommandRecording
	wasReady, clearPrevious, frameNumber := r.renderBuffersReady, r.clearPrevious, r.frameNumber
	if err := r.recordFrame(frame); err != nil {
		r.state = FrameStateIdle
		return err
	}

	r.state = FrameStateSubmit
	queue := r.device.GraphicsQueue()
	if !r.commands.SubmitCommandBuffers(queue) {
		core.LogWarn("failed to submit scene update command buffers")
	}

	submit := gpu.SubmitInfo{CommandBuffers: []gpu.CommandBufferHandle{frame.CommandBuffer.Handle}}
	if r.presenter != nil {
		submit.WaitSemaphores = []gpu.SemaphoreHandle{r.imageAvailable}
		submit.WaitStages = []gpu.PipelineStage{gpu.PipelineStageColorAttachmentOutput}
		submit.SignalSemaphores = []gpu.SemaphoreHandle{frame.RenderFinished}
	}
	r.device.ResetFence(frame.ExecutedFence)
	if !r.device.Submit(queue, []gpu.SubmitInfo{submit}, frame.ExecutedFence) {
		// The fence was reset but will never signal.
		r.device.DestroyFence(&frame.ExecutedFence)
		frame.ExecutedFence = r.device.CreateFence(true)
		r.renderBuffersReady, r.clearPrevious, r.frameNumber = wasReady, clearPrevious, frameNumber
		r.state = FrameStateIdle
		return errors.Wrapf(ErrSubmission, "frame %d", r.frameIndex)
	}
	r.timestampsWritten[r.frameIndex] = true
	r.hasFrame = true

	if r.presenter != nil {
		r.state = FrameStatePresent
		res := r.presenter.Present(r.imageIndex, frame.RenderFinished)
		if res == gpu.ErrorOutOfDate || res == gpu.Suboptimal {
			extent := r.presenter.SurfaceExtent()
			if err := r.Resized(extent.Width, extent.Height); err != nil {
				return err
			}
		} else if !res.IsSuccess() {
			core.LogError("failed to present swapchain image: %s", res)
		}
	}

	r.stats.endFrame()
	context := core.EventContext{}
	context.Data.U32[0] = r.frameNumber
	core.EventFire(core.EVENT_CODE_FRAME_RENDERED, r, context)

	r.frameIndex = (r.frameIndex + 1) % len(r.frames)
	r.state = FrameStateIdle
	return nil
}

func (r *Renderer) recordFrame(frame *FrameResources) error {
	cb := frame.CommandBuffer
	if !cb.Begin(gpu.CommandBufferUsageOneTimeSubmit) {
		return errors.Wrapf(ErrCommandBuffer, "frame %d", r.frameIndex)
	}
	query := uint32(2 * r.frameIndex)
	cb.ResetQueryPool(r.queryPool, query, 2)
	cb.WriteTimestamp(gpu.PipelineStageTopOfPipe, r.queryPool, query)

	if !r.renderBuffersReady {
		for i := range r.frames {
			cb.TransitionImage(r.frames[i].RenderBuffer, gpu.ImageStateUndefined, gpu.ImageStateShaderReadWrite)
		}
		r.renderBuffersReady = true
	}
	if r.clearPrevious {
		previous := r.previousFrame().RenderBuffer
		cb.TransitionImage(previous, gpu.ImageStateShaderReadWrite, gpu.ImageStateCopyDest)
		cb.ClearColorImage(previous, gpu.ImageStateCopyDest, [4]float32{})
		cb.TransitionImage(previous, gpu.ImageStateCopyDest, gpu.ImageStateShaderReadWrite)
		r.clearPrevious = false
	}

	if r.sceneManager.IsReadyToRender() && r.sceneManager.EmitterBuffer().IsValid() {
		r.traceRays(cb, frame)
	} else {
		// Nothing to trace, the frame shows an empty image.
		cb.TransitionImage(frame.RenderBuffer, gpu.ImageStateShaderReadWrite, gpu.ImageStateCopyDest)
		cb.ClearColorImage(frame.RenderBuffer, gpu.ImageStateCopyDest, [4]float32{})
		cb.TransitionImage(frame.RenderBuffer, gpu.ImageStateCopyDest, gpu.ImageStateShaderReadWrite)
	}

	cb.TransitionImage(frame.RenderBuffer, gpu.ImageStateShaderReadWrite, gpu.ImageStateShaderRead)
	if r.presenter != nil && r.displayPipeline.IsValid() {
		r.recordDisplay(cb, frame)
	}
	cb.TransitionImage(frame.RenderBuffer, gpu.ImageStateShaderRead, gpu.ImageStateShaderReadWrite)

	cb.WriteTimestamp(gpu.PipelineStageBottomOfPipe, r.queryPool, query+1)
	if !cb.End() {
		return errors.Wrapf(ErrCommandBuffer, "frame %d", r.frameIndex)
	}
	return nil
}

func (r *Renderer) traceRays(cb gpu.CommandBuffer, frame *FrameResources) {
	r.writeSceneDescriptors(frame)

	p := r.renderPipeline
	cb.BindPipeline(p)
	cb.BindDescriptorSets(p, gpu.DSRender,
		frame.RenderDescriptorSet,
		r.descriptors.DescriptorSet(systems.ResourceClassAttributeBuffer),
		r.descriptors.DescriptorSet(systems.ResourceClassIndexBuffer),
		r.descriptors.DescriptorSet(systems.ResourceClassTexture),
	)

	var constants gpu.RenderPushConstants
	constants.FrameParams[gpu.FrameParamFrameNumber] = r.frameNumber
	constants.FrameParams[gpu.FrameParamRandomSeed] = r.rng.Uint32()
	constants.RenderSettings[gpu.RenderSettingPrimarySamples] = r.renderSettings.PrimarySamples
	constants.RenderSettings[gpu.RenderSettingSecondarySamples] = r.renderSettings.SecondarySamples
	constants.RenderSettings[gpu.RenderSettingMaxDepth] = r.renderSettings.MaxDepth
	constants.RenderSettings[gpu.RenderSettingNumEmitters] = r.sceneManager.NumEmitters()
	r.cameras.ApplyRenderParameters(&constants.Parameters)
	cb.PushConstants(p, p.PushConstantStages, 0, gpu.ValueBytes(&constants))

	cb.TraceRays(p, r.extent.Width, r.extent.Height)
	r.frameNumber++
}

func (r *Renderer) recordDisplay(cb gpu.CommandBuffer, frame *FrameResources) {
	extent := r.presenter.SurfaceExtent()
	cb.BeginRenderPass(gpu.RenderPassBeginInfo{
		RenderPass:  r.renderPass,
		Framebuffer: r.framebuffers[r.imageIndex],
		Area:        gpu.Rect2D{Extent: extent},
	})
	cb.SetViewportAndScissor(extent)

	p := r.displayPipeline
	cb.BindPipeline(p)
	cb.BindDescriptorSets(p, gpu.DSDisplay, frame.DisplayDescriptorSet)
	var display gpu.DisplayParameters
	r.cameras.ApplyDisplayParameters(&display)
	cb.PushConstants(p, p.PushConstantStages, 0, gpu.ValueBytes(&display))
	cb.Draw(3, 1, 0, 0)
	cb.EndRenderPass()
}

// readTimestamps adds the GPU time of the frame that last ran in the slot, once its queries are available.
func (r *Renderer) readTimestamps(slot int) {
	if !r.timestampsWritten[slot] {
		return
	}
	results := r.device.QueryResults(r.queryPool, uint32(2*slot), 2)
	if results == nil {
		return
	}
	r.timestampsWritten[slot] = false
	ticks := float64(results[1] - results[0])
	r.stats.addGPUTime(ticks * float64(r.device.TimestampPeriod()) / 1e6)
}
