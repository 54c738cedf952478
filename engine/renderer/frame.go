package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/renderer/pipeline"
	"github.com/spaghettifunk/quartz/engine/systems"
)

const renderBufferFormat = gpu.FormatR16G16B16A16SFloat

/** @brief Resources owned by one frame in flight. Freed only at shutdown. */
type FrameResources struct {
	CommandBuffer gpu.CommandBuffer
	// Created signaled so that the first wait on a slot returns immediately.
	ExecutedFence        gpu.FenceHandle
	RenderBuffer         gpu.Image
	RenderDescriptorSet  gpu.DescriptorSetHandle
	DisplayDescriptorSet gpu.DescriptorSetHandle
	// Only with a presenter.
	RenderFinished gpu.SemaphoreHandle
}

func (r *Renderer) createRenderBuffer() gpu.Image {
	return r.device.CreateImage(gpu.ImageCreateInfo{
		Type:   gpu.ImageType2D,
		Format: renderBufferFormat,
		Extent: gpu.Extent3D{Width: r.extent.Width, Height: r.extent.Height, Depth: 1},
		Usage:  gpu.ImageUsageStorage | gpu.ImageUsageSampled | gpu.ImageUsageTransferSrc | gpu.ImageUsageTransferDst,
		Memory: gpu.MemoryUsageGPUOnly,
	})
}

func (r *Renderer) createFrameResources(count int) error {
	r.framePool = r.device.CreateCommandPool(gpu.CommandPoolCreateResetCommandBuffer)
	if !r.framePool.IsValid() {
		return errors.Wrap(ErrResourceCreation, "frame command pool")
	}
	r.queryPool = r.device.CreateQueryPool(gpu.QueryPoolCreateInfo{Type: gpu.QueryTypeTimestamp, Count: uint32(2 * count)})
	if !r.queryPool.IsValid() {
		return errors.Wrap(ErrResourceCreation, "timestamp query pool")
	}

	r.frames = make([]FrameResources, count)
	r.timestampsWritten = make([]bool, count)
	for i := range r.frames {
		f := &r.frames[i]
		f.CommandBuffer = r.device.AllocateCommandBuffer(r.framePool)
		if !f.CommandBuffer.IsValid() {
			return errors.Wrapf(ErrResourceCreation, "command buffer of frame %d", i)
		}
		f.ExecutedFence = r.device.CreateFence(true)
		if !f.ExecutedFence.IsValid() {
			return errors.Wrapf(ErrResourceCreation, "fence of frame %d", i)
		}
		f.RenderBuffer = r.createRenderBuffer()
		if !f.RenderBuffer.IsValid() {
			return errors.Wrapf(ErrResourceCreation, "render buffer of frame %d", i)
		}
		if r.presenter != nil {
			f.RenderFinished = r.device.CreateSemaphore()
			if !f.RenderFinished.IsValid() {
				return errors.Wrapf(ErrResourceCreation, "semaphore of frame %d", i)
			}
		}
	}
	r.frameIndex = 0
	r.renderBuffersReady = false
	r.hasFrame = false
	return nil
}

func (r *Renderer) destroyFrameResources() {
	for i := range r.frames {
		f := &r.frames[i]
		r.device.FreeCommandBuffers(r.framePool, f.CommandBuffer)
		r.device.DestroyFence(&f.ExecutedFence)
		r.device.DestroyImage(&f.RenderBuffer)
		r.device.DestroySemaphore(&f.RenderFinished)
	}
	r.frames = nil
	r.timestampsWritten = nil
	r.device.DestroyQueryPool(&r.queryPool)
	r.device.DestroyCommandPool(&r.framePool)
}

// recreateRenderBuffers replaces every render buffer with one of the current extent. The device must be idle.
func (r *Renderer) recreateRenderBuffers() error {
	for i := range r.frames {
		f := &r.frames[i]
		r.device.DestroyImage(&f.RenderBuffer)
		f.RenderBuffer = r.createRenderBuffer()
		if !f.RenderBuffer.IsValid() {
			return errors.Wrapf(ErrResourceCreation, "render buffer of frame %d", i)
		}
	}
	r.renderBuffersReady = false
	r.hasFrame = false
	return nil
}

// previousFrame is the slot submitted right before the current one.
func (r *Renderer) previousFrame() *FrameResources {
	return &r.frames[(r.frameIndex+len(r.frames)-1)%len(r.frames)]
}

/**
 * @brief Allocates the render and display descriptor sets of every frame from a fresh pool and
 * writes the render buffer bindings. Scene bindings are written when a frame is recorded.
 * The device must be idle.
 */
func (r *Renderer) createDescriptorSets() error {
	r.device.DestroyDescriptorPool(&r.descriptorPool)

	n := uint32(len(r.frames))
	info := gpu.DescriptorPoolCreateInfo{
		MaxSets: n,
		Sizes: []gpu.DescriptorPoolSize{
			{Type: gpu.DescriptorTypeAccelerationStructure, Count: n},
			{Type: gpu.DescriptorTypeStorageBuffer, Count: 3 * n},
			{Type: gpu.DescriptorTypeStorageImage, Count: 2 * n},
		},
	}
	display := r.displayPipeline.IsValid()
	if display {
		info.MaxSets += n
		info.Sizes = append(info.Sizes, gpu.DescriptorPoolSize{Type: gpu.DescriptorTypeCombinedImageSampler, Count: n})
	}
	r.descriptorPool = r.device.CreateDescriptorPool(info)
	if !r.descriptorPool.IsValid() {
		return errors.Wrap(ErrResourceCreation, "frame descriptor pool")
	}

	for i := range r.frames {
		f := &r.frames[i]
		previous := r.frames[(i+len(r.frames)-1)%len(r.frames)].RenderBuffer

		f.RenderDescriptorSet = r.device.AllocateDescriptorSet(r.descriptorPool, r.renderPipeline.DescriptorSetLayouts[gpu.DSRender], 0)
		if !f.RenderDescriptorSet.IsValid() {
			return errors.Wrapf(ErrResourceCreation, "render descriptor set of frame %d", i)
		}
		r.device.WriteDescriptors(
			gpu.WriteDescriptorSet{
				Set:     f.RenderDescriptorSet,
				Binding: gpu.BindingRenderBuffer,
				Type:    gpu.DescriptorTypeStorageImage,
				Images:  []gpu.DescriptorImageInfo{{View: f.RenderBuffer.View, Layout: gpu.ImageStateShaderReadWrite.Layout()}},
			},
			gpu.WriteDescriptorSet{
				Set:     f.RenderDescriptorSet,
				Binding: gpu.BindingPrevRenderBuffer,
				Type:    gpu.DescriptorTypeStorageImage,
				Images:  []gpu.DescriptorImageInfo{{View: previous.View, Layout: gpu.ImageStateShaderReadWrite.Layout()}},
			},
		)

		f.DisplayDescriptorSet = 0
		if !display {
			continue
		}
		f.DisplayDescriptorSet = r.device.AllocateDescriptorSet(r.descriptorPool, r.displayPipeline.DescriptorSetLayouts[gpu.DSDisplay], 0)
		if !f.DisplayDescriptorSet.IsValid() {
			return errors.Wrapf(ErrResourceCreation, "display descriptor set of frame %d", i)
		}
		r.device.WriteDescriptors(gpu.WriteDescriptorSet{
			Set:     f.DisplayDescriptorSet,
			Binding: gpu.BindingDisplayBuffer,
			Type:    gpu.DescriptorTypeCombinedImageSampler,
			Images: []gpu.DescriptorImageInfo{{
				Sampler: r.displaySampler,
				View:    f.RenderBuffer.View,
				Layout:  gpu.ImageStateShaderRead.Layout(),
			}},
		})
	}
	return nil
}

// writeSceneDescriptors points the frame's render set at the current scene resources.
func (r *Renderer) writeSceneDescriptors(f *FrameResources) {
	sm := r.sceneManager
	storage := func(binding uint32, b gpu.Buffer) gpu.WriteDescriptorSet {
		return gpu.WriteDescriptorSet{
			Set:     f.RenderDescriptorSet,
			Binding: binding,
			Type:    gpu.DescriptorTypeStorageBuffer,
			Buffers: []gpu.DescriptorBufferInfo{{Buffer: b.Handle, Range: b.Size}},
		}
	}
	r.device.WriteDescriptors(
		gpu.WriteDescriptorSet{
			Set:                    f.RenderDescriptorSet,
			Binding:                gpu.BindingTLAS,
			Type:                   gpu.DescriptorTypeAccelerationStructure,
			AccelerationStructures: []gpu.AccelerationStructureHandle{sm.SceneTLAS().Handle},
		},
		storage(gpu.BindingInstances, sm.InstanceBuffer()),
		storage(gpu.BindingMaterials, sm.MaterialBuffer()),
		storage(gpu.BindingEmitters, sm.EmitterBuffer()),
	)
}

// createDisplayTargets creates the display sampler and render pass once and a framebuffer per swapchain image.
func (r *Renderer) createDisplayTargets() error {
	if !r.displaySampler.IsValid() {
		r.displaySampler = r.device.CreateSampler(gpu.SamplerCreateInfo{
			MagFilter:   gpu.FilterNearest,
			MinFilter:   gpu.FilterNearest,
			AddressMode: gpu.SamplerAddressClampToEdge,
		})
		if !r.displaySampler.IsValid() {
			return errors.Wrap(ErrResourceCreation, "display sampler")
		}
	}
	if !r.renderPass.IsValid() {
		r.renderPass = r.device.CreateRenderPass(gpu.RenderPassCreateInfo{
			ColorAttachments: []gpu.AttachmentDescription{{
				Format:        r.presenter.SurfaceFormat(),
				Store:         true,
				InitialLayout: gpu.ImageLayoutUndefined,
				FinalLayout:   gpu.ImageLayoutPresentSrc,
			}},
		})
		if !r.renderPass.IsValid() {
			return errors.Wrap(ErrResourceCreation, "display render pass")
		}
	}

	extent := r.presenter.SurfaceExtent()
	views := r.presenter.SwapchainViews()
	r.framebuffers = make([]gpu.FramebufferHandle, len(views))
	for i, view := range views {
		r.framebuffers[i] = r.device.CreateFramebuffer(gpu.FramebufferCreateInfo{
			RenderPass:  r.renderPass,
			Attachments: []gpu.ImageViewHandle{view},
			Width:       extent.Width,
			Height:      extent.Height,
		})
		if !r.framebuffers[i].IsValid() {
			return errors.Wrapf(ErrResourceCreation, "framebuffer of swapchain image %d", i)
		}
	}
	return nil
}

func (r *Renderer) destroyFramebuffers() {
	for i := range r.framebuffers {
		r.device.DestroyFramebuffer(&r.framebuffers[i])
	}
	r.framebuffers = nil
}

func (r *Renderer) destroyDisplayTargets() {
	r.destroyFramebuffers()
	r.device.DestroyRenderPass(&r.renderPass)
}

/**
 * @brief Builds the ray tracing pipeline and, with a presenter, the display pipeline.
 * Nothing is left behind on failure.
 */
func (r *Renderer) buildPipelines() (gpu.Pipeline, gpu.Pipeline, error) {
	shaderDir := r.cfg.Renderer.ShaderDir
	render := pipeline.NewRayTracingBuilder(r.device, shaderDir).
		Shaders(raygenShader, missShader, closestHitShader).
		MaxRecursionDepth(r.cfg.Renderer.MaxRecursionDepth).
		DescriptorBindingManager(gpu.DSAttributeBuffer, 0, r.descriptors, systems.ResourceClassAttributeBuffer).
		DescriptorBindingManager(gpu.DSIndexBuffer, 0, r.descriptors, systems.ResourceClassIndexBuffer).
		DescriptorBindingManager(gpu.DSTexture, 0, r.descriptors, systems.ResourceClassTexture).
		Build()
	if !render.IsValid() {
		return gpu.Pipeline{}, gpu.Pipeline{}, errors.Wrap(ErrPipeline, "ray tracing")
	}
	if r.presenter == nil {
		return render, gpu.Pipeline{}, nil
	}

	display := pipeline.NewGraphicsBuilder(r.device, shaderDir).
		Shaders(vertexShader, fragmentShader).
		RenderPass(r.renderPass, 0).
		DescriptorBindingSampler(gpu.DSDisplay, gpu.BindingDisplayBuffer, r.displaySampler).
		Build()
	if !display.IsValid() {
		r.device.DestroyPipeline(&render)
		return gpu.Pipeline{}, gpu.Pipeline{}, errors.Wrap(ErrPipeline, "display")
	}
	return render, display, nil
}

func (r *Renderer) createPipelines() error {
	render, display, err := r.buildPipelines()
	if err != nil {
		return err
	}
	r.renderPipeline, r.displayPipeline = render, display
	return nil
}

// reloadPipelines rebuilds the pipelines from the shaders on disk, keeping the old ones on failure.
func (r *Renderer) reloadPipelines() {
	r.device.WaitIdle()
	render, display, err := r.buildPipelines()
	if err != nil {
		core.LogError("shader reload failed, keeping the current pipelines: %v", err)
		return
	}
	r.device.DestroyPipeline(&r.renderPipeline)
	r.device.DestroyPipeline(&r.displayPipeline)
	r.renderPipeline, r.displayPipeline = render, display

	if err := r.createDescriptorSets(); err != nil {
		core.LogError("failed to recreate descriptor sets after shader reload: %v", err)
		return
	}
	r.resetProgress()
	core.LogInfo("pipelines reloaded")
}
