package gpu

import (
	"github.com/spaghettifunk/quartz/engine/core"
)

/** @brief A command buffer handle bound to the driver that records into it. */
type CommandBuffer struct {
	Handle CommandBufferHandle
	driver Driver
}

func (cb CommandBuffer) IsValid() bool {
	return cb.Handle != 0 && cb.driver != nil
}

func (cb CommandBuffer) Begin(usage CommandBufferUsage) bool {
	if r := cb.driver.BeginCommandBuffer(cb.Handle, usage); !r.IsSuccess() {
		core.LogError("failed to begin command buffer: %s", r)
		return false
	}
	return true
}

func (cb CommandBuffer) End() bool {
	if r := cb.driver.EndCommandBuffer(cb.Handle); !r.IsSuccess() {
		core.LogError("failed to end command buffer: %s", r)
		return false
	}
	return true
}

// ResourceBarrier records every transition as a single pipeline barrier.
func (cb CommandBuffer) ResourceBarrier(buffers []BufferTransition, images []ImageTransition) {
	if len(buffers) == 0 && len(images) == 0 {
		return
	}
	cb.driver.CmdPipelineBarrier(cb.Handle, ResolveBarrier(nil, buffers, images))
}

func (cb CommandBuffer) MemoryBarrier(from, to MemoryState) {
	cb.driver.CmdPipelineBarrier(cb.Handle, ResolveBarrier([]MemoryTransition{{From: from, To: to}}, nil, nil))
}

func (cb CommandBuffer) TransitionImage(image Image, from, to ImageState) {
	cb.ResourceBarrier(nil, []ImageTransition{{Image: image, From: from, To: to}})
}

func (cb CommandBuffer) TransitionBuffer(buffer BufferHandle, from, to BufferState) {
	cb.ResourceBarrier([]BufferTransition{{Buffer: buffer, From: from, To: to}}, nil)
}

func (cb CommandBuffer) CopyBuffer(src, dst BufferHandle, size uint64) {
	cb.driver.CmdCopyBuffer(cb.Handle, src, dst, []BufferCopy{{Size: size}})
}

// CopyBufferToImage copies tightly packed texels into the first level of every layer.
func (cb CommandBuffer) CopyBufferToImage(src BufferHandle, dst Image) {
	cb.driver.CmdCopyBufferToImage(cb.Handle, src, dst.Handle, ImageStateCopyDest.Layout(), []BufferImageCopy{{
		Aspect:     dst.Aspect,
		LayerCount: max(dst.Layers, 1),
		Extent:     dst.Extent,
	}})
}

func (cb CommandBuffer) CopyImageToBuffer(src Image, dst BufferHandle) {
	cb.driver.CmdCopyImageToBuffer(cb.Handle, src.Handle, ImageStateCopySource.Layout(), dst, []BufferImageCopy{{
		Aspect:     src.Aspect,
		LayerCount: max(src.Layers, 1),
		Extent:     src.Extent,
	}})
}

func (cb CommandBuffer) ClearColorImage(image Image, state ImageState, color [4]float32) {
	cb.driver.CmdClearColorImage(cb.Handle, image.Handle, state.Layout(), color)
}

func (cb CommandBuffer) BuildAccelerationStructure(info BuildAccelerationStructureInfo) {
	cb.driver.CmdBuildAccelerationStructure(cb.Handle, info)
}

func (cb CommandBuffer) BindPipeline(pipeline Pipeline) {
	cb.driver.CmdBindPipeline(cb.Handle, pipeline.BindPoint, pipeline.Handle)
}

func (cb CommandBuffer) BindDescriptorSets(pipeline Pipeline, firstSet uint32, sets ...DescriptorSetHandle) {
	cb.driver.CmdBindDescriptorSets(cb.Handle, pipeline.BindPoint, pipeline.Layout, firstSet, sets)
}

func (cb CommandBuffer) PushConstants(pipeline Pipeline, stages ShaderStage, offset uint32, data []byte) {
	cb.driver.CmdPushConstants(cb.Handle, pipeline.Layout, stages, offset, data)
}

// TraceRays dispatches the pipeline's raygen shader using its shader binding table.
func (cb CommandBuffer) TraceRays(pipeline Pipeline, width, height uint32) {
	cb.driver.CmdTraceRays(cb.Handle, TraceRaysInfo{
		ShaderBindingTable: pipeline.ShaderBindingTable.Handle,
		RaygenOffset:       0,
		MissOffset:         pipeline.MissGroupOffset,
		MissStride:         pipeline.HandleSize,
		HitOffset:          pipeline.HitGroupOffset,
		HitStride:          pipeline.HandleSize,
		Width:              width,
		Height:             height,
		Depth:              1,
	})
}

func (cb CommandBuffer) Dispatch(x, y, z uint32) {
	cb.driver.CmdDispatch(cb.Handle, x, y, z)
}

func (cb CommandBuffer) SetEvent(event EventHandle, stage PipelineStage) {
	cb.driver.CmdSetEvent(cb.Handle, event, stage)
}

func (cb CommandBuffer) ResetQueryPool(pool QueryPoolHandle, first, count uint32) {
	cb.driver.CmdResetQueryPool(cb.Handle, pool, first, count)
}

func (cb CommandBuffer) WriteTimestamp(stage PipelineStage, pool QueryPoolHandle, query uint32) {
	cb.driver.CmdWriteTimestamp(cb.Handle, stage, pool, query)
}

func (cb CommandBuffer) BeginRenderPass(info RenderPassBeginInfo) {
	cb.driver.CmdBeginRenderPass(cb.Handle, info)
}

func (cb CommandBuffer) EndRenderPass() {
	cb.driver.CmdEndRenderPass(cb.Handle)
}

// SetViewportAndScissor covers the full extent.
func (cb CommandBuffer) SetViewportAndScissor(extent Extent2D) {
	cb.driver.CmdSetViewport(cb.Handle, Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MaxDepth: 1,
	})
	cb.driver.CmdSetScissor(cb.Handle, Rect2D{Extent: extent})
}

func (cb CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	cb.driver.CmdDraw(cb.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}
