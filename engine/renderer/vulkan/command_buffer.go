package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

func (d *Driver) CreateCommandPool(info gpu.CommandPoolCreateInfo) (gpu.CommandPoolHandle, gpu.Result) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(d.device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(convertFlags(info.Flags, commandPoolBits)),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.device.LogicalDevice, &poolCreateInfo, d.allocator, &pool); res != vk.Success {
		return 0, result(res)
	}
	return gpu.CommandPoolHandle(d.commandPools.put(pool)), gpu.Success
}

// DestroyCommandPool also frees every command buffer allocated from the pool.
func (d *Driver) DestroyCommandPool(pool gpu.CommandPoolHandle) {
	handle, ok := d.commandPools.take(uint64(pool))
	if !ok {
		return
	}
	d.commandBuffers.removeIf(func(cb commandBufferObject) bool { return cb.pool == pool })
	_ = d.locks.SafeCall(CommandPoolManagement, func() error {
		vk.DestroyCommandPool(d.device.LogicalDevice, handle, d.allocator)
		return nil
	})
}

func (d *Driver) ResetCommandPool(pool gpu.CommandPoolHandle) gpu.Result {
	var res vk.Result
	_ = d.locks.SafeCall(CommandPoolManagement, func() error {
		res = vk.ResetCommandPool(d.device.LogicalDevice, d.commandPools.get(uint64(pool)), 0)
		return nil
	})
	if res == vk.Success {
		d.setPoolState(pool, COMMAND_BUFFER_STATE_READY)
	}
	return result(res)
}

func (d *Driver) setPoolState(pool gpu.CommandPoolHandle, state VulkanCommandBufferState) {
	d.commandBuffers.mu.Lock()
	defer d.commandBuffers.mu.Unlock()
	for h, cb := range d.commandBuffers.objects {
		if cb.pool == pool {
			cb.state = state
			d.commandBuffers.objects[h] = cb
		}
	}
}

func (d *Driver) setState(cb gpu.CommandBufferHandle, state VulkanCommandBufferState) {
	d.commandBuffers.mu.Lock()
	defer d.commandBuffers.mu.Unlock()
	if object, ok := d.commandBuffers.objects[uint64(cb)]; ok {
		object.state = state
		d.commandBuffers.objects[uint64(cb)] = object
	}
}

func (d *Driver) AllocateCommandBuffers(pool gpu.CommandPoolHandle, count uint32) ([]gpu.CommandBufferHandle, gpu.Result) {
	if count == 0 {
		return nil, gpu.Success
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPools.get(uint64(pool)),
		CommandBufferCount: count,
		Level:              vk.CommandBufferLevelPrimary,
	}
	buffers := make([]vk.CommandBuffer, count)
	var res vk.Result
	_ = d.locks.SafeCall(CommandPoolManagement, func() error {
		res = vk.AllocateCommandBuffers(d.device.LogicalDevice, &allocateInfo, buffers)
		return nil
	})
	if res != vk.Success {
		return nil, result(res)
	}
	handles := make([]gpu.CommandBufferHandle, count)
	for i, b := range buffers {
		handles[i] = gpu.CommandBufferHandle(d.commandBuffers.put(commandBufferObject{
			handle: b,
			pool:   pool,
			state:  COMMAND_BUFFER_STATE_READY,
		}))
	}
	return handles, gpu.Success
}

func (d *Driver) FreeCommandBuffers(pool gpu.CommandPoolHandle, buffers []gpu.CommandBufferHandle) {
	native := make([]vk.CommandBuffer, 0, len(buffers))
	for _, cb := range buffers {
		if object, ok := d.commandBuffers.take(uint64(cb)); ok {
			native = append(native, object.handle)
		}
	}
	if len(native) == 0 {
		return
	}
	_ = d.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(d.device.LogicalDevice, d.commandPools.get(uint64(pool)), uint32(len(native)), native)
		return nil
	})
}

func (d *Driver) BeginCommandBuffer(cb gpu.CommandBufferHandle, usage gpu.CommandBufferUsage) gpu.Result {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(convertFlags(usage, commandBufferUsageBits)),
	}
	res := vk.BeginCommandBuffer(d.commandBuffers.get(uint64(cb)).handle, &beginInfo)
	if res == vk.Success {
		d.setState(cb, COMMAND_BUFFER_STATE_RECORDING)
	}
	return result(res)
}

func (d *Driver) EndCommandBuffer(cb gpu.CommandBufferHandle) gpu.Result {
	res := vk.EndCommandBuffer(d.commandBuffers.get(uint64(cb)).handle)
	if res == vk.Success {
		d.setState(cb, COMMAND_BUFFER_STATE_RECORDING_ENDED)
	}
	return result(res)
}

func (d *Driver) QueueSubmit(queue gpu.QueueHandle, submits []gpu.SubmitInfo, fence gpu.FenceHandle) gpu.Result {
	native := make([]vk.SubmitInfo, len(submits))
	var submitted []gpu.CommandBufferHandle
	for i, s := range submits {
		buffers := make([]vk.CommandBuffer, len(s.CommandBuffers))
		for j, cb := range s.CommandBuffers {
			buffers[j] = d.commandBuffers.get(uint64(cb)).handle
		}
		submitted = append(submitted, s.CommandBuffers...)
		waits := make([]vk.Semaphore, len(s.WaitSemaphores))
		stages := make([]vk.PipelineStageFlags, len(s.WaitSemaphores))
		for j, sem := range s.WaitSemaphores {
			waits[j] = d.semaphores.get(uint64(sem))
			if j < len(s.WaitStages) {
				stages[j] = vkPipelineStages(s.WaitStages[j])
			} else {
				stages[j] = vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
			}
		}
		signals := make([]vk.Semaphore, len(s.SignalSemaphores))
		for j, sem := range s.SignalSemaphores {
			signals[j] = d.semaphores.get(uint64(sem))
		}
		native[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(waits)),
			PWaitSemaphores:      waits,
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(buffers)),
			PCommandBuffers:      buffers,
			SignalSemaphoreCount: uint32(len(signals)),
			PSignalSemaphores:    signals,
		}
	}

	var res vk.Result
	_ = d.locks.SafeQueueCall(uint32(d.device.GraphicsQueueIndex), func() error {
		res = vk.QueueSubmit(d.queues.get(uint64(queue)), uint32(len(native)), native, d.fences.get(uint64(fence)))
		return nil
	})
	if res == vk.Success {
		for _, cb := range submitted {
			d.setState(cb, COMMAND_BUFFER_STATE_SUBMITTED)
		}
	}
	return result(res)
}

func (d *Driver) cmd(cb gpu.CommandBufferHandle) vk.CommandBuffer {
	return d.commandBuffers.get(uint64(cb)).handle
}

func (d *Driver) CmdPipelineBarrier(cb gpu.CommandBufferHandle, barrier gpu.PipelineBarrier) {
	memory := make([]vk.MemoryBarrier, len(barrier.Memory))
	for i, m := range barrier.Memory {
		memory[i] = vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vkAccess(m.SrcAccess),
			DstAccessMask: vkAccess(m.DstAccess),
		}
	}
	buffers := make([]vk.BufferMemoryBarrier, len(barrier.Buffers))
	for i, b := range barrier.Buffers {
		size := vk.DeviceSize(b.Size)
		if b.Size == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		buffers[i] = vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vkAccess(b.SrcAccess),
			DstAccessMask:       vkAccess(b.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              d.buffers.get(uint64(b.Buffer)).handle,
			Offset:              vk.DeviceSize(b.Offset),
			Size:                size,
		}
	}
	images := make([]vk.ImageMemoryBarrier, len(barrier.Images))
	for i, img := range barrier.Images {
		images[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vkAccess(img.SrcAccess),
			DstAccessMask:       vkAccess(img.DstAccess),
			OldLayout:           vkImageLayout(img.OldLayout),
			NewLayout:           vkImageLayout(img.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               d.images.get(uint64(img.Image)).handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vkImageAspect(img.Aspect),
				BaseMipLevel:   img.BaseLevel,
				LevelCount:     img.Levels,
				BaseArrayLayer: img.BaseLayer,
				LayerCount:     img.Layers,
			},
		}
	}
	vk.CmdPipelineBarrier(d.cmd(cb),
		vkPipelineStages(barrier.SrcStage), vkPipelineStages(barrier.DstStage), 0,
		uint32(len(memory)), memory,
		uint32(len(buffers)), buffers,
		uint32(len(images)), images)
}

func (d *Driver) CmdCopyBuffer(cb gpu.CommandBufferHandle, src, dst gpu.BufferHandle, regions []gpu.BufferCopy) {
	native := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		native[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(d.cmd(cb), d.buffers.get(uint64(src)).handle, d.buffers.get(uint64(dst)).handle, uint32(len(native)), native)
}

func bufferImageCopies(regions []gpu.BufferImageCopy) []vk.BufferImageCopy {
	native := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		native[i] = vk.BufferImageCopy{
			BufferOffset: vk.DeviceSize(r.BufferOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vkImageAspect(r.Aspect),
				MipLevel:       r.MipLevel,
				BaseArrayLayer: r.BaseLayer,
				LayerCount:     r.LayerCount,
			},
			ImageExtent: vk.Extent3D{
				Width:  r.Extent.Width,
				Height: r.Extent.Height,
				Depth:  max(r.Extent.Depth, 1),
			},
		}
	}
	return native
}

func (d *Driver) CmdCopyBufferToImage(cb gpu.CommandBufferHandle, src gpu.BufferHandle, dst gpu.ImageHandle, layout gpu.ImageLayout, regions []gpu.BufferImageCopy) {
	native := bufferImageCopies(regions)
	vk.CmdCopyBufferToImage(d.cmd(cb), d.buffers.get(uint64(src)).handle, d.images.get(uint64(dst)).handle, vkImageLayout(layout), uint32(len(native)), native)
}

func (d *Driver) CmdCopyImageToBuffer(cb gpu.CommandBufferHandle, src gpu.ImageHandle, layout gpu.ImageLayout, dst gpu.BufferHandle, regions []gpu.BufferImageCopy) {
	native := bufferImageCopies(regions)
	vk.CmdCopyImageToBuffer(d.cmd(cb), d.images.get(uint64(src)).handle, vkImageLayout(layout), d.buffers.get(uint64(dst)).handle, uint32(len(native)), native)
}

func (d *Driver) CmdClearColorImage(cb gpu.CommandBufferHandle, image gpu.ImageHandle, layout gpu.ImageLayout, color [4]float32) {
	clear := vk.NewClearValue(color[:])
	// The clear value union starts with the float color.
	clearColor := *(*vk.ClearColorValue)(unsafe.Pointer(&clear))
	ranges := []vk.ImageSubresourceRange{{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		BaseMipLevel:   0,
		LevelCount:     vk.RemainingMipLevels,
		BaseArrayLayer: 0,
		LayerCount:     vk.RemainingArrayLayers,
	}}
	vk.CmdClearColorImage(d.cmd(cb), d.images.get(uint64(image)).handle, vkImageLayout(layout), &clearColor, 1, ranges)
}

func (d *Driver) CmdBindPipeline(cb gpu.CommandBufferHandle, bindPoint gpu.PipelineBindPoint, pipeline gpu.PipelineHandle) {
	vk.CmdBindPipeline(d.cmd(cb), vkBindPoint(bindPoint), d.pipelines.get(uint64(pipeline)))
}

func (d *Driver) CmdBindDescriptorSets(cb gpu.CommandBufferHandle, bindPoint gpu.PipelineBindPoint, layout gpu.PipelineLayoutHandle, firstSet uint32, sets []gpu.DescriptorSetHandle) {
	if len(sets) == 0 {
		return
	}
	native := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		native[i] = d.descriptorSets.get(uint64(s)).handle
	}
	vk.CmdBindDescriptorSets(d.cmd(cb), vkBindPoint(bindPoint), d.pipelineLayouts.get(uint64(layout)), firstSet, uint32(len(native)), native, 0, nil)
}

func (d *Driver) CmdPushConstants(cb gpu.CommandBufferHandle, layout gpu.PipelineLayoutHandle, stages gpu.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(d.cmd(cb), d.pipelineLayouts.get(uint64(layout)), vkShaderStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *Driver) CmdTraceRays(cb gpu.CommandBufferHandle, info gpu.TraceRaysInfo) {
	sbt := d.buffers.get(uint64(info.ShaderBindingTable)).handle
	vk.CmdTraceRaysNV(d.cmd(cb),
		sbt, vk.DeviceSize(info.RaygenOffset),
		sbt, vk.DeviceSize(info.MissOffset), vk.DeviceSize(info.MissStride),
		sbt, vk.DeviceSize(info.HitOffset), vk.DeviceSize(info.HitStride),
		vk.NullBuffer, 0, 0,
		info.Width, info.Height, max(info.Depth, 1))
}

func (d *Driver) CmdDispatch(cb gpu.CommandBufferHandle, x, y, z uint32) {
	vk.CmdDispatch(d.cmd(cb), x, y, z)
}

func (d *Driver) CmdSetEvent(cb gpu.CommandBufferHandle, event gpu.EventHandle, stage gpu.PipelineStage) {
	vk.CmdSetEvent(d.cmd(cb), d.events.get(uint64(event)), vkPipelineStages(stage))
}

func (d *Driver) CmdResetQueryPool(cb gpu.CommandBufferHandle, pool gpu.QueryPoolHandle, first, count uint32) {
	vk.CmdResetQueryPool(d.cmd(cb), d.queryPools.get(uint64(pool)), first, count)
}

func (d *Driver) CmdWriteTimestamp(cb gpu.CommandBufferHandle, stage gpu.PipelineStage, pool gpu.QueryPoolHandle, query uint32) {
	vk.CmdWriteTimestamp(d.cmd(cb), vkPipelineStage(stage), d.queryPools.get(uint64(pool)), query)
}

func (d *Driver) CmdBeginRenderPass(cb gpu.CommandBufferHandle, info gpu.RenderPassBeginInfo) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  d.renderPasses.get(uint64(info.RenderPass)),
		Framebuffer: d.framebuffers.get(uint64(info.Framebuffer)),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: info.Area.Offset.X, Y: info.Area.Offset.Y},
			Extent: vk.Extent2D{Width: info.Area.Extent.Width, Height: info.Area.Extent.Height},
		},
		ClearValueCount: 1,
		PClearValues:    []vk.ClearValue{vk.NewClearValue(info.ClearColor[:])},
	}
	vk.CmdBeginRenderPass(d.cmd(cb), &beginInfo, vk.SubpassContentsInline)
	d.setState(cb, COMMAND_BUFFER_STATE_IN_RENDER_PASS)
}

func (d *Driver) CmdEndRenderPass(cb gpu.CommandBufferHandle) {
	vk.CmdEndRenderPass(d.cmd(cb))
	d.setState(cb, COMMAND_BUFFER_STATE_RECORDING)
}

func (d *Driver) CmdSetViewport(cb gpu.CommandBufferHandle, viewport gpu.Viewport) {
	vk.CmdSetViewport(d.cmd(cb), 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (d *Driver) CmdSetScissor(cb gpu.CommandBufferHandle, scissor gpu.Rect2D) {
	vk.CmdSetScissor(d.cmd(cb), 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: scissor.Offset.X, Y: scissor.Offset.Y},
		Extent: vk.Extent2D{Width: scissor.Extent.Width, Height: scissor.Extent.Height},
	}})
}

func (d *Driver) CmdDraw(cb gpu.CommandBufferHandle, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(d.cmd(cb), vertexCount, instanceCount, firstVertex, firstInstance)
}
