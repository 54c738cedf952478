package gpu

// Driver is the native API seen through portable types. Implementations return the
// native result code on failure and never log; Device does the logging.
type Driver interface {
	Name() string
	RayTracingProperties() RayTracingProperties
	// TimestampPeriod is the number of nanoseconds per timestamp tick.
	TimestampPeriod() float32
	GraphicsQueue() QueueHandle
	WaitIdle() Result
	Destroy()

	CreateBuffer(info BufferCreateInfo) (Buffer, Result)
	DestroyBuffer(buffer Buffer)
	MapBuffer(buffer Buffer) ([]byte, Result)
	UnmapBuffer(buffer Buffer)

	CreateImage(info ImageCreateInfo) (Image, Result)
	DestroyImage(image Image)

	CreateAccelerationStructure(info AccelerationStructureCreateInfo) (AccelerationStructure, Result)
	DestroyAccelerationStructure(as AccelerationStructure)
	AccelerationStructureScratchSize(as AccelerationStructure, kind ScratchBufferType) uint64
	AccelerationStructureHandle(as AccelerationStructure) (uint64, Result)

	CreateDescriptorPool(info DescriptorPoolCreateInfo) (DescriptorPoolHandle, Result)
	DestroyDescriptorPool(pool DescriptorPoolHandle)
	CreateDescriptorSetLayout(info DescriptorSetLayoutCreateInfo) (DescriptorSetLayoutHandle, Result)
	DestroyDescriptorSetLayout(layout DescriptorSetLayoutHandle)
	AllocateDescriptorSets(info DescriptorSetAllocateInfo) ([]DescriptorSetHandle, Result)
	UpdateDescriptorSets(writes []WriteDescriptorSet)

	CreateSampler(info SamplerCreateInfo) (SamplerHandle, Result)
	DestroySampler(sampler SamplerHandle)

	CreateFence(signaled bool) (FenceHandle, Result)
	DestroyFence(fence FenceHandle)
	FenceStatus(fence FenceHandle) Result
	WaitForFence(fence FenceHandle, timeoutNs uint64) Result
	ResetFence(fence FenceHandle) Result

	CreateEvent() (EventHandle, Result)
	DestroyEvent(event EventHandle)
	EventStatus(event EventHandle) Result

	CreateSemaphore() (SemaphoreHandle, Result)
	DestroySemaphore(semaphore SemaphoreHandle)

	CreateCommandPool(info CommandPoolCreateInfo) (CommandPoolHandle, Result)
	DestroyCommandPool(pool CommandPoolHandle)
	ResetCommandPool(pool CommandPoolHandle) Result
	AllocateCommandBuffers(pool CommandPoolHandle, count uint32) ([]CommandBufferHandle, Result)
	FreeCommandBuffers(pool CommandPoolHandle, buffers []CommandBufferHandle)
	BeginCommandBuffer(cb CommandBufferHandle, usage CommandBufferUsage) Result
	EndCommandBuffer(cb CommandBufferHandle) Result
	QueueSubmit(queue QueueHandle, submits []SubmitInfo, fence FenceHandle) Result

	CreateQueryPool(info QueryPoolCreateInfo) (QueryPoolHandle, Result)
	DestroyQueryPool(pool QueryPoolHandle)
	QueryResults(pool QueryPoolHandle, first, count uint32) ([]uint64, Result)

	CreateShaderModule(code []byte) (ShaderModuleHandle, Result)
	DestroyShaderModule(module ShaderModuleHandle)
	CreatePipelineLayout(info PipelineLayoutCreateInfo) (PipelineLayoutHandle, Result)
	DestroyPipelineLayout(layout PipelineLayoutHandle)
	CreateGraphicsPipeline(info GraphicsPipelineCreateInfo) (PipelineHandle, Result)
	CreateComputePipeline(info ComputePipelineCreateInfo) (PipelineHandle, Result)
	CreateRayTracingPipeline(info RayTracingPipelineCreateInfo) (PipelineHandle, Result)
	DestroyPipeline(pipeline PipelineHandle)
	ShaderGroupHandles(pipeline PipelineHandle, firstGroup, groupCount uint32) ([]byte, Result)

	CreateRenderPass(info RenderPassCreateInfo) (RenderPassHandle, Result)
	DestroyRenderPass(pass RenderPassHandle)
	CreateFramebuffer(info FramebufferCreateInfo) (FramebufferHandle, Result)
	DestroyFramebuffer(framebuffer FramebufferHandle)

	CmdPipelineBarrier(cb CommandBufferHandle, barrier PipelineBarrier)
	CmdCopyBuffer(cb CommandBufferHandle, src, dst BufferHandle, regions []BufferCopy)
	CmdCopyBufferToImage(cb CommandBufferHandle, src BufferHandle, dst ImageHandle, layout ImageLayout, regions []BufferImageCopy)
	CmdCopyImageToBuffer(cb CommandBufferHandle, src ImageHandle, layout ImageLayout, dst BufferHandle, regions []BufferImageCopy)
	CmdClearColorImage(cb CommandBufferHandle, image ImageHandle, layout ImageLayout, color [4]float32)
	CmdBuildAccelerationStructure(cb CommandBufferHandle, info BuildAccelerationStructureInfo)
	CmdBindPipeline(cb CommandBufferHandle, bindPoint PipelineBindPoint, pipeline PipelineHandle)
	CmdBindDescriptorSets(cb CommandBufferHandle, bindPoint PipelineBindPoint, layout PipelineLayoutHandle, firstSet uint32, sets []DescriptorSetHandle)
	CmdPushConstants(cb CommandBufferHandle, layout PipelineLayoutHandle, stages ShaderStage, offset uint32, data []byte)
	CmdTraceRays(cb CommandBufferHandle, info TraceRaysInfo)
	CmdDispatch(cb CommandBufferHandle, x, y, z uint32)
	CmdSetEvent(cb CommandBufferHandle, event EventHandle, stage PipelineStage)
	CmdResetQueryPool(cb CommandBufferHandle, pool QueryPoolHandle, first, count uint32)
	CmdWriteTimestamp(cb CommandBufferHandle, stage PipelineStage, pool QueryPoolHandle, query uint32)
	CmdBeginRenderPass(cb CommandBufferHandle, info RenderPassBeginInfo)
	CmdEndRenderPass(cb CommandBufferHandle)
	CmdSetViewport(cb CommandBufferHandle, viewport Viewport)
	CmdSetScissor(cb CommandBufferHandle, scissor Rect2D)
	CmdDraw(cb CommandBufferHandle, vertexCount, instanceCount, firstVertex, firstInstance uint32)
}

// Presenter is implemented by drivers attached to a window surface.
type Presenter interface {
	SurfaceFormat() Format
	SurfaceExtent() Extent2D
	SwapchainViews() []ImageViewHandle
	// AcquireNextImage returns the swapchain image index and the semaphore signaled when it is available.
	AcquireNextImage() (uint32, SemaphoreHandle, Result)
	// Present waits on the semaphore before presenting the image.
	Present(imageIndex uint32, wait SemaphoreHandle) Result
	RecreateSwapchain(width, height uint32) Result
}
