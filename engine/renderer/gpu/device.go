package gpu

import (
	"github.com/spaghettifunk/quartz/engine/core"
)

const (
	// FenceTimeoutInfinite waits for a fence without a deadline.
	FenceTimeoutInfinite uint64 = ^uint64(0)
)

/**
 * @brief Owns the driver and wraps every create/destroy pair. Create calls return
 * the zero value on failure after logging the result code, destroy calls reset the
 * caller's copy and ignore zero values.
 */
type Device struct {
	driver     Driver
	properties RayTracingProperties
	queue      QueueHandle
}

func NewDevice(driver Driver) *Device {
	return &Device{
		driver:     driver,
		properties: driver.RayTracingProperties(),
		queue:      driver.GraphicsQueue(),
	}
}

func (d *Device) Driver() Driver {
	return d.driver
}

// Presenter returns nil when the driver renders without a surface.
func (d *Device) Presenter() Presenter {
	if p, ok := d.driver.(Presenter); ok {
		return p
	}
	return nil
}

func (d *Device) RayTracingProperties() RayTracingProperties {
	return d.properties
}

func (d *Device) TimestampPeriod() float32 {
	return d.driver.TimestampPeriod()
}

func (d *Device) GraphicsQueue() QueueHandle {
	return d.queue
}

func (d *Device) WaitIdle() {
	if r := d.driver.WaitIdle(); !r.IsSuccess() {
		core.LogError("failed to wait for device idle: %s", r)
	}
}

func (d *Device) Destroy() {
	if d.driver == nil {
		return
	}
	d.driver.Destroy()
	d.driver = nil
}

func failed(r Result, what string) bool {
	if r.IsSuccess() {
		return false
	}
	core.LogError("failed to create %s: %s", what, r)
	return true
}

func (d *Device) CreateBuffer(info BufferCreateInfo) Buffer {
	if info.Size == 0 {
		core.LogError("failed to create buffer: zero size")
		return Buffer{}
	}
	if info.Map && !info.Memory.IsHostVisible() {
		core.LogError("failed to create buffer: GPU only memory cannot be mapped")
		return Buffer{}
	}
	buffer, r := d.driver.CreateBuffer(info)
	if failed(r, "buffer") {
		return Buffer{}
	}
	return buffer
}

// CreateStagingBuffer creates a mapped CPU only buffer usable as a transfer source.
func (d *Device) CreateStagingBuffer(size uint64) Buffer {
	return d.CreateBuffer(BufferCreateInfo{
		Size:   size,
		Usage:  BufferUsageTransferSrc,
		Memory: MemoryUsageCPUOnly,
		Map:    true,
	})
}

// CreateReadbackBuffer creates a mapped buffer the GPU copies into for the host to read.
func (d *Device) CreateReadbackBuffer(size uint64) Buffer {
	return d.CreateBuffer(BufferCreateInfo{
		Size:   size,
		Usage:  BufferUsageTransferDst,
		Memory: MemoryUsageGPUToCPU,
		Map:    true,
	})
}

// CreateHostBuffer creates a mapped buffer written by the host and read by the GPU.
func (d *Device) CreateHostBuffer(size uint64, usage BufferUsage) Buffer {
	return d.CreateBuffer(BufferCreateInfo{
		Size:   size,
		Usage:  usage,
		Memory: MemoryUsageCPUToGPU,
		Map:    true,
	})
}

func (d *Device) DestroyBuffer(buffer *Buffer) {
	if buffer == nil || !buffer.IsValid() {
		return
	}
	d.driver.DestroyBuffer(*buffer)
	*buffer = Buffer{}
}

func (d *Device) MapBuffer(buffer *Buffer) bool {
	if buffer.Mapped != nil {
		return true
	}
	data, r := d.driver.MapBuffer(*buffer)
	if !r.IsSuccess() {
		core.LogError("failed to map buffer memory: %s", r)
		return false
	}
	buffer.Mapped = data
	return true
}

func (d *Device) UnmapBuffer(buffer *Buffer) {
	if buffer.Mapped == nil {
		return
	}
	d.driver.UnmapBuffer(*buffer)
	buffer.Mapped = nil
}

// ViewTypeFor derives the default view type of an image from its type, layer count and flags.
func ViewTypeFor(t ImageType, layers uint32, flags ImageCreateFlags) ImageViewType {
	switch t {
	case ImageType1D:
		if layers > 1 {
			return ImageViewType1DArray
		}
		return ImageViewType1D
	case ImageType3D:
		return ImageViewType3D
	}
	if flags&ImageCreateCubeCompatible != 0 && layers%6 == 0 {
		if layers > 6 {
			return ImageViewTypeCubeArray
		}
		return ImageViewTypeCube
	}
	if layers > 1 {
		return ImageViewType2DArray
	}
	return ImageViewType2D
}

func (d *Device) CreateImage(info ImageCreateInfo) Image {
	if info.Format == FormatUndefined {
		core.LogError("failed to create image: undefined format")
		return Image{}
	}
	if info.Layers == 0 {
		info.Layers = 1
	}
	if info.Levels == 0 {
		info.Levels = 1
	}
	if info.Extent.Depth == 0 {
		info.Extent.Depth = 1
	}
	info.ViewType = ViewTypeFor(info.Type, info.Layers, info.Flags)
	info.Aspect = info.Format.Aspect()

	image, r := d.driver.CreateImage(info)
	if failed(r, "image") {
		return Image{}
	}
	return image
}

func (d *Device) DestroyImage(image *Image) {
	if image == nil || !image.IsValid() {
		return
	}
	d.driver.DestroyImage(*image)
	*image = Image{}
}

func (d *Device) CreateAccelerationStructure(info AccelerationStructureCreateInfo) AccelerationStructure {
	switch info.Type {
	case AccelerationStructureBottomLevel:
		if len(info.Geometries) == 0 {
			core.LogError("failed to create acceleration structure: bottom level without geometry")
			return AccelerationStructure{}
		}
	case AccelerationStructureTopLevel:
		if info.InstanceCount == 0 {
			core.LogError("failed to create acceleration structure: top level without instances")
			return AccelerationStructure{}
		}
	}
	as, r := d.driver.CreateAccelerationStructure(info)
	if failed(r, "acceleration structure") {
		return AccelerationStructure{}
	}
	return as
}

func (d *Device) DestroyAccelerationStructure(as *AccelerationStructure) {
	if as == nil || !as.IsValid() {
		return
	}
	d.driver.DestroyAccelerationStructure(*as)
	*as = AccelerationStructure{}
}

// CreateScratchBuffer sizes a GPU only buffer for building or updating the given structure.
func (d *Device) CreateScratchBuffer(as AccelerationStructure, kind ScratchBufferType) Buffer {
	size := d.driver.AccelerationStructureScratchSize(as, kind)
	if size == 0 {
		core.LogError("failed to create scratch buffer: zero memory requirement")
		return Buffer{}
	}
	return d.CreateBuffer(BufferCreateInfo{
		Size:   size,
		Usage:  BufferUsageRayTracing,
		Memory: MemoryUsageGPUOnly,
	})
}

// AccelerationStructureHandle returns the opaque handle referenced by top level instances.
func (d *Device) AccelerationStructureHandle(as AccelerationStructure) (uint64, bool) {
	handle, r := d.driver.AccelerationStructureHandle(as)
	if !r.IsSuccess() {
		core.LogError("failed to query acceleration structure handle: %s", r)
		return 0, false
	}
	return handle, true
}

func (d *Device) CreateDescriptorPool(info DescriptorPoolCreateInfo) DescriptorPoolHandle {
	pool, r := d.driver.CreateDescriptorPool(info)
	if failed(r, "descriptor pool") {
		return 0
	}
	return pool
}

func (d *Device) DestroyDescriptorPool(pool *DescriptorPoolHandle) {
	if pool == nil || !pool.IsValid() {
		return
	}
	d.driver.DestroyDescriptorPool(*pool)
	*pool = 0
}

func (d *Device) CreateDescriptorSetLayout(info DescriptorSetLayoutCreateInfo) DescriptorSetLayoutHandle {
	layout, r := d.driver.CreateDescriptorSetLayout(info)
	if failed(r, "descriptor set layout") {
		return 0
	}
	return layout
}

func (d *Device) DestroyDescriptorSetLayout(layout *DescriptorSetLayoutHandle) {
	if layout == nil || !layout.IsValid() {
		return
	}
	d.driver.DestroyDescriptorSetLayout(*layout)
	*layout = 0
}

func (d *Device) AllocateDescriptorSets(info DescriptorSetAllocateInfo) []DescriptorSetHandle {
	sets, r := d.driver.AllocateDescriptorSets(info)
	if !r.IsSuccess() {
		core.LogError("failed to allocate descriptor sets: %s", r)
		return nil
	}
	return sets
}

// AllocateDescriptorSet allocates one set. A non-zero variableCount sizes its variable length binding.
func (d *Device) AllocateDescriptorSet(pool DescriptorPoolHandle, layout DescriptorSetLayoutHandle, variableCount uint32) DescriptorSetHandle {
	info := DescriptorSetAllocateInfo{
		Pool:    pool,
		Layouts: []DescriptorSetLayoutHandle{layout},
	}
	if variableCount > 0 {
		info.VariableCounts = []uint32{variableCount}
	}
	sets := d.AllocateDescriptorSets(info)
	if len(sets) != 1 {
		return 0
	}
	return sets[0]
}

func (d *Device) WriteDescriptors(writes ...WriteDescriptorSet) {
	if len(writes) == 0 {
		return
	}
	d.driver.UpdateDescriptorSets(writes)
}

func (d *Device) CreateSampler(info SamplerCreateInfo) SamplerHandle {
	sampler, r := d.driver.CreateSampler(info)
	if failed(r, "sampler") {
		return 0
	}
	return sampler
}

func (d *Device) DestroySampler(sampler *SamplerHandle) {
	if sampler == nil || !sampler.IsValid() {
		return
	}
	d.driver.DestroySampler(*sampler)
	*sampler = 0
}

func (d *Device) CreateFence(signaled bool) FenceHandle {
	fence, r := d.driver.CreateFence(signaled)
	if failed(r, "fence") {
		return 0
	}
	return fence
}

func (d *Device) DestroyFence(fence *FenceHandle) {
	if fence == nil || !fence.IsValid() {
		return
	}
	d.driver.DestroyFence(*fence)
	*fence = 0
}

func (d *Device) IsFenceSignaled(fence FenceHandle) bool {
	return fence.IsValid() && d.driver.FenceStatus(fence) == Success
}

// WaitForFence blocks until the fence is signaled or the timeout elapses.
func (d *Device) WaitForFence(fence FenceHandle, timeoutNs uint64) bool {
	if !fence.IsValid() {
		return false
	}
	switch r := d.driver.WaitForFence(fence, timeoutNs); r {
	case Success:
		return true
	case Timeout:
		core.LogWarn("timed out waiting for fence")
	default:
		core.LogError("failed to wait for fence: %s", r)
	}
	return false
}

func (d *Device) ResetFence(fence FenceHandle) bool {
	if r := d.driver.ResetFence(fence); !r.IsSuccess() {
		core.LogError("failed to reset fence: %s", r)
		return false
	}
	return true
}

func (d *Device) CreateEvent() EventHandle {
	event, r := d.driver.CreateEvent()
	if failed(r, "event") {
		return 0
	}
	return event
}

func (d *Device) DestroyEvent(event *EventHandle) {
	if event == nil || !event.IsValid() {
		return
	}
	d.driver.DestroyEvent(*event)
	*event = 0
}

func (d *Device) IsEventSet(event EventHandle) bool {
	return event.IsValid() && d.driver.EventStatus(event) == EventSet
}

func (d *Device) CreateSemaphore() SemaphoreHandle {
	semaphore, r := d.driver.CreateSemaphore()
	if failed(r, "semaphore") {
		return 0
	}
	return semaphore
}

func (d *Device) DestroySemaphore(semaphore *SemaphoreHandle) {
	if semaphore == nil || !semaphore.IsValid() {
		return
	}
	d.driver.DestroySemaphore(*semaphore)
	*semaphore = 0
}

func (d *Device) CreateCommandPool(flags CommandPoolCreateFlags) CommandPoolHandle {
	pool, r := d.driver.CreateCommandPool(CommandPoolCreateInfo{Flags: flags})
	if failed(r, "command pool") {
		return 0
	}
	return pool
}

func (d *Device) DestroyCommandPool(pool *CommandPoolHandle) {
	if pool == nil || !pool.IsValid() {
		return
	}
	d.driver.DestroyCommandPool(*pool)
	*pool = 0
}

func (d *Device) AllocateCommandBuffer(pool CommandPoolHandle) CommandBuffer {
	buffers, r := d.driver.AllocateCommandBuffers(pool, 1)
	if !r.IsSuccess() || len(buffers) != 1 {
		core.LogError("failed to allocate command buffer: %s", r)
		return CommandBuffer{}
	}
	return CommandBuffer{Handle: buffers[0], driver: d.driver}
}

func (d *Device) FreeCommandBuffers(pool CommandPoolHandle, buffers ...CommandBuffer) {
	handles := make([]CommandBufferHandle, 0, len(buffers))
	for _, cb := range buffers {
		if cb.IsValid() {
			handles = append(handles, cb.Handle)
		}
	}
	if len(handles) == 0 || !pool.IsValid() {
		return
	}
	d.driver.FreeCommandBuffers(pool, handles)
}

// Submit hands command buffers to the queue. The fence, if valid, signals on completion.
func (d *Device) Submit(queue QueueHandle, submits []SubmitInfo, fence FenceHandle) bool {
	if r := d.driver.QueueSubmit(queue, submits, fence); !r.IsSuccess() {
		core.LogError("failed to submit to queue: %s", r)
		return false
	}
	return true
}

func (d *Device) CreateQueryPool(info QueryPoolCreateInfo) QueryPoolHandle {
	pool, r := d.driver.CreateQueryPool(info)
	if failed(r, "query pool") {
		return 0
	}
	return pool
}

func (d *Device) DestroyQueryPool(pool *QueryPoolHandle) {
	if pool == nil || !pool.IsValid() {
		return
	}
	d.driver.DestroyQueryPool(*pool)
	*pool = 0
}

// QueryResults returns nil until every requested query is available.
func (d *Device) QueryResults(pool QueryPoolHandle, first, count uint32) []uint64 {
	results, r := d.driver.QueryResults(pool, first, count)
	if r != Success {
		if !r.IsSuccess() {
			core.LogError("failed to read query results: %s", r)
		}
		return nil
	}
	return results
}

func (d *Device) CreateShaderModule(code []byte) ShaderModuleHandle {
	if len(code) == 0 || len(code)%4 != 0 {
		core.LogError("failed to create shader module: invalid bytecode size %d", len(code))
		return 0
	}
	module, r := d.driver.CreateShaderModule(code)
	if failed(r, "shader module") {
		return 0
	}
	return module
}

func (d *Device) DestroyShaderModule(module *ShaderModuleHandle) {
	if module == nil || !module.IsValid() {
		return
	}
	d.driver.DestroyShaderModule(*module)
	*module = 0
}

func (d *Device) CreatePipelineLayout(info PipelineLayoutCreateInfo) PipelineLayoutHandle {
	layout, r := d.driver.CreatePipelineLayout(info)
	if failed(r, "pipeline layout") {
		return 0
	}
	return layout
}

func (d *Device) DestroyPipelineLayout(layout *PipelineLayoutHandle) {
	if layout == nil || !layout.IsValid() {
		return
	}
	d.driver.DestroyPipelineLayout(*layout)
	*layout = 0
}

func (d *Device) CreateGraphicsPipeline(info GraphicsPipelineCreateInfo) PipelineHandle {
	pipeline, r := d.driver.CreateGraphicsPipeline(info)
	if failed(r, "graphics pipeline") {
		return 0
	}
	return pipeline
}

func (d *Device) CreateComputePipeline(info ComputePipelineCreateInfo) PipelineHandle {
	pipeline, r := d.driver.CreateComputePipeline(info)
	if failed(r, "compute pipeline") {
		return 0
	}
	return pipeline
}

func (d *Device) CreateRayTracingPipeline(info RayTracingPipelineCreateInfo) PipelineHandle {
	pipeline, r := d.driver.CreateRayTracingPipeline(info)
	if failed(r, "ray tracing pipeline") {
		return 0
	}
	return pipeline
}

func (d *Device) ShaderGroupHandles(pipeline PipelineHandle, firstGroup, groupCount uint32) []byte {
	data, r := d.driver.ShaderGroupHandles(pipeline, firstGroup, groupCount)
	if !r.IsSuccess() {
		core.LogError("failed to query shader group handles: %s", r)
		return nil
	}
	return data
}

// DestroyPipeline releases the pipeline together with its layout, set layouts and shader binding table.
func (d *Device) DestroyPipeline(pipeline *Pipeline) {
	if pipeline == nil {
		return
	}
	if pipeline.Handle.IsValid() {
		d.driver.DestroyPipeline(pipeline.Handle)
	}
	d.DestroyPipelineLayout(&pipeline.Layout)
	for i := range pipeline.DescriptorSetLayouts {
		d.DestroyDescriptorSetLayout(&pipeline.DescriptorSetLayouts[i])
	}
	d.DestroyBuffer(&pipeline.ShaderBindingTable)
	*pipeline = Pipeline{}
}

func (d *Device) CreateRenderPass(info RenderPassCreateInfo) RenderPassHandle {
	pass, r := d.driver.CreateRenderPass(info)
	if failed(r, "render pass") {
		return 0
	}
	return pass
}

func (d *Device) DestroyRenderPass(pass *RenderPassHandle) {
	if pass == nil || !pass.IsValid() {
		return
	}
	d.driver.DestroyRenderPass(*pass)
	*pass = 0
}

func (d *Device) CreateFramebuffer(info FramebufferCreateInfo) FramebufferHandle {
	framebuffer, r := d.driver.CreateFramebuffer(info)
	if failed(r, "framebuffer") {
		return 0
	}
	return framebuffer
}

func (d *Device) DestroyFramebuffer(framebuffer *FramebufferHandle) {
	if framebuffer == nil || !framebuffer.IsValid() {
		return
	}
	d.driver.DestroyFramebuffer(*framebuffer)
	*framebuffer = 0
}
