// Package headless implements gpu.Driver in host memory. Commands execute when their
// submission completes, which is immediate unless the driver is in manual mode.
package headless

import (
	"encoding/binary"
	stdmath "math"
	"sync"

	"github.com/spaghettifunk/quartz/engine/math"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

type Kind string

const (
	KindBuffer                Kind = "buffer"
	KindImage                 Kind = "image"
	KindAccelerationStructure Kind = "acceleration_structure"
	KindDescriptorPool        Kind = "descriptor_pool"
	KindDescriptorSetLayout   Kind = "descriptor_set_layout"
	KindDescriptorSet         Kind = "descriptor_set"
	KindSampler               Kind = "sampler"
	KindFence                 Kind = "fence"
	KindEvent                 Kind = "event"
	KindSemaphore             Kind = "semaphore"
	KindCommandPool           Kind = "command_pool"
	KindCommandBuffer         Kind = "command_buffer"
	KindQueryPool             Kind = "query_pool"
	KindShaderModule          Kind = "shader_module"
	KindPipelineLayout        Kind = "pipeline_layout"
	KindPipeline              Kind = "pipeline"
	KindRenderPass            Kind = "render_pass"
	KindFramebuffer           Kind = "framebuffer"
)

const queueHandle gpu.QueueHandle = 1

var _ gpu.Driver = (*Driver)(nil)

type buffer struct {
	info gpu.BufferCreateInfo
	data []byte
}

type image struct {
	info gpu.ImageCreateInfo
	data []byte
}

type accelerationStructure struct {
	info   gpu.AccelerationStructureCreateInfo
	builds int
}

type descriptorSet struct {
	pool   gpu.DescriptorPoolHandle
	layout gpu.DescriptorSetLayoutHandle
	writes map[[2]uint32]gpu.WriteDescriptorSet
}

type fence struct {
	signaled bool
}

type event struct {
	set bool
}

type commandPool struct {
	buffers map[gpu.CommandBufferHandle]struct{}
}

type commandBuffer struct {
	pool      gpu.CommandPoolHandle
	recording bool
	commands  []func(*Driver)
}

type queryPool struct {
	results   []uint64
	available []bool
}

type pipeline struct {
	bindPoint gpu.PipelineBindPoint
	groups    uint32
	info      any
}

type submission struct {
	fence    gpu.FenceHandle
	commands []func(*Driver)
}

/** @brief Counters of executed work, for inspection in tests. */
type Stats struct {
	Submissions     int
	CommandBuffers  int
	Copies          int
	Builds          int
	TraceRays       int
	Draws           int
	Dispatches      int
	Barriers        int
	DoubleDestroyed int
}

type Driver struct {
	mu         sync.Mutex
	nextHandle uint64
	objects    map[Kind]map[uint64]any
	pending    []submission
	manual     bool
	failures   map[string]gpu.Result
	ticks      uint64
	stats      Stats
	properties gpu.RayTracingProperties
}

type Option func(*Driver)

// WithManualCompletion keeps submissions pending until Complete is called.
func WithManualCompletion() Option {
	return func(d *Driver) {
		d.manual = true
	}
}

func WithRayTracingProperties(properties gpu.RayTracingProperties) Option {
	return func(d *Driver) {
		d.properties = properties
	}
}

func New(options ...Option) *Driver {
	d := &Driver{
		objects:  make(map[Kind]map[uint64]any),
		failures: make(map[string]gpu.Result),
		properties: gpu.RayTracingProperties{
			ShaderGroupHandleSize: 16,
			MaxRecursionDepth:     31,
			ShaderGroupBaseAlign:  64,
			MaxGeometryCount:      1 << 24,
			MaxInstanceCount:      1 << 24,
			MaxTriangleCount:      1 << 29,
		},
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// FailNext makes the next call of the named operation return r. Operations are named
// after the driver method, for example "CreateBuffer" or "QueueSubmit".
func (d *Driver) FailNext(operation string, r gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[operation] = r
}

func (d *Driver) takeFailure(operation string) gpu.Result {
	if r, ok := d.failures[operation]; ok {
		delete(d.failures, operation)
		return r
	}
	return gpu.Success
}

// Complete executes every pending submission and signals its fence.
func (d *Driver) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.pending {
		d.execute(s)
	}
	d.pending = nil
}

func (d *Driver) PendingSubmissions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Live counts the objects of a kind that were created and not yet destroyed.
func (d *Driver) Live(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.objects[kind])
}

// IsLive reports whether the handle of the given kind still exists.
func (d *Driver) IsLive(kind Kind, handle uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.objects[kind][handle]
	return ok
}

// BufferData returns a copy of the buffer contents.
func (d *Driver) BufferData(handle gpu.BufferHandle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.get(KindBuffer, uint64(handle)).(*buffer); ok {
		return append([]byte(nil), b.data...)
	}
	return nil
}

// ImageData returns a copy of the texels of the first level.
func (d *Driver) ImageData(handle gpu.ImageHandle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.get(KindImage, uint64(handle)).(*image); ok {
		return append([]byte(nil), i.data...)
	}
	return nil
}

// DescriptorWrite returns the last write to an array element of a set binding.
func (d *Driver) DescriptorWrite(set gpu.DescriptorSetHandle, binding, element uint32) (gpu.WriteDescriptorSet, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.get(KindDescriptorSet, uint64(set)).(*descriptorSet)
	if !ok {
		return gpu.WriteDescriptorSet{}, false
	}
	w, ok := s.writes[[2]uint32{binding, element}]
	return w, ok
}

// AccelerationStructureBuilds returns how many times the structure was built.
func (d *Driver) AccelerationStructureBuilds(handle gpu.AccelerationStructureHandle) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.get(KindAccelerationStructure, uint64(handle)).(*accelerationStructure); ok {
		return a.builds
	}
	return 0
}

func (d *Driver) create(kind Kind, object any) uint64 {
	d.nextHandle++
	if d.objects[kind] == nil {
		d.objects[kind] = make(map[uint64]any)
	}
	d.objects[kind][d.nextHandle] = object
	return d.nextHandle
}

func (d *Driver) get(kind Kind, handle uint64) any {
	return d.objects[kind][handle]
}

func (d *Driver) destroy(kind Kind, handle uint64) any {
	object, ok := d.objects[kind][handle]
	if !ok {
		d.stats.DoubleDestroyed++
		return nil
	}
	delete(d.objects[kind], handle)
	return object
}

func (d *Driver) Name() string {
	return "headless"
}

func (d *Driver) RayTracingProperties() gpu.RayTracingProperties {
	return d.properties
}

func (d *Driver) TimestampPeriod() float32 {
	return 1000
}

func (d *Driver) GraphicsQueue() gpu.QueueHandle {
	return queueHandle
}

func (d *Driver) WaitIdle() gpu.Result {
	d.Complete()
	return gpu.Success
}

func (d *Driver) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
}

func (d *Driver) CreateBuffer(info gpu.BufferCreateInfo) (gpu.Buffer, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateBuffer"); r != gpu.Success {
		return gpu.Buffer{}, r
	}
	b := &buffer{info: info, data: make([]byte, info.Size)}
	handle := d.create(KindBuffer, b)
	out := gpu.Buffer{
		Handle: gpu.BufferHandle(handle),
		Memory: gpu.MemoryHandle(handle),
		Size:   info.Size,
	}
	if info.Map {
		out.Mapped = b.data
	}
	return out, gpu.Success
}

func (d *Driver) DestroyBuffer(b gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindBuffer, uint64(b.Handle))
}

func (d *Driver) MapBuffer(b gpu.Buffer) ([]byte, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("MapBuffer"); r != gpu.Success {
		return nil, r
	}
	buf, ok := d.get(KindBuffer, uint64(b.Handle)).(*buffer)
	if !ok || !buf.info.Memory.IsHostVisible() {
		return nil, gpu.ErrorMemoryMapFailed
	}
	return buf.data, gpu.Success
}

func (d *Driver) UnmapBuffer(b gpu.Buffer) {}

func (d *Driver) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateImage"); r != gpu.Success {
		return gpu.Image{}, r
	}
	size := uint64(info.Extent.Width) * uint64(info.Extent.Height) * uint64(info.Extent.Depth) *
		uint64(info.Layers) * uint64(info.Format.BytesPerPixel())
	i := &image{info: info, data: make([]byte, size)}
	handle := d.create(KindImage, i)
	return gpu.Image{
		Handle: gpu.ImageHandle(handle),
		View:   gpu.ImageViewHandle(handle),
		Memory: gpu.MemoryHandle(handle),
		Format: info.Format,
		Extent: info.Extent,
		Aspect: info.Aspect,
		Layers: info.Layers,
		Levels: info.Levels,
	}, gpu.Success
}

func (d *Driver) DestroyImage(i gpu.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindImage, uint64(i.Handle))
}

func (d *Driver) CreateAccelerationStructure(info gpu.AccelerationStructureCreateInfo) (gpu.AccelerationStructure, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateAccelerationStructure"); r != gpu.Success {
		return gpu.AccelerationStructure{}, r
	}
	handle := d.create(KindAccelerationStructure, &accelerationStructure{info: info})
	return gpu.AccelerationStructure{
		Handle: gpu.AccelerationStructureHandle(handle),
		Memory: gpu.MemoryHandle(handle),
		Type:   info.Type,
	}, gpu.Success
}

func (d *Driver) DestroyAccelerationStructure(as gpu.AccelerationStructure) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindAccelerationStructure, uint64(as.Handle))
}

func (d *Driver) AccelerationStructureScratchSize(as gpu.AccelerationStructure, kind gpu.ScratchBufferType) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.get(KindAccelerationStructure, uint64(as.Handle)).(*accelerationStructure)
	if !ok {
		return 0
	}
	size := uint64(256)
	for _, g := range a.info.Geometries {
		size += uint64(g.IndexCount) * 16
	}
	size += uint64(a.info.InstanceCount) * 64
	if kind == gpu.ScratchBufferUpdate {
		size /= 2
	}
	return size
}

func (d *Driver) AccelerationStructureHandle(as gpu.AccelerationStructure) (uint64, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("AccelerationStructureHandle"); r != gpu.Success {
		return 0, r
	}
	if d.get(KindAccelerationStructure, uint64(as.Handle)) == nil {
		return 0, gpu.ErrorUnknown
	}
	return 0xA5000000 | uint64(as.Handle), gpu.Success
}

func (d *Driver) CreateDescriptorPool(info gpu.DescriptorPoolCreateInfo) (gpu.DescriptorPoolHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateDescriptorPool"); r != gpu.Success {
		return 0, r
	}
	return gpu.DescriptorPoolHandle(d.create(KindDescriptorPool, info)), gpu.Success
}

// DestroyDescriptorPool frees the sets allocated from the pool as well.
func (d *Driver) DestroyDescriptorPool(pool gpu.DescriptorPoolHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroy(KindDescriptorPool, uint64(pool)) == nil {
		return
	}
	for handle, object := range d.objects[KindDescriptorSet] {
		if object.(*descriptorSet).pool == pool {
			delete(d.objects[KindDescriptorSet], handle)
		}
	}
}

func (d *Driver) CreateDescriptorSetLayout(info gpu.DescriptorSetLayoutCreateInfo) (gpu.DescriptorSetLayoutHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateDescriptorSetLayout"); r != gpu.Success {
		return 0, r
	}
	return gpu.DescriptorSetLayoutHandle(d.create(KindDescriptorSetLayout, info)), gpu.Success
}

func (d *Driver) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindDescriptorSetLayout, uint64(layout))
}

// DescriptorSetLayoutInfo returns the create info of a live layout.
func (d *Driver) DescriptorSetLayoutInfo(layout gpu.DescriptorSetLayoutHandle) (gpu.DescriptorSetLayoutCreateInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.get(KindDescriptorSetLayout, uint64(layout)).(gpu.DescriptorSetLayoutCreateInfo)
	return info, ok
}

func (d *Driver) AllocateDescriptorSets(info gpu.DescriptorSetAllocateInfo) ([]gpu.DescriptorSetHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("AllocateDescriptorSets"); r != gpu.Success {
		return nil, r
	}
	pool, ok := d.get(KindDescriptorPool, uint64(info.Pool)).(gpu.DescriptorPoolCreateInfo)
	if !ok {
		return nil, gpu.ErrorUnknown
	}
	allocated := 0
	for _, object := range d.objects[KindDescriptorSet] {
		if object.(*descriptorSet).pool == info.Pool {
			allocated++
		}
	}
	if allocated+len(info.Layouts) > int(pool.MaxSets) {
		return nil, gpu.ErrorOutOfPoolMemory
	}
	sets := make([]gpu.DescriptorSetHandle, 0, len(info.Layouts))
	for _, layout := range info.Layouts {
		handle := d.create(KindDescriptorSet, &descriptorSet{
			pool:   info.Pool,
			layout: layout,
			writes: make(map[[2]uint32]gpu.WriteDescriptorSet),
		})
		sets = append(sets, gpu.DescriptorSetHandle(handle))
	}
	return sets, gpu.Success
}

func (d *Driver) UpdateDescriptorSets(writes []gpu.WriteDescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range writes {
		set, ok := d.get(KindDescriptorSet, uint64(w.Set)).(*descriptorSet)
		if !ok {
			continue
		}
		count := max(len(w.Buffers), len(w.Images), len(w.AccelerationStructures))
		for i := 0; i < count; i++ {
			element := gpu.WriteDescriptorSet{Set: w.Set, Binding: w.Binding, ArrayElement: w.ArrayElement + uint32(i), Type: w.Type}
			switch {
			case i < len(w.Buffers):
				element.Buffers = w.Buffers[i : i+1]
			case i < len(w.Images):
				element.Images = w.Images[i : i+1]
			case i < len(w.AccelerationStructures):
				element.AccelerationStructures = w.AccelerationStructures[i : i+1]
			}
			set.writes[[2]uint32{w.Binding, element.ArrayElement}] = element
		}
	}
}

func (d *Driver) CreateSampler(info gpu.SamplerCreateInfo) (gpu.SamplerHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateSampler"); r != gpu.Success {
		return 0, r
	}
	return gpu.SamplerHandle(d.create(KindSampler, info)), gpu.Success
}

func (d *Driver) DestroySampler(sampler gpu.SamplerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindSampler, uint64(sampler))
}

func (d *Driver) CreateFence(signaled bool) (gpu.FenceHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateFence"); r != gpu.Success {
		return 0, r
	}
	return gpu.FenceHandle(d.create(KindFence, &fence{signaled: signaled})), gpu.Success
}

func (d *Driver) DestroyFence(f gpu.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindFence, uint64(f))
}

func (d *Driver) FenceStatus(f gpu.FenceHandle) gpu.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	object, ok := d.get(KindFence, uint64(f)).(*fence)
	if !ok {
		return gpu.ErrorUnknown
	}
	if object.signaled {
		return gpu.Success
	}
	return gpu.NotReady
}

// WaitForFence completes outstanding work, so waiting always succeeds for a submitted fence.
func (d *Driver) WaitForFence(f gpu.FenceHandle, timeoutNs uint64) gpu.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	object, ok := d.get(KindFence, uint64(f)).(*fence)
	if !ok {
		return gpu.ErrorUnknown
	}
	if object.signaled {
		return gpu.Success
	}
	for i, s := range d.pending {
		if s.fence == f {
			for _, earlier := range d.pending[:i+1] {
				d.execute(earlier)
			}
			d.pending = d.pending[i+1:]
			return gpu.Success
		}
	}
	return gpu.Timeout
}

func (d *Driver) ResetFence(f gpu.FenceHandle) gpu.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	object, ok := d.get(KindFence, uint64(f)).(*fence)
	if !ok {
		return gpu.ErrorUnknown
	}
	object.signaled = false
	return gpu.Success
}

func (d *Driver) CreateEvent() (gpu.EventHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateEvent"); r != gpu.Success {
		return 0, r
	}
	return gpu.EventHandle(d.create(KindEvent, &event{})), gpu.Success
}

func (d *Driver) DestroyEvent(e gpu.EventHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindEvent, uint64(e))
}

func (d *Driver) EventStatus(e gpu.EventHandle) gpu.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	object, ok := d.get(KindEvent, uint64(e)).(*event)
	if !ok {
		return gpu.ErrorUnknown
	}
	if object.set {
		return gpu.EventSet
	}
	return gpu.EventReset
}

func (d *Driver) CreateSemaphore() (gpu.SemaphoreHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateSemaphore"); r != gpu.Success {
		return 0, r
	}
	return gpu.SemaphoreHandle(d.create(KindSemaphore, struct{}{})), gpu.Success
}

func (d *Driver) DestroySemaphore(s gpu.SemaphoreHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindSemaphore, uint64(s))
}

func (d *Driver) CreateCommandPool(info gpu.CommandPoolCreateInfo) (gpu.CommandPoolHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateCommandPool"); r != gpu.Success {
		return 0, r
	}
	pool := &commandPool{buffers: make(map[gpu.CommandBufferHandle]struct{})}
	return gpu.CommandPoolHandle(d.create(KindCommandPool, pool)), gpu.Success
}

// DestroyCommandPool frees every command buffer still allocated from the pool.
func (d *Driver) DestroyCommandPool(pool gpu.CommandPoolHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	object, ok := d.destroy(KindCommandPool, uint64(pool)).(*commandPool)
	if !ok {
		return
	}
	for cb := range object.buffers {
		delete(d.objects[KindCommandBuffer], uint64(cb))
	}
}

func (d *Driver) ResetCommandPool(pool gpu.CommandPoolHandle) gpu.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	object, ok := d.get(KindCommandPool, uint64(pool)).(*commandPool)
	if !ok {
		return gpu.ErrorUnknown
	}
	for cb := range object.buffers {
		if buf, ok := d.get(KindCommandBuffer, uint64(cb)).(*commandBuffer); ok {
			buf.commands = nil
			buf.recording = false
		}
	}
	return gpu.Success
}

func (d *Driver) AllocateCommandBuffers(pool gpu.CommandPoolHandle, count uint32) ([]gpu.CommandBufferHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("AllocateCommandBuffers"); r != gpu.Success {
		return nil, r
	}
	object, ok := d.get(KindCommandPool, uint64(pool)).(*commandPool)
	if !ok {
		return nil, gpu.ErrorUnknown
	}
	buffers := make([]gpu.CommandBufferHandle, count)
	for i := range buffers {
		buffers[i] = gpu.CommandBufferHandle(d.create(KindCommandBuffer, &commandBuffer{pool: pool}))
		object.buffers[buffers[i]] = struct{}{}
	}
	return buffers, gpu.Success
}

func (d *Driver) FreeCommandBuffers(pool gpu.CommandPoolHandle, buffers []gpu.CommandBufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	object, _ := d.get(KindCommandPool, uint64(pool)).(*commandPool)
	for _, cb := range buffers {
		if d.destroy(KindCommandBuffer, uint64(cb)) != nil && object != nil {
			delete(object.buffers, cb)
		}
	}
}

func (d *Driver) BeginCommandBuffer(cb gpu.CommandBufferHandle, usage gpu.CommandBufferUsage) gpu.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("BeginCommandBuffer"); r != gpu.Success {
		return r
	}
	object, ok := d.get(KindCommandBuffer, uint64(cb)).(*commandBuffer)
	if !ok {
		return gpu.ErrorUnknown
	}
	object.commands = nil
	object.recording = true
	return gpu.Success
}

func (d *Driver) EndCommandBuffer(cb gpu.CommandBufferHandle) gpu.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("EndCommandBuffer"); r != gpu.Success {
		return r
	}
	object, ok := d.get(KindCommandBuffer, uint64(cb)).(*commandBuffer)
	if !ok || !object.recording {
		return gpu.ErrorUnknown
	}
	object.recording = false
	return gpu.Success
}

func (d *Driver) QueueSubmit(queue gpu.QueueHandle, submits []gpu.SubmitInfo, f gpu.FenceHandle) gpu.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("QueueSubmit"); r != gpu.Success {
		return r
	}
	if queue != queueHandle {
		return gpu.ErrorUnknown
	}
	s := submission{fence: f}
	for _, info := range submits {
		for _, cb := range info.CommandBuffers {
			object, ok := d.get(KindCommandBuffer, uint64(cb)).(*commandBuffer)
			if !ok || object.recording {
				return gpu.ErrorUnknown
			}
			s.commands = append(s.commands, object.commands...)
			d.stats.CommandBuffers++
		}
	}
	d.stats.Submissions++
	if d.manual {
		d.pending = append(d.pending, s)
	} else {
		d.execute(s)
	}
	return gpu.Success
}

func (d *Driver) execute(s submission) {
	for _, command := range s.commands {
		command(d)
	}
	if object, ok := d.get(KindFence, uint64(s.fence)).(*fence); ok {
		object.signaled = true
	}
}

func (d *Driver) CreateQueryPool(info gpu.QueryPoolCreateInfo) (gpu.QueryPoolHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateQueryPool"); r != gpu.Success {
		return 0, r
	}
	pool := &queryPool{results: make([]uint64, info.Count), available: make([]bool, info.Count)}
	return gpu.QueryPoolHandle(d.create(KindQueryPool, pool)), gpu.Success
}

func (d *Driver) DestroyQueryPool(pool gpu.QueryPoolHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindQueryPool, uint64(pool))
}

func (d *Driver) QueryResults(pool gpu.QueryPoolHandle, first, count uint32) ([]uint64, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	object, ok := d.get(KindQueryPool, uint64(pool)).(*queryPool)
	if !ok || int(first+count) > len(object.results) {
		return nil, gpu.ErrorUnknown
	}
	for _, available := range object.available[first : first+count] {
		if !available {
			return nil, gpu.NotReady
		}
	}
	return append([]uint64(nil), object.results[first:first+count]...), gpu.Success
}

func (d *Driver) CreateShaderModule(code []byte) (gpu.ShaderModuleHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateShaderModule"); r != gpu.Success {
		return 0, r
	}
	return gpu.ShaderModuleHandle(d.create(KindShaderModule, len(code))), gpu.Success
}

func (d *Driver) DestroyShaderModule(module gpu.ShaderModuleHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindShaderModule, uint64(module))
}

func (d *Driver) CreatePipelineLayout(info gpu.PipelineLayoutCreateInfo) (gpu.PipelineLayoutHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreatePipelineLayout"); r != gpu.Success {
		return 0, r
	}
	return gpu.PipelineLayoutHandle(d.create(KindPipelineLayout, info)), gpu.Success
}

func (d *Driver) DestroyPipelineLayout(layout gpu.PipelineLayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindPipelineLayout, uint64(layout))
}

// PipelineLayoutInfo returns the create info of a live pipeline layout.
func (d *Driver) PipelineLayoutInfo(layout gpu.PipelineLayoutHandle) (gpu.PipelineLayoutCreateInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.get(KindPipelineLayout, uint64(layout)).(gpu.PipelineLayoutCreateInfo)
	return info, ok
}

func (d *Driver) createPipeline(operation string, p *pipeline) (gpu.PipelineHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure(operation); r != gpu.Success {
		return 0, r
	}
	return gpu.PipelineHandle(d.create(KindPipeline, p)), gpu.Success
}

func (d *Driver) CreateGraphicsPipeline(info gpu.GraphicsPipelineCreateInfo) (gpu.PipelineHandle, gpu.Result) {
	return d.createPipeline("CreateGraphicsPipeline", &pipeline{bindPoint: gpu.PipelineBindPointGraphics, info: info})
}

func (d *Driver) CreateComputePipeline(info gpu.ComputePipelineCreateInfo) (gpu.PipelineHandle, gpu.Result) {
	return d.createPipeline("CreateComputePipeline", &pipeline{bindPoint: gpu.PipelineBindPointCompute, info: info})
}

func (d *Driver) CreateRayTracingPipeline(info gpu.RayTracingPipelineCreateInfo) (gpu.PipelineHandle, gpu.Result) {
	if info.MaxRecursionDepth > d.properties.MaxRecursionDepth {
		return 0, gpu.ErrorFeatureNotPresent
	}
	return d.createPipeline("CreateRayTracingPipeline", &pipeline{
		bindPoint: gpu.PipelineBindPointRayTracing,
		groups:    uint32(len(info.Groups)),
		info:      info,
	})
}

// PipelineInfo returns the create info a live pipeline was built from.
func (d *Driver) PipelineInfo(p gpu.PipelineHandle) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	object, ok := d.get(KindPipeline, uint64(p)).(*pipeline)
	if !ok {
		return nil, false
	}
	return object.info, true
}

func (d *Driver) DestroyPipeline(p gpu.PipelineHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindPipeline, uint64(p))
}

// ShaderGroupHandles fills each handle with its group index plus one, repeated.
func (d *Driver) ShaderGroupHandles(p gpu.PipelineHandle, firstGroup, groupCount uint32) ([]byte, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	object, ok := d.get(KindPipeline, uint64(p)).(*pipeline)
	if !ok || object.bindPoint != gpu.PipelineBindPointRayTracing || firstGroup+groupCount > object.groups {
		return nil, gpu.ErrorUnknown
	}
	size := d.properties.ShaderGroupHandleSize
	data := make([]byte, size*groupCount)
	for g := uint32(0); g < groupCount; g++ {
		for i := uint32(0); i < size; i++ {
			data[g*size+i] = byte(firstGroup + g + 1)
		}
	}
	return data, gpu.Success
}

func (d *Driver) CreateRenderPass(info gpu.RenderPassCreateInfo) (gpu.RenderPassHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateRenderPass"); r != gpu.Success {
		return 0, r
	}
	return gpu.RenderPassHandle(d.create(KindRenderPass, info)), gpu.Success
}

func (d *Driver) DestroyRenderPass(pass gpu.RenderPassHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindRenderPass, uint64(pass))
}

func (d *Driver) CreateFramebuffer(info gpu.FramebufferCreateInfo) (gpu.FramebufferHandle, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.takeFailure("CreateFramebuffer"); r != gpu.Success {
		return 0, r
	}
	return gpu.FramebufferHandle(d.create(KindFramebuffer, info)), gpu.Success
}

func (d *Driver) DestroyFramebuffer(framebuffer gpu.FramebufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindFramebuffer, uint64(framebuffer))
}

func (d *Driver) record(cb gpu.CommandBufferHandle, command func(*Driver)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if object, ok := d.get(KindCommandBuffer, uint64(cb)).(*commandBuffer); ok && object.recording {
		object.commands = append(object.commands, command)
	}
}

func (d *Driver) CmdPipelineBarrier(cb gpu.CommandBufferHandle, barrier gpu.PipelineBarrier) {
	d.record(cb, func(d *Driver) { d.stats.Barriers++ })
}

func (d *Driver) CmdCopyBuffer(cb gpu.CommandBufferHandle, src, dst gpu.BufferHandle, regions []gpu.BufferCopy) {
	d.record(cb, func(d *Driver) {
		s, ok1 := d.get(KindBuffer, uint64(src)).(*buffer)
		t, ok2 := d.get(KindBuffer, uint64(dst)).(*buffer)
		if !ok1 || !ok2 {
			return
		}
		for _, r := range regions {
			copy(t.data[r.DstOffset:], s.data[r.SrcOffset:r.SrcOffset+r.Size])
		}
		d.stats.Copies++
	})
}

func (d *Driver) CmdCopyBufferToImage(cb gpu.CommandBufferHandle, src gpu.BufferHandle, dst gpu.ImageHandle, layout gpu.ImageLayout, regions []gpu.BufferImageCopy) {
	d.record(cb, func(d *Driver) {
		s, ok1 := d.get(KindBuffer, uint64(src)).(*buffer)
		t, ok2 := d.get(KindImage, uint64(dst)).(*image)
		if !ok1 || !ok2 {
			return
		}
		for _, r := range regions {
			copy(t.data, s.data[r.BufferOffset:])
		}
		d.stats.Copies++
	})
}

func (d *Driver) CmdCopyImageToBuffer(cb gpu.CommandBufferHandle, src gpu.ImageHandle, layout gpu.ImageLayout, dst gpu.BufferHandle, regions []gpu.BufferImageCopy) {
	d.record(cb, func(d *Driver) {
		s, ok1 := d.get(KindImage, uint64(src)).(*image)
		t, ok2 := d.get(KindBuffer, uint64(dst)).(*buffer)
		if !ok1 || !ok2 {
			return
		}
		for _, r := range regions {
			copy(t.data[r.BufferOffset:], s.data)
		}
		d.stats.Copies++
	})
}

func (d *Driver) CmdClearColorImage(cb gpu.CommandBufferHandle, img gpu.ImageHandle, layout gpu.ImageLayout, color [4]float32) {
	d.record(cb, func(d *Driver) {
		if t, ok := d.get(KindImage, uint64(img)).(*image); ok {
			fill(t.data, encodeTexel(t.info.Format, color))
		}
	})
}

func (d *Driver) CmdBuildAccelerationStructure(cb gpu.CommandBufferHandle, info gpu.BuildAccelerationStructureInfo) {
	d.record(cb, func(d *Driver) {
		if a, ok := d.get(KindAccelerationStructure, uint64(info.Destination)).(*accelerationStructure); ok {
			a.builds++
		}
		d.stats.Builds++
	})
}

func (d *Driver) CmdBindPipeline(cb gpu.CommandBufferHandle, bindPoint gpu.PipelineBindPoint, p gpu.PipelineHandle) {
}

func (d *Driver) CmdBindDescriptorSets(cb gpu.CommandBufferHandle, bindPoint gpu.PipelineBindPoint, layout gpu.PipelineLayoutHandle, firstSet uint32, sets []gpu.DescriptorSetHandle) {
}

func (d *Driver) CmdPushConstants(cb gpu.CommandBufferHandle, layout gpu.PipelineLayoutHandle, stages gpu.ShaderStage, offset uint32, data []byte) {
}

func (d *Driver) CmdTraceRays(cb gpu.CommandBufferHandle, info gpu.TraceRaysInfo) {
	d.record(cb, func(d *Driver) { d.stats.TraceRays++ })
}

func (d *Driver) CmdDispatch(cb gpu.CommandBufferHandle, x, y, z uint32) {
	d.record(cb, func(d *Driver) { d.stats.Dispatches++ })
}

func (d *Driver) CmdSetEvent(cb gpu.CommandBufferHandle, e gpu.EventHandle, stage gpu.PipelineStage) {
	d.record(cb, func(d *Driver) {
		if object, ok := d.get(KindEvent, uint64(e)).(*event); ok {
			object.set = true
		}
	})
}

func (d *Driver) CmdResetQueryPool(cb gpu.CommandBufferHandle, pool gpu.QueryPoolHandle, first, count uint32) {
	d.record(cb, func(d *Driver) {
		if object, ok := d.get(KindQueryPool, uint64(pool)).(*queryPool); ok {
			for i := first; i < first+count && int(i) < len(object.available); i++ {
				object.available[i] = false
			}
		}
	})
}

func (d *Driver) CmdWriteTimestamp(cb gpu.CommandBufferHandle, stage gpu.PipelineStage, pool gpu.QueryPoolHandle, query uint32) {
	d.record(cb, func(d *Driver) {
		if object, ok := d.get(KindQueryPool, uint64(pool)).(*queryPool); ok && int(query) < len(object.results) {
			d.ticks += 1000
			object.results[query] = d.ticks
			object.available[query] = true
		}
	})
}

func (d *Driver) CmdBeginRenderPass(cb gpu.CommandBufferHandle, info gpu.RenderPassBeginInfo) {}

func (d *Driver) CmdEndRenderPass(cb gpu.CommandBufferHandle) {}

func (d *Driver) CmdSetViewport(cb gpu.CommandBufferHandle, viewport gpu.Viewport) {}

func (d *Driver) CmdSetScissor(cb gpu.CommandBufferHandle, scissor gpu.Rect2D) {}

func (d *Driver) CmdDraw(cb gpu.CommandBufferHandle, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.record(cb, func(d *Driver) { d.stats.Draws++ })
}

func fill(data, texel []byte) {
	if len(texel) == 0 {
		return
	}
	for i := 0; i+len(texel) <= len(data); i += len(texel) {
		copy(data[i:], texel)
	}
}

func encodeTexel(format gpu.Format, color [4]float32) []byte {
	channels := format.Channels()
	texel := make([]byte, format.BytesPerPixel())
	for c := 0; c < channels; c++ {
		switch format {
		case gpu.FormatR16G16B16A16SFloat:
			binary.LittleEndian.PutUint16(texel[c*2:], math.Float32ToHalf(color[c]))
		case gpu.FormatR32SFloat, gpu.FormatR32G32B32SFloat, gpu.FormatR32G32B32A32SFloat:
			binary.LittleEndian.PutUint32(texel[c*4:], stdmath.Float32bits(color[c]))
		case gpu.FormatR8Unorm, gpu.FormatR8G8B8A8Unorm, gpu.FormatR8G8B8A8SRGB, gpu.FormatB8G8R8A8Unorm, gpu.FormatB8G8R8A8SRGB:
			texel[c] = byte(math.Clamp(color[c], 0, 1)*255 + 0.5)
		}
	}
	return texel
}
