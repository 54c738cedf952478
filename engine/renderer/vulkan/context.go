package vulkan

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

var ErrNoSuitableDevice = errors.New("no physical device supports ray tracing")

// table maps the portable handles handed out to callers onto native objects.
type table[V any] struct {
	mu      sync.RWMutex
	next    uint64
	objects map[uint64]V
}

func newTable[V any]() *table[V] {
	return &table[V]{objects: make(map[uint64]V)}
}

func (t *table[V]) put(v V) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.objects[t.next] = v
	return t.next
}

func (t *table[V]) get(h uint64) V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.objects[h]
}

func (t *table[V]) take(h uint64) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.objects[h]
	delete(t.objects, h)
	return v, ok
}

// removeIf drops every entry matching fn and returns how many were dropped.
func (t *table[V]) removeIf(fn func(V) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for h, v := range t.objects {
		if fn(v) {
			delete(t.objects, h)
			n++
		}
	}
	return n
}

func (t *table[V]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.objects)
}

type bufferObject struct {
	handle vk.Buffer
	memory gpu.MemoryHandle
}

type imageObject struct {
	handle vk.Image
	view   gpu.ImageViewHandle
	memory gpu.MemoryHandle
}

type memoryObject struct {
	handle vk.DeviceMemory
	size   uint64
	mapped bool
}

type accelerationStructureObject struct {
	handle vk.AccelerationStructureNV
	memory gpu.MemoryHandle
}

type descriptorSetObject struct {
	handle vk.DescriptorSet
	pool   gpu.DescriptorPoolHandle
}

type commandBufferObject struct {
	handle vk.CommandBuffer
	pool   gpu.CommandPoolHandle
	state  VulkanCommandBufferState
}

/** @brief Options used to create the Vulkan driver. */
type Options struct {
	ApplicationName string
	// Window is nil for offscreen rendering. With a window the driver also presents.
	Window     *glfw.Window
	Width      uint32
	Height     uint32
	Validation bool
}

/**
 * @brief Implements gpu.Driver on top of Vulkan and VK_NV_ray_tracing. Portable handles are
 * indices into per kind tables, so no native pointer ever leaves this package.
 */
type Driver struct {
	options   Options
	instance  vk.Instance
	allocator *vk.AllocationCallbacks
	surface   vk.Surface
	// Only set when validation is enabled.
	debugCallback vk.DebugReportCallback

	device     *VulkanDevice
	locks      *VulkanLockPool
	properties gpu.RayTracingProperties
	queue      gpu.QueueHandle

	memories        *table[memoryObject]
	buffers         *table[bufferObject]
	images          *table[imageObject]
	views           *table[vk.ImageView]
	accelerations   *table[accelerationStructureObject]
	descriptorPools *table[vk.DescriptorPool]
	setLayouts      *table[vk.DescriptorSetLayout]
	descriptorSets  *table[descriptorSetObject]
	samplers        *table[vk.Sampler]
	fences          *table[vk.Fence]
	events          *table[vk.Event]
	semaphores      *table[vk.Semaphore]
	commandPools    *table[vk.CommandPool]
	commandBuffers  *table[commandBufferObject]
	queryPools      *table[vk.QueryPool]
	shaderModules   *table[vk.ShaderModule]
	pipelineLayouts *table[vk.PipelineLayout]
	pipelines       *table[vk.Pipeline]
	renderPasses    *table[vk.RenderPass]
	framebuffers    *table[vk.Framebuffer]
	queues          *table[vk.Queue]
}

func newDriver(options Options) *Driver {
	return &Driver{
		options:         options,
		locks:           NewVulkanLockPool(),
		memories:        newTable[memoryObject](),
		buffers:         newTable[bufferObject](),
		images:          newTable[imageObject](),
		views:           newTable[vk.ImageView](),
		accelerations:   newTable[accelerationStructureObject](),
		descriptorPools: newTable[vk.DescriptorPool](),
		setLayouts:      newTable[vk.DescriptorSetLayout](),
		descriptorSets:  newTable[descriptorSetObject](),
		samplers:        newTable[vk.Sampler](),
		fences:          newTable[vk.Fence](),
		events:          newTable[vk.Event](),
		semaphores:      newTable[vk.Semaphore](),
		commandPools:    newTable[vk.CommandPool](),
		commandBuffers:  newTable[commandBufferObject](),
		queryPools:      newTable[vk.QueryPool](),
		shaderModules:   newTable[vk.ShaderModule](),
		pipelineLayouts: newTable[vk.PipelineLayout](),
		pipelines:       newTable[vk.Pipeline](),
		renderPasses:    newTable[vk.RenderPass](),
		framebuffers:    newTable[vk.Framebuffer](),
		queues:          newTable[vk.Queue](),
	}
}

/**
 * @brief Creates the instance, selects a ray tracing capable device and, when a window is
 * given, the surface and swapchain.
 * @return A gpu.Driver. It also implements gpu.Presenter when created with a window.
 */
func New(options Options) (gpu.Driver, error) {
	d := newDriver(options)
	if err := d.createInstance(); err != nil {
		d.Destroy()
		return nil, err
	}
	if options.Window != nil {
		if err := d.createSurface(); err != nil {
			d.Destroy()
			return nil, err
		}
	}
	if err := d.createDevice(); err != nil {
		d.Destroy()
		return nil, err
	}
	d.queue = gpu.QueueHandle(d.queues.put(d.device.GraphicsQueue))

	if options.Window == nil {
		core.LogInfo("Vulkan driver initialized without a surface.")
		return d, nil
	}
	p := &PresentingDriver{Driver: d}
	if r := p.createSwapchain(options.Width, options.Height); !r.IsSuccess() {
		p.Destroy()
		return nil, errors.Wrapf(resultError(r), "creating swapchain")
	}
	core.LogInfo("Vulkan driver initialized successfully.")
	return p, nil
}

func (d *Driver) Name() string {
	if d.device == nil {
		return "vulkan"
	}
	return "vulkan (" + d.device.Name + ")"
}

func (d *Driver) RayTracingProperties() gpu.RayTracingProperties {
	return d.properties
}

func (d *Driver) TimestampPeriod() float32 {
	return d.device.Properties.Limits.TimestampPeriod
}

func (d *Driver) GraphicsQueue() gpu.QueueHandle {
	return d.queue
}

func (d *Driver) WaitIdle() gpu.Result {
	return result(vk.DeviceWaitIdle(d.device.LogicalDevice))
}

// Destroy releases the device and instance. Every object created through the driver must be gone.
func (d *Driver) Destroy() {
	if d.device != nil && d.device.LogicalDevice != nil {
		vk.DeviceWaitIdle(d.device.LogicalDevice)
		d.reportLeaks()
		d.destroyDevice()
	}
	if d.surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(d.instance, d.surface, d.allocator)
		d.surface = vk.NullSurface
	}
	d.destroyInstance()
}

func (d *Driver) reportLeaks() {
	leaks := map[string]int{
		"buffers":                 d.buffers.len(),
		"images":                  d.images.len(),
		"acceleration structures": d.accelerations.len(),
		"descriptor pools":        d.descriptorPools.len(),
		"pipelines":               d.pipelines.len(),
		"fences":                  d.fences.len(),
		"events":                  d.events.len(),
		"command pools":           d.commandPools.len(),
	}
	for kind, n := range leaks {
		if n > 0 {
			core.LogWarn("%d %s still alive at driver shutdown", n, kind)
		}
	}
}

// result converts a native code. The enums share their numeric values.
func result(r vk.Result) gpu.Result {
	return gpu.Result(r)
}

func resultError(r gpu.Result) error {
	if err := r.Err(); err != nil {
		return err
	}
	return errors.New("unexpected success")
}
