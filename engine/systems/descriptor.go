package systems

import (
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

type ResourceClass int

const (
	ResourceClassAttributeBuffer ResourceClass = iota
	ResourceClassIndexBuffer
	ResourceClassTexture
	resourceClassCount
)

var resourceClassNames = [...]string{"attribute_buffer", "index_buffer", "texture"}

func (c ResourceClass) String() string {
	if c < 0 || c >= resourceClassCount {
		return "unknown"
	}
	return resourceClassNames[c]
}

func (c ResourceClass) descriptorType() gpu.DescriptorType {
	if c == ResourceClassTexture {
		return gpu.DescriptorTypeCombinedImageSampler
	}
	return gpu.DescriptorTypeStorageBuffer
}

/** @brief A slot in a bindless descriptor array. Index 0 is the invalid handle; slot = Index-1. */
type DescriptorHandle struct {
	Index uint32
	Class ResourceClass
}

func (h DescriptorHandle) IsValid() bool {
	return h.Index != 0
}

// Slot returns the array element addressed by the shaders.
func (h DescriptorHandle) Slot() uint32 {
	return h.Index - 1
}

type descriptorPool struct {
	pool     gpu.DescriptorPoolHandle
	layout   gpu.DescriptorSetLayoutHandle
	set      gpu.DescriptorSetHandle
	capacity uint32
	counter  atomic.Uint32
}

/**
 * @brief Owns one bindless descriptor array per resource class. Allocation is lock free;
 * pool creation and destruction happen on the render thread.
 */
type DescriptorManager struct {
	device  *gpu.Device
	mu      sync.RWMutex
	pools   [resourceClassCount]*descriptorPool
	sampler gpu.SamplerHandle
}

func NewDescriptorManager(device *gpu.Device) *DescriptorManager {
	return &DescriptorManager{device: device}
}

// BindingFlags returns the flags every bindless array binding is declared with.
func (dm *DescriptorManager) BindingFlags() gpu.DescriptorBindingFlags {
	return gpu.DescriptorBindingPartiallyBound |
		gpu.DescriptorBindingUpdateAfterBind |
		gpu.DescriptorBindingUpdateUnusedWhilePending |
		gpu.DescriptorBindingVariableDescriptorCount
}

/**
 * @brief Creates the pool, layout and single set of a resource class.
 * @return false if any object could not be created; nothing is left behind in that case.
 */
func (dm *DescriptorManager) CreateDescriptorPool(class ResourceClass, capacity uint32) bool {
	core.Assert(class >= 0 && class < resourceClassCount, "unknown resource class %d", class)
	core.Assert(capacity > 0, "descriptor pool capacity must be positive")

	dm.mu.Lock()
	defer dm.mu.Unlock()
	core.Assert(dm.pools[class] == nil, "descriptor pool for %s already created", class)

	binding := gpu.DescriptorSetLayoutBinding{
		Binding: 0,
		Type:    class.descriptorType(),
		Count:   capacity,
		Stages:  gpu.ShaderStageAll,
		Flags:   dm.BindingFlags(),
	}
	if class == ResourceClassTexture {
		if !dm.sampler.IsValid() {
			dm.sampler = dm.device.CreateSampler(gpu.SamplerCreateInfo{
				MagFilter:   gpu.FilterLinear,
				MinFilter:   gpu.FilterLinear,
				AddressMode: gpu.SamplerAddressRepeat,
				MaxLod:      1,
			})
			if !dm.sampler.IsValid() {
				return false
			}
		}
	}

	p := &descriptorPool{capacity: capacity}
	p.pool = dm.device.CreateDescriptorPool(gpu.DescriptorPoolCreateInfo{
		Flags:   gpu.DescriptorPoolCreateUpdateAfterBind,
		MaxSets: 1,
		Sizes:   []gpu.DescriptorPoolSize{{Type: binding.Type, Count: capacity}},
	})
	if !p.pool.IsValid() {
		return false
	}
	p.layout = dm.device.CreateDescriptorSetLayout(gpu.DescriptorSetLayoutCreateInfo{
		Flags:    gpu.DescriptorSetLayoutCreateUpdateAfterBindPool,
		Bindings: []gpu.DescriptorSetLayoutBinding{binding},
	})
	if !p.layout.IsValid() {
		dm.device.DestroyDescriptorPool(&p.pool)
		return false
	}
	p.set = dm.device.AllocateDescriptorSet(p.pool, p.layout, capacity)
	if !p.set.IsValid() {
		dm.device.DestroyDescriptorSetLayout(&p.layout)
		dm.device.DestroyDescriptorPool(&p.pool)
		return false
	}
	dm.pools[class] = p
	core.LogDebug("created %s descriptor pool with %d slots", class, capacity)
	return true
}

func (dm *DescriptorManager) pool(class ResourceClass) *descriptorPool {
	if class < 0 || class >= resourceClassCount {
		return nil
	}
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.pools[class]
}

// AllocateDescriptor reserves the next slot of a class. Running out of slots is an assertion.
func (dm *DescriptorManager) AllocateDescriptor(class ResourceClass) DescriptorHandle {
	p := dm.pool(class)
	core.Assert(p != nil, "no descriptor pool for %s", class)
	index := p.counter.Add(1)
	core.Assert(index <= p.capacity, "%s descriptor pool exhausted (capacity %d)", class, p.capacity)
	return DescriptorHandle{Index: index, Class: class}
}

/**
 * @brief Hands out every slot again from the first one. Only valid once nothing references
 * the previously allocated handles, e.g. after the scene resources were destroyed.
 */
func (dm *DescriptorManager) ResetDescriptors() {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, p := range dm.pools {
		if p != nil {
			p.counter.Store(0)
		}
	}
}

// UpdateBufferDescriptor points the handle's slot at the whole buffer.
func (dm *DescriptorManager) UpdateBufferDescriptor(handle DescriptorHandle, buffer gpu.Buffer) {
	core.Assert(handle.IsValid(), "writing invalid descriptor handle")
	core.Assert(handle.Class != ResourceClassTexture, "buffer written to a texture descriptor")
	p := dm.pool(handle.Class)
	core.Assert(p != nil, "no descriptor pool for %s", handle.Class)
	dm.device.WriteDescriptors(gpu.WriteDescriptorSet{
		Set:          p.set,
		Binding:      0,
		ArrayElement: handle.Slot(),
		Type:         gpu.DescriptorTypeStorageBuffer,
		Buffers:      []gpu.DescriptorBufferInfo{{Buffer: buffer.Handle, Range: buffer.Size}},
	})
}

// UpdateImageDescriptor points the handle's slot at a shader readable image.
func (dm *DescriptorManager) UpdateImageDescriptor(handle DescriptorHandle, image gpu.Image) {
	core.Assert(handle.IsValid(), "writing invalid descriptor handle")
	core.Assert(handle.Class == ResourceClassTexture, "image written to a %s descriptor", handle.Class)
	p := dm.pool(handle.Class)
	core.Assert(p != nil, "no descriptor pool for %s", handle.Class)
	dm.device.WriteDescriptors(gpu.WriteDescriptorSet{
		Set:          p.set,
		Binding:      0,
		ArrayElement: handle.Slot(),
		Type:         gpu.DescriptorTypeCombinedImageSampler,
		Images: []gpu.DescriptorImageInfo{{
			Sampler: dm.sampler,
			View:    image.View,
			Layout:  gpu.ImageLayoutShaderReadOnlyOptimal,
		}},
	})
}

func (dm *DescriptorManager) DescriptorSetLayout(class ResourceClass) gpu.DescriptorSetLayoutHandle {
	if p := dm.pool(class); p != nil {
		return p.layout
	}
	return 0
}

func (dm *DescriptorManager) DescriptorSet(class ResourceClass) gpu.DescriptorSetHandle {
	if p := dm.pool(class); p != nil {
		return p.set
	}
	return 0
}

// DescriptorPoolCapacity returns 0 for classes without a pool.
func (dm *DescriptorManager) DescriptorPoolCapacity(class ResourceClass) uint32 {
	if p := dm.pool(class); p != nil {
		return p.capacity
	}
	return 0
}

// NumAllocated returns how many slots of a class have been handed out.
func (dm *DescriptorManager) NumAllocated(class ResourceClass) uint32 {
	if p := dm.pool(class); p != nil {
		return min(p.counter.Load(), p.capacity)
	}
	return 0
}

func (dm *DescriptorManager) Destroy() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for i, p := range dm.pools {
		if p == nil {
			continue
		}
		dm.device.DestroyDescriptorSetLayout(&p.layout)
		dm.device.DestroyDescriptorPool(&p.pool)
		dm.pools[i] = nil
	}
	dm.device.DestroySampler(&dm.sampler)
}
