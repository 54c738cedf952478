package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

// FindMemoryIndex returns the first memory type allowed by typeFilter with every requested property, or -1.
func (d *Driver) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	memoryProperties := d.device.Memory
	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	return -1
}

// allocateMemory tries the preferred properties first and falls back to the required ones.
func (d *Driver) allocateMemory(requirements vk.MemoryRequirements, usage gpu.MemoryUsage) (gpu.MemoryHandle, gpu.Result) {
	required, preferred := memoryProperties(usage)
	index := d.FindMemoryIndex(requirements.MemoryTypeBits, uint32(required|preferred))
	if index < 0 {
		index = d.FindMemoryIndex(requirements.MemoryTypeBits, uint32(required))
	}
	if index < 0 {
		core.LogWarn("Unable to find suitable memory type!")
		return 0, gpu.ErrorOutOfDeviceMemory
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	err := d.locks.SafeCall(MemoryManagement, func() error {
		return result(vk.AllocateMemory(d.device.LogicalDevice, &allocateInfo, d.allocator, &memory)).Err()
	})
	if err != nil {
		return 0, gpu.ErrorOutOfDeviceMemory
	}
	return gpu.MemoryHandle(d.memories.put(memoryObject{handle: memory, size: uint64(requirements.Size)})), gpu.Success
}

func (d *Driver) freeMemory(handle gpu.MemoryHandle) {
	memory, ok := d.memories.take(uint64(handle))
	if !ok {
		return
	}
	if memory.mapped {
		vk.UnmapMemory(d.device.LogicalDevice, memory.handle)
	}
	_ = d.locks.SafeCall(MemoryManagement, func() error {
		vk.FreeMemory(d.device.LogicalDevice, memory.handle, d.allocator)
		return nil
	})
}

func (d *Driver) mapMemory(handle gpu.MemoryHandle) ([]byte, gpu.Result) {
	d.memories.mu.Lock()
	defer d.memories.mu.Unlock()
	memory, ok := d.memories.objects[uint64(handle)]
	if !ok {
		return nil, gpu.ErrorMemoryMapFailed
	}
	var ptr unsafe.Pointer
	if res := vk.MapMemory(d.device.LogicalDevice, memory.handle, 0, vk.DeviceSize(memory.size), 0, &ptr); res != vk.Success {
		return nil, result(res)
	}
	memory.mapped = true
	d.memories.objects[uint64(handle)] = memory
	return unsafe.Slice((*byte)(ptr), memory.size), gpu.Success
}

func (d *Driver) unmapMemory(handle gpu.MemoryHandle) {
	d.memories.mu.Lock()
	defer d.memories.mu.Unlock()
	memory, ok := d.memories.objects[uint64(handle)]
	if !ok || !memory.mapped {
		return
	}
	vk.UnmapMemory(d.device.LogicalDevice, memory.handle)
	memory.mapped = false
	d.memories.objects[uint64(handle)] = memory
}

func (d *Driver) CreateBuffer(info gpu.BufferCreateInfo) (gpu.Buffer, gpu.Result) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vkBufferUsage(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(d.device.LogicalDevice, &createInfo, d.allocator, &handle); res != vk.Success {
		return gpu.Buffer{}, result(res)
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device.LogicalDevice, handle, &requirements)
	requirements.Deref()
	memory, r := d.allocateMemory(requirements, info.Memory)
	if !r.IsSuccess() {
		vk.DestroyBuffer(d.device.LogicalDevice, handle, d.allocator)
		return gpu.Buffer{}, r
	}
	if res := vk.BindBufferMemory(d.device.LogicalDevice, handle, d.memories.get(uint64(memory)).handle, 0); res != vk.Success {
		d.freeMemory(memory)
		vk.DestroyBuffer(d.device.LogicalDevice, handle, d.allocator)
		return gpu.Buffer{}, result(res)
	}

	buffer := gpu.Buffer{
		Handle: gpu.BufferHandle(d.buffers.put(bufferObject{handle: handle, memory: memory})),
		Memory: memory,
		Size:   info.Size,
	}
	if info.Map {
		mapped, r := d.mapMemory(memory)
		if !r.IsSuccess() {
			d.DestroyBuffer(buffer)
			return gpu.Buffer{}, r
		}
		buffer.Mapped = mapped[:info.Size]
	}
	return buffer, gpu.Success
}

func (d *Driver) DestroyBuffer(buffer gpu.Buffer) {
	object, ok := d.buffers.take(uint64(buffer.Handle))
	if !ok {
		return
	}
	vk.DestroyBuffer(d.device.LogicalDevice, object.handle, d.allocator)
	d.freeMemory(object.memory)
}

func (d *Driver) MapBuffer(buffer gpu.Buffer) ([]byte, gpu.Result) {
	mapped, r := d.mapMemory(buffer.Memory)
	if !r.IsSuccess() {
		return nil, r
	}
	return mapped[:buffer.Size], gpu.Success
}

func (d *Driver) UnmapBuffer(buffer gpu.Buffer) {
	d.unmapMemory(buffer.Memory)
}

func (d *Driver) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, gpu.Result) {
	var flags vk.ImageCreateFlags
	if info.Flags&gpu.ImageCreateCubeCompatible != 0 {
		flags |= vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	format := vkFormat(info.Format)
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: vkImageType(info.Type),
		Format:    format,
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  max(info.Extent.Depth, 1),
		},
		MipLevels:     info.Levels,
		ArrayLayers:   info.Layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vkImageUsage(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var handle vk.Image
	if res := vk.CreateImage(d.device.LogicalDevice, &createInfo, d.allocator, &handle); res != vk.Success {
		return gpu.Image{}, result(res)
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device.LogicalDevice, handle, &requirements)
	requirements.Deref()
	memory, r := d.allocateMemory(requirements, info.Memory)
	if !r.IsSuccess() {
		vk.DestroyImage(d.device.LogicalDevice, handle, d.allocator)
		return gpu.Image{}, r
	}
	if res := vk.BindImageMemory(d.device.LogicalDevice, handle, d.memories.get(uint64(memory)).handle, 0); res != vk.Success {
		d.freeMemory(memory)
		vk.DestroyImage(d.device.LogicalDevice, handle, d.allocator)
		return gpu.Image{}, result(res)
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    handle,
		ViewType: vkImageViewType(info.ViewType),
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vkImageAspect(info.Aspect),
			BaseMipLevel:   0,
			LevelCount:     info.Levels,
			BaseArrayLayer: 0,
			LayerCount:     info.Layers,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.device.LogicalDevice, &viewInfo, d.allocator, &view); res != vk.Success {
		d.freeMemory(memory)
		vk.DestroyImage(d.device.LogicalDevice, handle, d.allocator)
		return gpu.Image{}, result(res)
	}

	viewHandle := gpu.ImageViewHandle(d.views.put(view))
	return gpu.Image{
		Handle: gpu.ImageHandle(d.images.put(imageObject{handle: handle, view: viewHandle, memory: memory})),
		View:   viewHandle,
		Memory: memory,
		Format: info.Format,
		Extent: info.Extent,
		Aspect: info.Aspect,
		Layers: info.Layers,
		Levels: info.Levels,
	}, gpu.Success
}

func (d *Driver) DestroyImage(image gpu.Image) {
	object, ok := d.images.take(uint64(image.Handle))
	if !ok {
		return
	}
	if view, ok := d.views.take(uint64(object.view)); ok {
		vk.DestroyImageView(d.device.LogicalDevice, view, d.allocator)
	}
	vk.DestroyImage(d.device.LogicalDevice, object.handle, d.allocator)
	d.freeMemory(object.memory)
}

func (d *Driver) CreateSampler(info gpu.SamplerCreateInfo) (gpu.SamplerHandle, gpu.Result) {
	mode := vkAddressMode(info.AddressMode)
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vkFilter(info.MagFilter),
		MinFilter:               vkFilter(info.MinFilter),
		AddressModeU:            mode,
		AddressModeV:            mode,
		AddressModeW:            mode,
		AnisotropyEnable:        toBool32(info.Anisotropy > 1 && d.device.Features.SamplerAnisotropy == vk.True),
		MaxAnisotropy:           info.Anisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MaxLod:                  info.MaxLod,
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(d.device.LogicalDevice, &samplerInfo, d.allocator, &sampler); res != vk.Success {
		return 0, result(res)
	}
	return gpu.SamplerHandle(d.samplers.put(sampler)), gpu.Success
}

func (d *Driver) DestroySampler(sampler gpu.SamplerHandle) {
	if s, ok := d.samplers.take(uint64(sampler)); ok {
		vk.DestroySampler(d.device.LogicalDevice, s, d.allocator)
	}
}
