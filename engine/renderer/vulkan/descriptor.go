package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

func (d *Driver) CreateDescriptorPool(info gpu.DescriptorPoolCreateInfo) (gpu.DescriptorPoolHandle, gpu.Result) {
	sizes := make([]vk.DescriptorPoolSize, len(info.Sizes))
	for i, size := range info.Sizes {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            vkDescriptorType(size.Type),
			DescriptorCount: size.Count,
		}
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vkDescriptorPoolFlags(info.Flags),
		MaxSets:       info.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.device.LogicalDevice, &createInfo, d.allocator, &pool); res != vk.Success {
		return 0, result(res)
	}
	return gpu.DescriptorPoolHandle(d.descriptorPools.put(pool)), gpu.Success
}

// DestroyDescriptorPool also releases every set allocated from the pool.
func (d *Driver) DestroyDescriptorPool(pool gpu.DescriptorPoolHandle) {
	handle, ok := d.descriptorPools.take(uint64(pool))
	if !ok {
		return
	}
	d.descriptorSets.removeIf(func(set descriptorSetObject) bool { return set.pool == pool })
	_ = d.locks.SafeCall(DescriptorManagement, func() error {
		vk.DestroyDescriptorPool(d.device.LogicalDevice, handle, d.allocator)
		return nil
	})
}

func (d *Driver) CreateDescriptorSetLayout(info gpu.DescriptorSetLayoutCreateInfo) (gpu.DescriptorSetLayoutHandle, gpu.Result) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(info.Bindings))
	flags := make([]vk.DescriptorBindingFlags, len(info.Bindings))
	hasFlags := false
	for i, b := range info.Bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vkDescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vkShaderStages(b.Stages),
		}
		if len(b.ImmutableSamplers) > 0 && b.Type.UsesSampler() {
			samplers := make([]vk.Sampler, len(b.ImmutableSamplers))
			for j, s := range b.ImmutableSamplers {
				samplers[j] = d.samplers.get(uint64(s))
			}
			bindings[i].PImmutableSamplers = samplers
		}
		flags[i] = vkDescriptorBindingFlags(b.Flags)
		hasFlags = hasFlags || b.Flags != 0
	}

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		Flags:        vkDescriptorSetLayoutFlags(info.Flags),
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if hasFlags {
		bindingFlags := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         structureTypeDescriptorSetLayoutBindingFlags,
			BindingCount:  uint32(len(flags)),
			PBindingFlags: flags,
		}
		cBindingFlags, _ := bindingFlags.PassRef()
		defer bindingFlags.Free()
		createInfo.PNext = unsafe.Pointer(cBindingFlags)
	}

	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(d.device.LogicalDevice, &createInfo, d.allocator, &layout); res != vk.Success {
		return 0, result(res)
	}
	return gpu.DescriptorSetLayoutHandle(d.setLayouts.put(layout)), gpu.Success
}

func (d *Driver) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayoutHandle) {
	if l, ok := d.setLayouts.take(uint64(layout)); ok {
		vk.DestroyDescriptorSetLayout(d.device.LogicalDevice, l, d.allocator)
	}
}

func (d *Driver) AllocateDescriptorSets(info gpu.DescriptorSetAllocateInfo) ([]gpu.DescriptorSetHandle, gpu.Result) {
	if len(info.Layouts) == 0 {
		return nil, gpu.Success
	}
	layouts := make([]vk.DescriptorSetLayout, len(info.Layouts))
	for i, l := range info.Layouts {
		layouts[i] = d.setLayouts.get(uint64(l))
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.descriptorPools.get(uint64(info.Pool)),
		DescriptorSetCount: uint32(len(layouts)),
		PSetLayouts:        layouts,
	}
	if len(info.VariableCounts) > 0 {
		counts := vk.DescriptorSetVariableDescriptorCountAllocateInfo{
			SType:              structureTypeDescriptorSetVariableDescriptorCount,
			DescriptorSetCount: uint32(len(info.VariableCounts)),
			PDescriptorCounts:  info.VariableCounts,
		}
		cCounts, _ := counts.PassRef()
		defer counts.Free()
		allocateInfo.PNext = unsafe.Pointer(cCounts)
	}

	sets := make([]vk.DescriptorSet, len(layouts))
	err := d.locks.SafeCall(DescriptorManagement, func() error {
		return result(vk.AllocateDescriptorSets(d.device.LogicalDevice, &allocateInfo, &sets[0])).Err()
	})
	if err != nil {
		return nil, gpu.ErrorOutOfPoolMemory
	}

	handles := make([]gpu.DescriptorSetHandle, len(sets))
	for i, set := range sets {
		handles[i] = gpu.DescriptorSetHandle(d.descriptorSets.put(descriptorSetObject{handle: set, pool: info.Pool}))
	}
	return handles, gpu.Success
}

func (d *Driver) UpdateDescriptorSets(writes []gpu.WriteDescriptorSet) {
	if len(writes) == 0 {
		return
	}
	native := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		native[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          d.descriptorSets.get(uint64(w.Set)).handle,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorType:  vkDescriptorType(w.Type),
		}
		switch {
		case w.Type == gpu.DescriptorTypeAccelerationStructure:
			structures := make([]vk.AccelerationStructureNV, len(w.AccelerationStructures))
			for j, as := range w.AccelerationStructures {
				structures[j] = d.accelerations.get(uint64(as)).handle
			}
			asWrite := vk.WriteDescriptorSetAccelerationStructureNV{
				SType:                      structureTypeWriteDescriptorSetAccelerationStructure,
				AccelerationStructureCount: uint32(len(structures)),
				PAccelerationStructures:    structures,
			}
			cWrite, _ := asWrite.PassRef()
			defer asWrite.Free()
			native[i].PNext = unsafe.Pointer(cWrite)
			native[i].DescriptorCount = uint32(len(structures))
		case len(w.Images) > 0:
			images := make([]vk.DescriptorImageInfo, len(w.Images))
			for j, img := range w.Images {
				images[j] = vk.DescriptorImageInfo{
					Sampler:     d.samplers.get(uint64(img.Sampler)),
					ImageView:   d.views.get(uint64(img.View)),
					ImageLayout: vkImageLayout(img.Layout),
				}
			}
			native[i].PImageInfo = images
			native[i].DescriptorCount = uint32(len(images))
		default:
			buffers := make([]vk.DescriptorBufferInfo, len(w.Buffers))
			for j, b := range w.Buffers {
				rng := vk.DeviceSize(b.Range)
				if b.Range == 0 {
					rng = vk.DeviceSize(vk.WholeSize)
				}
				buffers[j] = vk.DescriptorBufferInfo{
					Buffer: d.buffers.get(uint64(b.Buffer)).handle,
					Offset: vk.DeviceSize(b.Offset),
					Range:  rng,
				}
			}
			native[i].PBufferInfo = buffers
			native[i].DescriptorCount = uint32(len(buffers))
		}
	}
	_ = d.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.device.LogicalDevice, uint32(len(native)), native, 0, nil)
		return nil
	})
}
