package vulkan

import (
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

type VulkanDevice struct {
	Name               string
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Compute              bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	ComputeFamilyIndex  int32
}

// rayTracingPropertiesNV has the memory layout of VkPhysicalDeviceRayTracingPropertiesNV.
type rayTracingPropertiesNV struct {
	SType                                  uint32
	PNext                                  unsafe.Pointer
	ShaderGroupHandleSize                  uint32
	MaxRecursionDepth                      uint32
	MaxShaderGroupStride                   uint32
	ShaderGroupBaseAlignment               uint32
	MaxGeometryCount                       uint64
	MaxInstanceCount                       uint64
	MaxTriangleCount                       uint64
	MaxDescriptorSetAccelerationStructures uint32
}

func (d *Driver) createDevice() error {
	d.device = &VulkanDevice{GraphicsQueueIndex: -1, PresentQueueIndex: -1}
	if !d.selectPhysicalDevice() {
		return ErrNoSuitableDevice
	}
	device := d.device

	core.LogInfo("Creating logical device...")
	indices := []uint32{uint32(device.GraphicsQueueIndex)}
	if d.surface != vk.NullSurface && device.PresentQueueIndex != device.GraphicsQueueIndex {
		indices = append(indices, uint32(device.PresentQueueIndex))
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: indices[i],
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := d.requiredDeviceExtensions()
	if deviceHasExtension(device.PhysicalDevice, extensionPortabilitySubset) {
		core.LogInfo("Adding required extension '%s'.", extensionPortabilitySubset)
		extensionNames = append(extensionNames, extensionPortabilitySubset)
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy:                      device.Features.SamplerAnisotropy,
		ShaderInt64:                            device.Features.ShaderInt64,
		ShaderStorageImageWriteWithoutFormat:   device.Features.ShaderStorageImageWriteWithoutFormat,
		ShaderSampledImageArrayDynamicIndexing: vk.True,
	}
	// Bindless texture and mesh arrays.
	indexing := vk.PhysicalDeviceVulkan12Features{
		SType:                                         vk.StructureTypePhysicalDeviceVulkan12Features,
		RuntimeDescriptorArray:                        vk.True,
		DescriptorBindingPartiallyBound:               vk.True,
		DescriptorBindingVariableDescriptorCount:      vk.True,
		DescriptorBindingUpdateUnusedWhilePending:     vk.True,
		DescriptorBindingSampledImageUpdateAfterBind:  vk.True,
		DescriptorBindingStorageBufferUpdateAfterBind: vk.True,
		ShaderSampledImageArrayNonUniformIndexing:     vk.True,
		ShaderStorageBufferArrayNonUniformIndexing:    vk.True,
	}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   unsafe.Pointer(&indexing),
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var logical vk.Device
	if res := vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, d.allocator, &logical); res != vk.Success {
		return errors.Wrap(result(res).Err(), "failed to create logical device")
	}
	device.LogicalDevice = logical
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.GraphicsQueueIndex), 0, &queue)
	device.GraphicsQueue = queue
	d.locks.SetQueueFamily(uint32(device.GraphicsQueueIndex))
	if d.surface != vk.NullSurface {
		var present vk.Queue
		vk.GetDeviceQueue(device.LogicalDevice, uint32(device.PresentQueueIndex), 0, &present)
		device.PresentQueue = present
		d.locks.SetQueueFamily(uint32(device.PresentQueueIndex))
	}
	core.LogInfo("Queues obtained.")

	d.queryRayTracingProperties()
	return nil
}

func (d *Driver) requiredDeviceExtensions() []string {
	names := []string{extensionRayTracing, extensionMemoryRequirements2}
	if d.surface != vk.NullSurface {
		names = append(names, extensionSwapchain)
	}
	return names
}

func (d *Driver) queryRayTracingProperties() {
	rt := rayTracingPropertiesNV{SType: structureTypePhysicalDeviceRayTracingProperties}
	properties := vk.PhysicalDeviceProperties2{
		SType: structureTypePhysicalDeviceProperties2,
		PNext: unsafe.Pointer(&rt),
	}
	vk.GetPhysicalDeviceProperties2(d.device.PhysicalDevice, &properties)

	d.properties = gpu.RayTracingProperties{
		ShaderGroupHandleSize: rt.ShaderGroupHandleSize,
		MaxRecursionDepth:     rt.MaxRecursionDepth,
		ShaderGroupBaseAlign:  rt.ShaderGroupBaseAlignment,
		MaxGeometryCount:      rt.MaxGeometryCount,
		MaxInstanceCount:      rt.MaxInstanceCount,
		MaxTriangleCount:      rt.MaxTriangleCount,
	}
	core.LogInfo("Ray tracing: handle size %d, max recursion %d, base alignment %d.",
		rt.ShaderGroupHandleSize, rt.MaxRecursionDepth, rt.ShaderGroupBaseAlignment)
}

func (d *Driver) destroyDevice() {
	device := d.device
	device.GraphicsQueue = nil
	device.PresentQueue = nil

	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(device.LogicalDevice, d.allocator)
	device.LogicalDevice = nil

	// Physical devices are not destroyed.
	device.PhysicalDevice = nil
	device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	device.GraphicsQueueIndex = -1
	device.PresentQueueIndex = -1
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		return result(res).Err()
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil); res != vk.Success {
		return result(res).Err()
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
	if supportInfo.FormatCount != 0 {
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats); res != vk.Success {
			return result(res).Err()
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil); res != vk.Success {
		return errors.Wrap(result(res).Err(), "failed to get physical device surface present modes")
	}
	supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
	if supportInfo.PresentModeCount != 0 {
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes); res != vk.Success {
			return errors.Wrap(result(res).Err(), "failed to get physical device surface present modes")
		}
	}
	return nil
}

func (d *Driver) selectPhysicalDevice() bool {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(d.instance, &physicalDeviceCount, nil); res != vk.Success {
		return false
	}
	if physicalDeviceCount == 0 {
		core.LogError("No devices which support Vulkan were found.")
		return false
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(d.instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return false
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Compute:              true,
		Present:              d.surface != vk.NullSurface,
		DeviceExtensionNames: d.requiredDeviceExtensions(),
	}

	bestScore := -1
	for i := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(physicalDevices[i], &properties)
		properties.Deref()
		properties.Limits.Deref()

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(physicalDevices[i], &features)
		features.Deref()

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(physicalDevices[i], &memory)
		memory.Deref()

		name := fixedString(properties.DeviceName[:])
		queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{}
		var support VulkanSwapchainSupportInfo
		if !PhysicalDeviceMeetsRequirements(physicalDevices[i], d.surface, name, &features, &requirements, &queueInfo, &support) {
			continue
		}
		// Discrete GPUs win over everything else.
		score := 0
		if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			score = 2
		} else if properties.DeviceType == vk.PhysicalDeviceTypeIntegratedGpu {
			score = 1
		}
		if score <= bestScore {
			continue
		}
		bestScore = score

		d.device.Name = name
		d.device.PhysicalDevice = physicalDevices[i]
		d.device.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
		d.device.PresentQueueIndex = queueInfo.PresentFamilyIndex
		d.device.Properties = properties
		d.device.Features = features
		d.device.Memory = memory
		d.device.SwapchainSupport = support
	}

	if d.device.PhysicalDevice == nil {
		core.LogError("No physical devices were found which meet the requirements.")
		return false
	}
	logDeviceInfo(d.device)
	return true
}

func logDeviceInfo(device *VulkanDevice) {
	properties := device.Properties
	core.LogInfo("Selected device: '%s'.", device.Name)
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)
	for j := 0; j < int(device.Memory.MemoryHeapCount); j++ {
		device.Memory.MemoryHeaps[j].Deref()
		heap := device.Memory.MemoryHeaps[j]
		memorySizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, name string, features *vk.PhysicalDeviceFeatures, requirements *VulkanPhysicalDeviceRequirements, outQueueInfo *VulkanPhysicalDeviceQueueFamilyInfo, outSwapchainSupport *VulkanSwapchainSupportInfo) bool {
	outQueueInfo.GraphicsFamilyIndex = -1
	outQueueInfo.PresentFamilyIndex = -1
	outQueueInfo.ComputeFamilyIndex = -1

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i := 0; i < int(queueFamilyCount); i++ {
		queueFamilies[i].Deref()
		flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)
		// Ray dispatches and transfers all go to one queue that does graphics and compute.
		if flags&vk.QueueGraphicsBit != 0 && flags&vk.QueueComputeBit != 0 && outQueueInfo.GraphicsFamilyIndex < 0 {
			outQueueInfo.GraphicsFamilyIndex = int32(i)
			outQueueInfo.ComputeFamilyIndex = int32(i)
		}
		if requirements.Present {
			var supportsPresent vk.Bool32 = vk.False
			if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
				return false
			}
			// Prefer presenting from the graphics family.
			if supportsPresent == vk.True && (outQueueInfo.PresentFamilyIndex < 0 || outQueueInfo.GraphicsFamilyIndex == int32(i)) {
				outQueueInfo.PresentFamilyIndex = int32(i)
			}
		}
	}

	core.LogInfo("Graphics | Present | Compute | Name")
	core.LogInfo("   %5t |   %5t |   %5t | %s",
		outQueueInfo.GraphicsFamilyIndex >= 0,
		outQueueInfo.PresentFamilyIndex >= 0,
		outQueueInfo.ComputeFamilyIndex >= 0,
		name)

	if (requirements.Graphics && outQueueInfo.GraphicsFamilyIndex < 0) ||
		(requirements.Present && outQueueInfo.PresentFamilyIndex < 0) ||
		(requirements.Compute && outQueueInfo.ComputeFamilyIndex < 0) {
		return false
	}
	core.LogDebug("Graphics Family Index: %d", outQueueInfo.GraphicsFamilyIndex)
	core.LogDebug("Present Family Index:  %d", outQueueInfo.PresentFamilyIndex)

	if requirements.Present {
		if err := DeviceQuerySwapchainSupport(device, surface, outSwapchainSupport); err != nil ||
			outSwapchainSupport.FormatCount < 1 || outSwapchainSupport.PresentModeCount < 1 {
			core.LogInfo("Required swapchain support not present, skipping device.")
			return false
		}
	}

	for _, extension := range requirements.DeviceExtensionNames {
		if !deviceHasExtension(device, extension) {
			core.LogInfo("Required extension not found: '%s', skipping device.", extension)
			return false
		}
	}

	if requirements.SamplerAnisotropy && features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device does not support samplerAnisotropy, skipping.")
		return false
	}

	if !supportsDescriptorIndexing(device) {
		core.LogInfo("Device does not support descriptor indexing, skipping.")
		return false
	}
	return true
}

func supportsDescriptorIndexing(device vk.PhysicalDevice) bool {
	indexing := vk.PhysicalDeviceVulkan12Features{SType: vk.StructureTypePhysicalDeviceVulkan12Features}
	features := vk.PhysicalDeviceFeatures2{
		SType: structureTypePhysicalDeviceFeatures2,
		PNext: unsafe.Pointer(&indexing),
	}
	vk.GetPhysicalDeviceFeatures2(device, &features)
	return indexing.RuntimeDescriptorArray == vk.True &&
		indexing.DescriptorBindingPartiallyBound == vk.True &&
		indexing.DescriptorBindingVariableDescriptorCount == vk.True &&
		indexing.ShaderSampledImageArrayNonUniformIndexing == vk.True
}

func deviceHasExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if fixedString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

// clampExtent keeps the requested extent inside what the surface allows.
func clampExtent(requested vk.Extent2D, capabilities vk.SurfaceCapabilities) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clamp(requested.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(requested.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi uint32) uint32 {
	return min(max(v, lo), hi)
}
