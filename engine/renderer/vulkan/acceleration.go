package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

// assign stores a flag value into a field of any native flag type.
func assign[T ~uint32](dst *T, v uint32) {
	*dst = T(v)
}

// accelerationStructureInfo converts the description of a structure. The returned info
// borrows native buffer handles from the driver tables.
func (d *Driver) accelerationStructureInfo(info gpu.AccelerationStructureCreateInfo) vk.AccelerationStructureInfoNV {
	out := vk.AccelerationStructureInfoNV{
		SType:         structureTypeAccelerationStructureInfo,
		InstanceCount: info.InstanceCount,
	}
	if info.Type == gpu.AccelerationStructureTopLevel {
		out.Type = accelerationStructureTypeTopLevel
	} else {
		out.Type = accelerationStructureTypeBottomLevel
	}
	assign(&out.Flags, convertFlags(info.Flags, buildFlagBits))

	if len(info.Geometries) == 0 {
		return out
	}
	geometries := make([]vk.GeometryNV, len(info.Geometries))
	for i, g := range info.Geometries {
		geometries[i] = vk.GeometryNV{
			SType:        structureTypeGeometry,
			GeometryType: geometryTypeTriangles,
			Geometry: vk.GeometryDataNV{
				Triangles: vk.GeometryTrianglesNV{
					SType:        structureTypeGeometryTriangles,
					VertexData:   d.buffers.get(uint64(g.VertexBuffer)).handle,
					VertexOffset: vk.DeviceSize(g.VertexOffset),
					VertexCount:  g.VertexCount,
					VertexStride: vk.DeviceSize(g.VertexStride),
					VertexFormat: vkFormat(g.VertexFormat),
					IndexData:    d.buffers.get(uint64(g.IndexBuffer)).handle,
					IndexOffset:  vk.DeviceSize(g.IndexOffset),
					IndexCount:   g.IndexCount,
					IndexType:    vkIndexType(g.IndexType),
				},
				Aabbs: vk.GeometryAABBNV{SType: structureTypeGeometryAABB},
			},
		}
		assign(&geometries[i].Flags, convertFlags(g.Flags, geometryFlagBits))
	}
	out.GeometryCount = uint32(len(geometries))
	out.PGeometries = geometries
	return out
}

func (d *Driver) CreateAccelerationStructure(info gpu.AccelerationStructureCreateInfo) (gpu.AccelerationStructure, gpu.Result) {
	createInfo := vk.AccelerationStructureCreateInfoNV{
		SType: structureTypeAccelerationStructureCreateInfo,
		Info:  d.accelerationStructureInfo(info),
	}
	var handle vk.AccelerationStructureNV
	if res := vk.CreateAccelerationStructureNV(d.device.LogicalDevice, &createInfo, d.allocator, &handle); res != vk.Success {
		return gpu.AccelerationStructure{}, result(res)
	}

	requirements := d.accelerationStructureMemory(handle, memoryRequirementsTypeObject)
	memory, r := d.allocateMemory(requirements, gpu.MemoryUsageGPUOnly)
	if !r.IsSuccess() {
		vk.DestroyAccelerationStructureNV(d.device.LogicalDevice, handle, d.allocator)
		return gpu.AccelerationStructure{}, r
	}
	bind := []vk.BindAccelerationStructureMemoryInfoNV{{
		SType:                 structureTypeBindAccelerationStructureMemoryInfo,
		AccelerationStructure: handle,
		Memory:                d.memories.get(uint64(memory)).handle,
	}}
	if res := vk.BindAccelerationStructureMemoryNV(d.device.LogicalDevice, 1, bind); res != vk.Success {
		d.freeMemory(memory)
		vk.DestroyAccelerationStructureNV(d.device.LogicalDevice, handle, d.allocator)
		return gpu.AccelerationStructure{}, result(res)
	}

	return gpu.AccelerationStructure{
		Handle: gpu.AccelerationStructureHandle(d.accelerations.put(accelerationStructureObject{handle: handle, memory: memory})),
		Memory: memory,
		Type:   info.Type,
	}, gpu.Success
}

func (d *Driver) accelerationStructureMemory(handle vk.AccelerationStructureNV, kind uint32) vk.MemoryRequirements {
	info := vk.AccelerationStructureMemoryRequirementsInfoNV{
		SType:                 structureTypeAccelerationStructureMemoryRequirements,
		AccelerationStructure: handle,
	}
	assign(&info.Type, kind)
	requirements := vk.MemoryRequirements2{SType: structureTypeMemoryRequirements2}
	vk.GetAccelerationStructureMemoryRequirementsNV(d.device.LogicalDevice, &info, &requirements)
	requirements.Deref()
	requirements.MemoryRequirements.Deref()
	return requirements.MemoryRequirements
}

func (d *Driver) DestroyAccelerationStructure(as gpu.AccelerationStructure) {
	object, ok := d.accelerations.take(uint64(as.Handle))
	if !ok {
		return
	}
	vk.DestroyAccelerationStructureNV(d.device.LogicalDevice, object.handle, d.allocator)
	d.freeMemory(object.memory)
}

func (d *Driver) AccelerationStructureScratchSize(as gpu.AccelerationStructure, kind gpu.ScratchBufferType) uint64 {
	object := d.accelerations.get(uint64(as.Handle))
	requirementsType := uint32(memoryRequirementsTypeBuildScratch)
	if kind == gpu.ScratchBufferUpdate {
		requirementsType = memoryRequirementsTypeUpdateScratch
	}
	return uint64(d.accelerationStructureMemory(object.handle, requirementsType).Size)
}

// AccelerationStructureHandle returns the opaque reference stored in top level instance records.
func (d *Driver) AccelerationStructureHandle(as gpu.AccelerationStructure) (uint64, gpu.Result) {
	object := d.accelerations.get(uint64(as.Handle))
	var reference uint64
	res := vk.GetAccelerationStructureHandleNV(d.device.LogicalDevice, object.handle, uint64(unsafe.Sizeof(reference)), unsafe.Pointer(&reference))
	return reference, result(res)
}

func (d *Driver) CmdBuildAccelerationStructure(cb gpu.CommandBufferHandle, info gpu.BuildAccelerationStructureInfo) {
	buildInfo := d.accelerationStructureInfo(info.Info)
	vk.CmdBuildAccelerationStructureNV(
		d.commandBuffers.get(uint64(cb)).handle,
		&buildInfo,
		d.buffers.get(uint64(info.InstanceBuffer)).handle,
		vk.DeviceSize(info.InstanceOffset),
		toBool32(info.Update),
		d.accelerations.get(uint64(info.Destination)).handle,
		d.accelerations.get(uint64(info.Source)).handle,
		d.buffers.get(uint64(info.Scratch)).handle,
		vk.DeviceSize(info.ScratchOffset),
	)
}
