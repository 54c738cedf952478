package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

func (d *Driver) CreateFence(signaled bool) (gpu.FenceHandle, gpu.Result) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	// A signaled fence lets the first wait on a frame slot return immediately.
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if res := vk.CreateFence(d.device.LogicalDevice, &fenceCreateInfo, d.allocator, &fence); res != vk.Success {
		return 0, result(res)
	}
	return gpu.FenceHandle(d.fences.put(fence)), gpu.Success
}

func (d *Driver) DestroyFence(fence gpu.FenceHandle) {
	if f, ok := d.fences.take(uint64(fence)); ok {
		vk.DestroyFence(d.device.LogicalDevice, f, d.allocator)
	}
}

func (d *Driver) FenceStatus(fence gpu.FenceHandle) gpu.Result {
	return result(vk.GetFenceStatus(d.device.LogicalDevice, d.fences.get(uint64(fence))))
}

func (d *Driver) WaitForFence(fence gpu.FenceHandle, timeoutNs uint64) gpu.Result {
	return result(vk.WaitForFences(d.device.LogicalDevice, 1, []vk.Fence{d.fences.get(uint64(fence))}, vk.True, timeoutNs))
}

func (d *Driver) ResetFence(fence gpu.FenceHandle) gpu.Result {
	return result(vk.ResetFences(d.device.LogicalDevice, 1, []vk.Fence{d.fences.get(uint64(fence))}))
}

func (d *Driver) CreateEvent() (gpu.EventHandle, gpu.Result) {
	eventCreateInfo := vk.EventCreateInfo{
		SType: vk.StructureTypeEventCreateInfo,
	}
	var event vk.Event
	if res := vk.CreateEvent(d.device.LogicalDevice, &eventCreateInfo, d.allocator, &event); res != vk.Success {
		return 0, result(res)
	}
	return gpu.EventHandle(d.events.put(event)), gpu.Success
}

func (d *Driver) DestroyEvent(event gpu.EventHandle) {
	if e, ok := d.events.take(uint64(event)); ok {
		vk.DestroyEvent(d.device.LogicalDevice, e, d.allocator)
	}
}

func (d *Driver) EventStatus(event gpu.EventHandle) gpu.Result {
	return result(vk.GetEventStatus(d.device.LogicalDevice, d.events.get(uint64(event))))
}

func (d *Driver) CreateSemaphore() (gpu.SemaphoreHandle, gpu.Result) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(d.device.LogicalDevice, &semaphoreCreateInfo, d.allocator, &semaphore); res != vk.Success {
		return 0, result(res)
	}
	return gpu.SemaphoreHandle(d.semaphores.put(semaphore)), gpu.Success
}

func (d *Driver) DestroySemaphore(semaphore gpu.SemaphoreHandle) {
	if s, ok := d.semaphores.take(uint64(semaphore)); ok {
		vk.DestroySemaphore(d.device.LogicalDevice, s, d.allocator)
	}
}

func (d *Driver) CreateQueryPool(info gpu.QueryPoolCreateInfo) (gpu.QueryPoolHandle, gpu.Result) {
	createInfo := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vkQueryType(info.Type),
		QueryCount: info.Count,
	}
	var pool vk.QueryPool
	if res := vk.CreateQueryPool(d.device.LogicalDevice, &createInfo, d.allocator, &pool); res != vk.Success {
		return 0, result(res)
	}
	return gpu.QueryPoolHandle(d.queryPools.put(pool)), gpu.Success
}

func (d *Driver) DestroyQueryPool(pool gpu.QueryPoolHandle) {
	if p, ok := d.queryPools.take(uint64(pool)); ok {
		vk.DestroyQueryPool(d.device.LogicalDevice, p, d.allocator)
	}
}

// QueryResults returns NotReady until every query in the range is available.
func (d *Driver) QueryResults(pool gpu.QueryPoolHandle, first, count uint32) ([]uint64, gpu.Result) {
	if count == 0 {
		return nil, gpu.Success
	}
	results := make([]uint64, count)
	stride := uint64(unsafe.Sizeof(results[0]))
	res := vk.GetQueryPoolResults(
		d.device.LogicalDevice,
		d.queryPools.get(uint64(pool)),
		first, count,
		uint64(len(results))*stride,
		unsafe.Pointer(&results[0]),
		vk.DeviceSize(stride),
		vk.QueryResultFlags(vk.QueryResult64Bit),
	)
	if res != vk.Success {
		return nil, result(res)
	}
	return results, gpu.Success
}
