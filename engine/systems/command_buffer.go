package systems

import (
	"sync"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

// commandPool is locked for as long as a goroutine records into one of its buffers.
type commandPool struct {
	mu     sync.Mutex
	handle gpu.CommandPoolHandle
}

/** @brief A one-time-submit command buffer and the pool it was allocated from. */
type TransientCommandBuffer struct {
	gpu.CommandBuffer
	pool *commandPool
}

func (cb TransientCommandBuffer) IsValid() bool {
	return cb.CommandBuffer.IsValid() && cb.pool != nil
}

/** @brief Resources destroyed once the command buffer they were released with has executed. */
type TransientResources struct {
	Buffers                []gpu.Buffer
	Images                 []gpu.Image
	AccelerationStructures []gpu.AccelerationStructure
}

func (r *TransientResources) IsEmpty() bool {
	return len(r.Buffers) == 0 && len(r.Images) == 0 && len(r.AccelerationStructures) == 0
}

type executableCommandBuffer struct {
	commandBuffer TransientCommandBuffer
	resources     TransientResources
}

type commandBatch struct {
	fence          gpu.FenceHandle
	commandBuffers []executableCommandBuffer
}

/**
 * @brief Hands out transient command buffers to worker jobs and retires them, together with
 * their transient resources, once the GPU has executed them.
 */
type CommandBufferManager struct {
	device *gpu.Device

	poolsMu   sync.Mutex
	pools     []*commandPool
	idlePools []*commandPool

	executableMu sync.Mutex
	executable   []executableCommandBuffer

	// Render thread only.
	pending []commandBatch
}

func NewCommandBufferManager(device *gpu.Device) *CommandBufferManager {
	return &CommandBufferManager{device: device}
}

func (m *CommandBufferManager) leasePool() *commandPool {
	m.poolsMu.Lock()
	var pool *commandPool
	if n := len(m.idlePools); n > 0 {
		pool = m.idlePools[n-1]
		m.idlePools = m.idlePools[:n-1]
	}
	m.poolsMu.Unlock()

	if pool == nil {
		handle := m.device.CreateCommandPool(gpu.CommandPoolCreateTransient)
		if !handle.IsValid() {
			return nil
		}
		pool = &commandPool{handle: handle}
		m.poolsMu.Lock()
		m.pools = append(m.pools, pool)
		m.poolsMu.Unlock()
	}
	pool.mu.Lock()
	return pool
}

func (m *CommandBufferManager) returnPool(pool *commandPool) {
	pool.mu.Unlock()
	m.poolsMu.Lock()
	m.idlePools = append(m.idlePools, pool)
	m.poolsMu.Unlock()
}

/**
 * @brief Returns a command buffer in the recording state. Safe to call from any goroutine;
 * the caller owns the buffer's pool until ReleaseCommandBuffer.
 * @return The zero value on failure.
 */
func (m *CommandBufferManager) AcquireCommandBuffer() TransientCommandBuffer {
	pool := m.leasePool()
	if pool == nil {
		return TransientCommandBuffer{}
	}
	cb := m.device.AllocateCommandBuffer(pool.handle)
	if !cb.IsValid() {
		m.returnPool(pool)
		return TransientCommandBuffer{}
	}
	if !cb.Begin(gpu.CommandBufferUsageOneTimeSubmit) {
		m.device.FreeCommandBuffers(pool.handle, cb)
		m.returnPool(pool)
		return TransientCommandBuffer{}
	}
	return TransientCommandBuffer{CommandBuffer: cb, pool: pool}
}

/**
 * @brief Ends recording and queues the buffer for the next SubmitCommandBuffers. The resources
 * are destroyed after the buffer has executed.
 * @return false if recording could not be ended; the buffer and resources are then destroyed immediately.
 */
func (m *CommandBufferManager) ReleaseCommandBuffer(cb TransientCommandBuffer, resources ...TransientResources) bool {
	core.Assert(cb.IsValid(), "releasing an invalid command buffer")
	var merged TransientResources
	for _, r := range resources {
		merged.Buffers = append(merged.Buffers, r.Buffers...)
		merged.Images = append(merged.Images, r.Images...)
		merged.AccelerationStructures = append(merged.AccelerationStructures, r.AccelerationStructures...)
	}

	ok := cb.End()
	if !ok {
		m.device.FreeCommandBuffers(cb.pool.handle, cb.CommandBuffer)
	}
	m.returnPool(cb.pool)
	if !ok {
		m.destroyResources(&merged)
		return false
	}

	m.executableMu.Lock()
	m.executable = append(m.executable, executableCommandBuffer{commandBuffer: cb, resources: merged})
	m.executableMu.Unlock()
	return true
}

// NumExecutable returns how many released buffers wait for submission.
func (m *CommandBufferManager) NumExecutable() int {
	m.executableMu.Lock()
	defer m.executableMu.Unlock()
	return len(m.executable)
}

// NumPending returns how many submitted batches have not been retired yet.
func (m *CommandBufferManager) NumPending() int {
	return len(m.pending)
}

/**
 * @brief Submits every released command buffer in a single fenced submission. Render thread only.
 * @return true if there was nothing to submit or the submission succeeded.
 */
func (m *CommandBufferManager) SubmitCommandBuffers(queue gpu.QueueHandle) bool {
	m.executableMu.Lock()
	executable := m.executable
	m.executable = nil
	m.executableMu.Unlock()

	if len(executable) == 0 {
		return true
	}

	fence := m.device.CreateFence(false)
	if !fence.IsValid() {
		m.requeue(executable)
		return false
	}
	handles := make([]gpu.CommandBufferHandle, len(executable))
	for i, e := range executable {
		handles[i] = e.commandBuffer.Handle
	}
	if !m.device.Submit(queue, []gpu.SubmitInfo{{CommandBuffers: handles}}, fence) {
		m.device.DestroyFence(&fence)
		m.requeue(executable)
		return false
	}
	m.pending = append(m.pending, commandBatch{fence: fence, commandBuffers: executable})
	return true
}

// requeue puts buffers back in front of anything released in the meantime.
func (m *CommandBufferManager) requeue(executable []executableCommandBuffer) {
	m.executableMu.Lock()
	m.executable = append(executable, m.executable...)
	m.executableMu.Unlock()
}

/**
 * @brief Retires every pending batch whose fence has signaled. With wait set, blocks on each
 * fence first. Render thread only.
 */
func (m *CommandBufferManager) Cleanup(wait bool) {
	kept := m.pending[:0]
	for _, batch := range m.pending {
		if wait {
			m.device.WaitForFence(batch.fence, gpu.FenceTimeoutInfinite)
		}
		if !m.device.IsFenceSignaled(batch.fence) {
			kept = append(kept, batch)
			continue
		}
		m.retire(batch)
	}
	clear(m.pending[len(kept):])
	m.pending = kept
}

func (m *CommandBufferManager) retire(batch commandBatch) {
	for _, e := range batch.commandBuffers {
		pool := e.commandBuffer.pool
		pool.mu.Lock()
		m.device.FreeCommandBuffers(pool.handle, e.commandBuffer.CommandBuffer)
		pool.mu.Unlock()
		m.destroyResources(&e.resources)
	}
	m.device.DestroyFence(&batch.fence)
}

func (m *CommandBufferManager) destroyResources(r *TransientResources) {
	for i := range r.Buffers {
		m.device.DestroyBuffer(&r.Buffers[i])
	}
	for i := range r.Images {
		m.device.DestroyImage(&r.Images[i])
	}
	for i := range r.AccelerationStructures {
		m.device.DestroyAccelerationStructure(&r.AccelerationStructures[i])
	}
}

// ProceedToNextFrame retires the batches that have completed without blocking.
func (m *CommandBufferManager) ProceedToNextFrame() {
	m.Cleanup(false)
}

/**
 * @brief Destroys all pools. Batches still in flight are reported and dropped, so the caller
 * must wait for the device to go idle first.
 */
func (m *CommandBufferManager) Destroy() {
	m.Cleanup(false)
	if n := len(m.pending); n > 0 {
		core.LogWarn("destroying command buffer manager with %d batches still pending", n)
		for _, batch := range m.pending {
			for _, e := range batch.commandBuffers {
				m.destroyResources(&e.resources)
			}
			m.device.DestroyFence(&batch.fence)
		}
		m.pending = nil
	}

	m.executableMu.Lock()
	if n := len(m.executable); n > 0 {
		core.LogWarn("destroying command buffer manager with %d unsubmitted command buffers", n)
		for _, e := range m.executable {
			m.destroyResources(&e.resources)
		}
		m.executable = nil
	}
	m.executableMu.Unlock()

	m.poolsMu.Lock()
	defer m.poolsMu.Unlock()
	for _, pool := range m.pools {
		pool.mu.Lock()
		m.device.DestroyCommandPool(&pool.handle)
		pool.mu.Unlock()
	}
	m.pools = nil
	m.idlePools = nil
}
