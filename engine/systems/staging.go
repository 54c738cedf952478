package systems

import (
	"sync"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

/** @brief A mapped host buffer for uploads. Event is set by the GPU once the copy out of it is done. */
type StagingBuffer struct {
	Buffer gpu.Buffer
	Event  gpu.EventHandle
}

func (s StagingBuffer) IsValid() bool {
	return s.Buffer.IsValid() && s.Event.IsValid()
}

// Data is the mapped memory, valid until the buffer is released.
func (s StagingBuffer) Data() []byte {
	return s.Buffer.Mapped
}

/**
 * @brief Creates staging buffers for worker jobs and destroys them once the GPU signals,
 * through the buffer's event, that it is done reading.
 */
type StagingResourceManager struct {
	device  *gpu.Device
	mu      sync.Mutex
	pending []StagingBuffer
}

func NewStagingResourceManager(device *gpu.Device) *StagingResourceManager {
	return &StagingResourceManager{device: device}
}

/**
 * @brief Creates a mapped transfer source buffer of the given size.
 * @return The zero value if any part could not be created.
 */
func (m *StagingResourceManager) AcquireStagingBuffer(size uint64) StagingBuffer {
	buffer := m.device.CreateStagingBuffer(size)
	if !buffer.IsValid() {
		return StagingBuffer{}
	}
	event := m.device.CreateEvent()
	if !event.IsValid() {
		m.device.DestroyBuffer(&buffer)
		return StagingBuffer{}
	}
	if !m.device.MapBuffer(&buffer) {
		m.device.DestroyEvent(&event)
		m.device.DestroyBuffer(&buffer)
		return StagingBuffer{}
	}
	return StagingBuffer{Buffer: buffer, Event: event}
}

// ReleaseStagingBuffer unmaps the buffer and records the event that frees it after cb's copies.
func (m *StagingResourceManager) ReleaseStagingBuffer(cb TransientCommandBuffer, staging StagingBuffer) {
	m.RecordRelease(cb, staging)
	m.TrackReleased(staging)
}

// RecordRelease unmaps the buffer and records the event that is set once cb's copies have run.
func (m *StagingResourceManager) RecordRelease(cb TransientCommandBuffer, staging StagingBuffer) {
	core.Assert(staging.IsValid(), "releasing an invalid staging buffer")
	m.device.UnmapBuffer(&staging.Buffer)
	cb.SetEvent(staging.Event, gpu.PipelineStageTransfer)
}

/**
 * @brief Frees the buffer once its event is set. Only for buffers whose command buffer was
 * queued for submission, otherwise the event never signals.
 */
func (m *StagingResourceManager) TrackReleased(staging StagingBuffer) {
	m.mu.Lock()
	m.pending = append(m.pending, staging)
	m.mu.Unlock()
}

// DiscardStagingBuffer destroys a buffer that was never recorded into a command buffer.
func (m *StagingResourceManager) DiscardStagingBuffer(staging *StagingBuffer) {
	m.destroy(staging)
}

// NumPending returns how many released buffers wait for their event.
func (m *StagingResourceManager) NumPending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// ProceedToNextFrame destroys the buffers the GPU has finished with.
func (m *StagingResourceManager) ProceedToNextFrame() {
	var done []StagingBuffer
	m.mu.Lock()
	kept := m.pending[:0]
	for _, s := range m.pending {
		if m.device.IsEventSet(s.Event) {
			done = append(done, s)
		} else {
			kept = append(kept, s)
		}
	}
	clear(m.pending[len(kept):])
	m.pending = kept
	m.mu.Unlock()

	for i := range done {
		m.destroy(&done[i])
	}
}

func (m *StagingResourceManager) destroy(s *StagingBuffer) {
	m.device.DestroyEvent(&s.Event)
	m.device.DestroyBuffer(&s.Buffer)
}

// Destroy reclaims completed buffers and reports the rest, which are destroyed regardless.
func (m *StagingResourceManager) Destroy() {
	m.ProceedToNextFrame()
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.pending); n > 0 {
		core.LogWarn("destroying staging resource manager with %d buffers still in use", n)
		for i := range m.pending {
			m.destroy(&m.pending[i])
		}
		m.pending = nil
	}
}
