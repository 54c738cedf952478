package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/systems"
)

/**
 * @brief Collects the staging buffers and transient resources of one job so that the job
 * either hands all of them to the command buffer it records, or releases them on failure.
 */
type uploadBatch struct {
	device   *gpu.Device
	commands *systems.CommandBufferManager
	staging  *systems.StagingResourceManager

	buffers []systems.StagingBuffer
	// Destroyed once the command buffer has executed.
	transient systems.TransientResources
}

func (r *Renderer) newUploadBatch() *uploadBatch {
	return &uploadBatch{
		device:   r.device,
		commands: r.commands,
		staging:  r.staging,
	}
}

// stage copies data into a new staging buffer.
func (b *uploadBatch) stage(data []byte) (systems.StagingBuffer, bool) {
	s := b.staging.AcquireStagingBuffer(uint64(len(data)))
	if !s.IsValid() {
		return systems.StagingBuffer{}, false
	}
	copy(s.Data(), data)
	b.buffers = append(b.buffers, s)
	return s, true
}

// discard destroys everything right away. Nothing may have been recorded yet.
func (b *uploadBatch) discard() {
	for i := range b.buffers {
		b.staging.DiscardStagingBuffer(&b.buffers[i])
	}
	b.buffers = nil
	for i := range b.transient.Buffers {
		b.device.DestroyBuffer(&b.transient.Buffers[i])
	}
	for i := range b.transient.Images {
		b.device.DestroyImage(&b.transient.Images[i])
	}
	for i := range b.transient.AccelerationStructures {
		b.device.DestroyAccelerationStructure(&b.transient.AccelerationStructures[i])
	}
	b.transient = systems.TransientResources{}
}

/**
 * @brief Hands the staging buffers and transient resources over to cb and queues it. If cb
 * cannot be queued everything is destroyed right away.
 */
func (b *uploadBatch) release(cb systems.TransientCommandBuffer) bool {
	for _, s := range b.buffers {
		b.staging.RecordRelease(cb, s)
	}
	ok := b.commands.ReleaseCommandBuffer(cb, b.transient)
	b.transient = systems.TransientResources{}
	for i := range b.buffers {
		if ok {
			b.staging.TrackReleased(b.buffers[i])
		} else {
			b.staging.DiscardStagingBuffer(&b.buffers[i])
		}
	}
	b.buffers = nil
	return ok
}

/**
 * @brief Uploads data into a new GPU only storage buffer readable by the ray tracing shaders.
 * @return The buffer, valid once the job's command buffers have executed.
 */
func (r *Renderer) uploadStorageBuffer(data []byte, what string) (gpu.Buffer, error) {
	if len(data) == 0 {
		return gpu.Buffer{}, errors.Wrapf(ErrEmptyUpload, "%s", what)
	}
	batch := r.newUploadBatch()
	staging, ok := batch.stage(data)
	if !ok {
		return gpu.Buffer{}, errors.Wrapf(ErrResourceCreation, "staging buffer for %s", what)
	}
	buffer := r.device.CreateBuffer(gpu.BufferCreateInfo{
		Size:   uint64(len(data)),
		Usage:  gpu.BufferUsageTransferDst | gpu.BufferUsageStorage,
		Memory: gpu.MemoryUsageGPUOnly,
	})
	if !buffer.IsValid() {
		batch.discard()
		return gpu.Buffer{}, errors.Wrapf(ErrResourceCreation, "%s buffer", what)
	}

	cb := r.commands.AcquireCommandBuffer()
	if !cb.IsValid() {
		batch.discard()
		r.device.DestroyBuffer(&buffer)
		return gpu.Buffer{}, errors.Wrapf(ErrCommandBuffer, "uploading %s", what)
	}
	cb.CopyBuffer(staging.Buffer.Handle, buffer.Handle, uint64(len(data)))
	cb.TransitionBuffer(buffer.Handle, gpu.BufferStateCopyDest, gpu.BufferStateShaderRead)
	if !batch.release(cb) {
		r.device.DestroyBuffer(&buffer)
		return gpu.Buffer{}, errors.Wrapf(ErrCommandBuffer, "uploading %s", what)
	}
	return buffer, nil
}
