package systems

import (
	"sync"
	"testing"

	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu/headless"
)

func TestTransientResourcesOutliveTheirBatch(t *testing.T) {
	device, driver := newTestDevice(t, headless.WithManualCompletion())
	m := NewCommandBufferManager(device)
	defer m.Destroy()

	scratch := device.CreateBuffer(gpu.BufferCreateInfo{Size: 128, Usage: gpu.BufferUsageRayTracing, Memory: gpu.MemoryUsageGPUOnly})
	cb := m.AcquireCommandBuffer()
	if !cb.IsValid() {
		t.Fatal("acquire failed")
	}
	if !m.ReleaseCommandBuffer(cb, TransientResources{Buffers: []gpu.Buffer{scratch}}) {
		t.Fatal("release failed")
	}
	if !m.SubmitCommandBuffers(device.GraphicsQueue()) {
		t.Fatal("submit failed")
	}
	if m.NumExecutable() != 0 || m.NumPending() != 1 {
		t.Fatalf("executable %d pending %d", m.NumExecutable(), m.NumPending())
	}

	// Polling before the fence signals must not free anything.
	m.ProceedToNextFrame()
	if !driver.IsLive(headless.KindBuffer, uint64(scratch.Handle)) || m.NumPending() != 1 {
		t.Fatal("batch retired before its fence signaled")
	}

	driver.Complete()
	m.ProceedToNextFrame()
	if m.NumPending() != 0 {
		t.Fatal("completed batch not retired")
	}
	if driver.IsLive(headless.KindBuffer, uint64(scratch.Handle)) {
		t.Error("transient buffer not destroyed")
	}
	if driver.Live(headless.KindCommandBuffer) != 0 || driver.Live(headless.KindFence) != 0 {
		t.Errorf("command buffers %d fences %d still live", driver.Live(headless.KindCommandBuffer), driver.Live(headless.KindFence))
	}
}

func TestSubmitWithNothingToDo(t *testing.T) {
	device, driver := newTestDevice(t)
	m := NewCommandBufferManager(device)
	defer m.Destroy()
	if !m.SubmitCommandBuffers(device.GraphicsQueue()) {
		t.Fatal("empty submit must succeed")
	}
	if driver.Stats().Submissions != 0 || driver.Live(headless.KindFence) != 0 {
		t.Fatal("empty submit reached the queue")
	}
}

func TestBeginFailureReturnsSentinel(t *testing.T) {
	device, driver := newTestDevice(t)
	m := NewCommandBufferManager(device)
	defer m.Destroy()

	driver.FailNext("BeginCommandBuffer", gpu.ErrorOutOfDeviceMemory)
	if cb := m.AcquireCommandBuffer(); cb.IsValid() {
		t.Fatal("expected the sentinel")
	}
	if driver.Live(headless.KindCommandBuffer) != 0 {
		t.Fatal("failed command buffer not freed")
	}
	// The pool lease was returned and is reused.
	cb := m.AcquireCommandBuffer()
	if !cb.IsValid() || driver.Live(headless.KindCommandPool) != 1 {
		t.Fatalf("pools = %d", driver.Live(headless.KindCommandPool))
	}
	m.ReleaseCommandBuffer(cb)
	m.SubmitCommandBuffers(device.GraphicsQueue())
	m.Cleanup(true)
}

func TestSubmitFailureKeepsBuffers(t *testing.T) {
	device, driver := newTestDevice(t)
	m := NewCommandBufferManager(device)
	defer m.Destroy()

	m.ReleaseCommandBuffer(m.AcquireCommandBuffer())
	driver.FailNext("QueueSubmit", gpu.ErrorDeviceLost)
	if m.SubmitCommandBuffers(device.GraphicsQueue()) {
		t.Fatal("expected failure")
	}
	if driver.Live(headless.KindFence) != 0 {
		t.Fatal("fence of failed submission leaked")
	}
	if m.NumExecutable() != 1 || m.NumPending() != 0 {
		t.Fatalf("executable %d pending %d", m.NumExecutable(), m.NumPending())
	}
	if !m.SubmitCommandBuffers(device.GraphicsQueue()) {
		t.Fatal("retry failed")
	}
	m.Cleanup(true)
	if m.NumPending() != 0 {
		t.Fatal("Cleanup(true) left batches behind")
	}
}

func TestConcurrentAcquireNeverSharesPools(t *testing.T) {
	device, driver := newTestDevice(t)
	m := NewCommandBufferManager(device)

	const goroutines = 8
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 16; i++ {
				cb := m.AcquireCommandBuffer()
				if !cb.IsValid() {
					t.Error("acquire failed")
					return
				}
				// The lease holds the pool lock; a second holder would deadlock here.
				if cb.pool.mu.TryLock() {
					t.Error("pool not locked during recording")
					cb.pool.mu.Unlock()
				}
				m.ReleaseCommandBuffer(cb)
			}
		}()
	}
	wg.Wait()

	if n := driver.Live(headless.KindCommandPool); n == 0 || n > goroutines {
		t.Fatalf("created %d pools", n)
	}
	if !m.SubmitCommandBuffers(device.GraphicsQueue()) {
		t.Fatal("submit failed")
	}
	if driver.Stats().CommandBuffers != goroutines*16 {
		t.Fatalf("submitted %d command buffers", driver.Stats().CommandBuffers)
	}
	m.Cleanup(false)
	m.Destroy()
	if driver.Live(headless.KindCommandPool) != 0 || driver.Live(headless.KindCommandBuffer) != 0 {
		t.Fatal("Destroy leaked pools")
	}
}

func TestDestroyWithPendingBatches(t *testing.T) {
	device, driver := newTestDevice(t, headless.WithManualCompletion())
	m := NewCommandBufferManager(device)
	scratch := device.CreateBuffer(gpu.BufferCreateInfo{Size: 16, Usage: gpu.BufferUsageStorage, Memory: gpu.MemoryUsageGPUOnly})
	m.ReleaseCommandBuffer(m.AcquireCommandBuffer(), TransientResources{Buffers: []gpu.Buffer{scratch}})
	m.SubmitCommandBuffers(device.GraphicsQueue())

	m.Destroy()
	if driver.Live(headless.KindCommandPool) != 0 || driver.Live(headless.KindFence) != 0 || driver.Live(headless.KindBuffer) != 0 {
		t.Fatal("Destroy leaked objects")
	}
}
