package headless

import (
	"testing"

	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

func recordCopy(t *testing.T, d *Driver, src, dst gpu.Buffer, e gpu.EventHandle) (gpu.CommandPoolHandle, gpu.CommandBufferHandle) {
	t.Helper()
	pool, r := d.CreateCommandPool(gpu.CommandPoolCreateInfo{})
	if r != gpu.Success {
		t.Fatalf("CreateCommandPool: %s", r)
	}
	cbs, r := d.AllocateCommandBuffers(pool, 1)
	if r != gpu.Success {
		t.Fatalf("AllocateCommandBuffers: %s", r)
	}
	d.BeginCommandBuffer(cbs[0], gpu.CommandBufferUsageOneTimeSubmit)
	d.CmdCopyBuffer(cbs[0], src.Handle, dst.Handle, []gpu.BufferCopy{{Size: src.Size}})
	d.CmdSetEvent(cbs[0], e, gpu.PipelineStageTransfer)
	d.EndCommandBuffer(cbs[0])
	return pool, cbs[0]
}

func TestManualCompletion(t *testing.T) {
	d := New(WithManualCompletion())
	src, _ := d.CreateBuffer(gpu.BufferCreateInfo{Size: 4, Memory: gpu.MemoryUsageCPUOnly, Map: true})
	dst, _ := d.CreateBuffer(gpu.BufferCreateInfo{Size: 4})
	copy(src.Mapped, []byte{1, 2, 3, 4})
	e, _ := d.CreateEvent()
	_, cb := recordCopy(t, d, src, dst, e)

	f, _ := d.CreateFence(false)
	if r := d.QueueSubmit(d.GraphicsQueue(), []gpu.SubmitInfo{{CommandBuffers: []gpu.CommandBufferHandle{cb}}}, f); r != gpu.Success {
		t.Fatalf("QueueSubmit: %s", r)
	}
	if got := d.FenceStatus(f); got != gpu.NotReady {
		t.Fatalf("fence status before completion = %s", got)
	}
	if got := d.EventStatus(e); got != gpu.EventReset {
		t.Fatalf("event status before completion = %s", got)
	}
	if data := d.BufferData(dst.Handle); data[0] != 0 {
		t.Fatalf("copy executed before completion")
	}

	d.Complete()
	if got := d.FenceStatus(f); got != gpu.Success {
		t.Fatalf("fence status after completion = %s", got)
	}
	if got := d.EventStatus(e); got != gpu.EventSet {
		t.Fatalf("event status after completion = %s", got)
	}
	if data := d.BufferData(dst.Handle); string(data) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("copied data = %v", data)
	}
}

func TestWaitForFenceCompletesPendingWork(t *testing.T) {
	d := New(WithManualCompletion())
	src, _ := d.CreateBuffer(gpu.BufferCreateInfo{Size: 4, Memory: gpu.MemoryUsageCPUOnly, Map: true})
	dst, _ := d.CreateBuffer(gpu.BufferCreateInfo{Size: 4})
	e, _ := d.CreateEvent()
	_, cb := recordCopy(t, d, src, dst, e)
	f, _ := d.CreateFence(false)
	d.QueueSubmit(d.GraphicsQueue(), []gpu.SubmitInfo{{CommandBuffers: []gpu.CommandBufferHandle{cb}}}, f)

	if r := d.WaitForFence(f, 0); r != gpu.Success {
		t.Fatalf("WaitForFence = %s", r)
	}
	if d.PendingSubmissions() != 0 {
		t.Fatalf("pending submissions left after wait")
	}
}

func TestFailNextAndDoubleDestroy(t *testing.T) {
	d := New()
	d.FailNext("CreateBuffer", gpu.ErrorOutOfDeviceMemory)
	if _, r := d.CreateBuffer(gpu.BufferCreateInfo{Size: 16}); r != gpu.ErrorOutOfDeviceMemory {
		t.Fatalf("first CreateBuffer = %s", r)
	}
	b, r := d.CreateBuffer(gpu.BufferCreateInfo{Size: 16})
	if r != gpu.Success {
		t.Fatalf("second CreateBuffer = %s", r)
	}
	if d.Live(KindBuffer) != 1 {
		t.Fatalf("live buffers = %d", d.Live(KindBuffer))
	}
	d.DestroyBuffer(b)
	d.DestroyBuffer(b)
	if got := d.Stats().DoubleDestroyed; got != 1 {
		t.Fatalf("double destroyed = %d", got)
	}
}

func TestShaderGroupHandles(t *testing.T) {
	d := New()
	p, _ := d.CreateRayTracingPipeline(gpu.RayTracingPipelineCreateInfo{Groups: make([]gpu.ShaderGroup, 3), MaxRecursionDepth: 1})
	data, r := d.ShaderGroupHandles(p, 0, 3)
	if r != gpu.Success {
		t.Fatalf("ShaderGroupHandles = %s", r)
	}
	size := int(d.RayTracingProperties().ShaderGroupHandleSize)
	for g := 0; g < 3; g++ {
		if data[g*size] != byte(g+1) {
			t.Errorf("group %d handle starts with %d", g, data[g*size])
		}
	}
	if _, r := d.ShaderGroupHandles(p, 2, 2); r == gpu.Success {
		t.Errorf("out of range group query succeeded")
	}
}
