package systems

import (
	"testing"

	"github.com/spaghettifunk/quartz/engine/containers"
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/math"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu/headless"
	"github.com/spaghettifunk/quartz/engine/scene"
)

const testFramesInFlight = 2

func newTestSceneManager(t *testing.T) (*SceneManager, *gpu.Device, *headless.Driver) {
	t.Helper()
	device, driver := newTestDevice(t)
	dm := NewDescriptorManager(device)
	for _, class := range []ResourceClass{ResourceClassAttributeBuffer, ResourceClassIndexBuffer, ResourceClassTexture} {
		if !dm.CreateDescriptorPool(class, 16) {
			t.Fatalf("creating %s pool", class)
		}
	}
	t.Cleanup(dm.Destroy)
	return NewSceneManager(device, dm, testFramesInFlight), device, driver
}

func createTestGeometry(t *testing.T, device *gpu.Device) Geometry {
	t.Helper()
	attributes := device.CreateBuffer(gpu.BufferCreateInfo{Size: 3 * 80, Usage: gpu.BufferUsageStorage, Memory: gpu.MemoryUsageGPUOnly})
	indices := device.CreateBuffer(gpu.BufferCreateInfo{Size: 3 * 4, Usage: gpu.BufferUsageStorage, Memory: gpu.MemoryUsageGPUOnly})
	blas := device.CreateAccelerationStructure(gpu.AccelerationStructureCreateInfo{
		Type: gpu.AccelerationStructureBottomLevel,
		Geometries: []gpu.GeometryTriangles{{
			VertexBuffer: attributes.Handle,
			VertexCount:  3,
			VertexStride: 80,
			VertexFormat: gpu.FormatR32G32B32SFloat,
			IndexBuffer:  indices.Handle,
			IndexCount:   3,
			IndexType:    gpu.IndexTypeUint32,
		}},
	})
	if !attributes.IsValid() || !indices.IsValid() || !blas.IsValid() {
		t.Fatal("creating geometry resources")
	}
	return Geometry{Attributes: attributes, Indices: indices, BLAS: blas, NumVertices: 3, NumIndices: 3}
}

func TestGeometryIndicesMatchDescriptorSlots(t *testing.T) {
	sm, device, driver := newTestSceneManager(t)
	defer sm.DestroyResources()

	a, b := core.NewNodeID(), core.NewNodeID()
	if got := sm.AddOrUpdateGeometry(a, createTestGeometry(t, device)); got != 0 {
		t.Fatalf("first index = %d", got)
	}
	if got := sm.AddOrUpdateGeometry(b, createTestGeometry(t, device)); got != 1 {
		t.Fatalf("second index = %d", got)
	}

	previous, _ := sm.LookupGeometry(a)
	replacement := createTestGeometry(t, device)
	if got := sm.AddOrUpdateGeometry(a, replacement); got != 0 {
		t.Fatalf("updated index = %d", got)
	}
	for _, id := range []core.NodeID{a, b} {
		g, index := sm.LookupGeometry(id)
		if g.AttributesDescriptor.Slot() != index || g.IndicesDescriptor.Slot() != index {
			t.Errorf("geometry %d has slots %d/%d", index, g.AttributesDescriptor.Slot(), g.IndicesDescriptor.Slot())
		}
	}
	set := sm.descriptors.DescriptorSet(ResourceClassAttributeBuffer)
	if w, ok := driver.DescriptorWrite(set, 0, 0); !ok || w.Buffers[0].Buffer != replacement.Attributes.Handle {
		t.Errorf("slot 0 not rewritten: %+v", w)
	}
	if sm.NumGeometry() != 2 {
		t.Fatalf("NumGeometry = %d", sm.NumGeometry())
	}
	if sm.LookupGeometryIndex(core.NewNodeID()) != containers.NotFound {
		t.Fatal("unknown geometry found")
	}

	// The replaced geometry survives until no frame in flight can use it.
	for i := 0; i < testFramesInFlight; i++ {
		sm.DestroyExpiredResources()
		if !driver.IsLive(headless.KindAccelerationStructure, uint64(previous.BLAS.Handle)) {
			t.Fatalf("previous BLAS destroyed after %d frames", i)
		}
		sm.UpdateRetiredResources()
	}
	sm.DestroyExpiredResources()
	if driver.IsLive(headless.KindAccelerationStructure, uint64(previous.BLAS.Handle)) ||
		driver.IsLive(headless.KindBuffer, uint64(previous.Attributes.Handle)) {
		t.Fatal("previous geometry not destroyed")
	}
}

func TestManagedBuffersRetireWithTTL(t *testing.T) {
	sm, device, driver := newTestSceneManager(t)
	defer sm.DestroyResources()

	newBuffer := func() gpu.Buffer {
		return device.CreateBuffer(gpu.BufferCreateInfo{Size: 64, Usage: gpu.BufferUsageStorage, Memory: gpu.MemoryUsageGPUOnly})
	}
	first := newBuffer()
	sm.UpdateMaterialBuffer(first)
	second := newBuffer()
	sm.UpdateMaterialBuffer(second)
	if sm.MaterialBuffer().Handle != second.Handle {
		t.Fatal("current material buffer not replaced")
	}

	sm.UpdateRetiredResources()
	sm.DestroyExpiredResources()
	if !driver.IsLive(headless.KindBuffer, uint64(first.Handle)) {
		t.Fatal("retired buffer destroyed too early")
	}
	sm.UpdateRetiredResources()
	sm.DestroyExpiredResources()
	if driver.IsLive(headless.KindBuffer, uint64(first.Handle)) {
		t.Fatal("retired buffer not destroyed")
	}
	if !driver.IsLive(headless.KindBuffer, uint64(second.Handle)) {
		t.Fatal("current buffer destroyed")
	}
}

func TestReadyToRender(t *testing.T) {
	sm, device, _ := newTestSceneManager(t)
	defer sm.DestroyResources()
	if sm.IsReadyToRender() {
		t.Fatal("empty scene manager is ready")
	}

	g := createTestGeometry(t, device)
	sm.AddOrUpdateGeometry(core.NewNodeID(), g)
	tlas := device.CreateAccelerationStructure(gpu.AccelerationStructureCreateInfo{Type: gpu.AccelerationStructureTopLevel, InstanceCount: 1})
	sm.UpdateSceneTLAS(SceneTLAS{AccelerationStructure: tlas, InstanceCount: 1})
	sm.UpdateInstanceBuffer(device.CreateBuffer(gpu.BufferCreateInfo{Size: 64, Usage: gpu.BufferUsageStorage, Memory: gpu.MemoryUsageGPUOnly}))
	if sm.IsReadyToRender() {
		t.Fatal("ready without a material buffer")
	}
	sm.UpdateMaterialBuffer(device.CreateBuffer(gpu.BufferCreateInfo{Size: 48, Usage: gpu.BufferUsageStorage, Memory: gpu.MemoryUsageGPUOnly}))
	if !sm.IsReadyToRender() {
		t.Fatal("not ready with TLAS, instances and materials")
	}
	if sm.SceneTLAS().InstanceCount != 1 {
		t.Fatalf("TLAS = %+v", sm.SceneTLAS())
	}
}

func TestDestroyResourcesLeavesNothing(t *testing.T) {
	sm, device, driver := newTestSceneManager(t)
	id := core.NewNodeID()
	sm.AddOrUpdateGeometry(id, createTestGeometry(t, device))
	sm.AddOrUpdateGeometry(id, createTestGeometry(t, device))
	sm.UpdateEmitterBuffer(device.CreateBuffer(gpu.BufferCreateInfo{Size: 48, Usage: gpu.BufferUsageStorage, Memory: gpu.MemoryUsageGPUOnly}))
	image := device.CreateImage(gpu.ImageCreateInfo{
		Type:   gpu.ImageType2D,
		Format: gpu.FormatR8G8B8A8Unorm,
		Extent: gpu.Extent3D{Width: 1, Height: 1},
		Usage:  gpu.ImageUsageSampled,
		Memory: gpu.MemoryUsageGPUOnly,
	})
	sm.AddOrUpdateTexture(core.NewNodeID(), image)
	sm.AddOrUpdateMaterial(core.NewNodeID(), gpu.NewMaterial())

	sm.DestroyResources()
	for _, kind := range []headless.Kind{headless.KindBuffer, headless.KindImage, headless.KindAccelerationStructure} {
		if n := driver.Live(kind); n != 0 {
			t.Errorf("%d %s left", n, kind)
		}
	}
	if sm.NumGeometry() != 0 || sm.NumMaterials() != 0 || sm.NumTextures() != 0 {
		t.Error("records survived DestroyResources")
	}
}

func TestGatherEntities(t *testing.T) {
	sm, _, _ := newTestSceneManager(t)
	s := scene.NewScene()

	emissive := scene.NewMaterial()
	emissive.Emission = math.NewVec3(1, 1, 1)
	plain := scene.NewMaterial()
	s.SetMaterial(emissive)
	s.SetMaterial(plain)
	geometry := &scene.Geometry{ID: core.NewNodeID()}
	s.SetGeometry(geometry)

	lamp := scene.NewEntity("lamp")
	lamp.Geometry, lamp.Material = geometry.ID, emissive.ID
	box := scene.NewEntity("box")
	box.Geometry, box.Material = geometry.ID, plain.ID
	hidden := scene.NewEntity("hidden")
	hidden.Geometry, hidden.Material = geometry.ID, plain.ID
	hidden.Enabled = false
	sun := scene.NewEntity("sun")
	sun.Light = scene.NewDistantLight(math.NewVec3(0, -1, 0))
	for _, e := range []*scene.Entity{lamp, box, hidden, sun} {
		if err := s.AddEntity(e); err != nil {
			t.Fatal(err)
		}
	}

	sm.GatherEntities(s)
	if got := sm.Renderables(); len(got) != 2 || got[0] != lamp || got[1] != box {
		t.Fatalf("renderables = %v", got)
	}
	if got := sm.Emissives(); len(got) != 2 || got[0] != lamp || got[1] != sun {
		t.Fatalf("emissives = %v", got)
	}
	if sm.LookupRenderableIndex(box.ID) != 1 || sm.LookupRenderableIndex(hidden.ID) != containers.NotFound {
		t.Fatal("renderable indices")
	}
	if sm.LookupEmissiveIndex(sun.ID) != 1 {
		t.Fatal("emissive indices")
	}
}
