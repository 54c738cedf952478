package systems

import (
	"sync"

	"github.com/spaghettifunk/quartz/engine/containers"
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/scene"
)

/** @brief GPU resources of one geometry node. Rebuilt wholesale whenever the node changes. */
type Geometry struct {
	Attributes  gpu.Buffer
	Indices     gpu.Buffer
	BLAS        gpu.AccelerationStructure
	BLASHandle  uint64
	NumVertices uint32
	NumIndices  uint32

	AttributesDescriptor DescriptorHandle
	IndicesDescriptor    DescriptorHandle
}

func (g Geometry) IsValid() bool {
	return g.BLAS.IsValid() || g.Attributes.IsValid() || g.Indices.IsValid()
}

/** @brief A sampled texture image and its bindless slot. */
type Texture struct {
	Image      gpu.Image
	Descriptor DescriptorHandle
}

func (t Texture) IsValid() bool {
	return t.Image.IsValid()
}

/** @brief The top level acceleration structure and the number of instances it was built with. */
type SceneTLAS struct {
	gpu.AccelerationStructure
	InstanceCount uint32
}

/**
 * @brief Maps scene node identities to GPU resources and their shader visible indices.
 * Mutators take the write lock and may be called from jobs; the renderables/emissives lists
 * are owned by the render thread.
 */
type SceneManager struct {
	device         *gpu.Device
	descriptors    *DescriptorManager
	framesInFlight int

	mu        sync.RWMutex
	geometry  *containers.SceneResourceSet[core.NodeID, Geometry]
	materials *containers.SceneResourceSet[core.NodeID, gpu.Material]
	textures  *containers.SceneResourceSet[core.NodeID, Texture]
	emitters  []gpu.Emitter

	tlas            containers.ManagedResource[SceneTLAS]
	instanceBuffer  containers.ManagedResource[gpu.Buffer]
	materialBuffer  containers.ManagedResource[gpu.Buffer]
	emitterBuffer   containers.ManagedResource[gpu.Buffer]
	retiredGeometry containers.ManagedResource[Geometry]
	retiredTextures containers.ManagedResource[Texture]

	// Render thread only.
	renderables *containers.SceneResourceSet[core.NodeID, *scene.Entity]
	emissives   *containers.SceneResourceSet[core.NodeID, *scene.Entity]
}

func NewSceneManager(device *gpu.Device, descriptors *DescriptorManager, framesInFlight int) *SceneManager {
	core.Assert(framesInFlight > 0, "frames in flight must be positive, got %d", framesInFlight)
	return &SceneManager{
		device:         device,
		descriptors:    descriptors,
		framesInFlight: framesInFlight,
		geometry:       containers.NewSceneResourceSet[core.NodeID, Geometry](),
		materials:      containers.NewSceneResourceSet[core.NodeID, gpu.Material](),
		textures:       containers.NewSceneResourceSet[core.NodeID, Texture](),
		renderables:    containers.NewSceneResourceSet[core.NodeID, *scene.Entity](),
		emissives:      containers.NewSceneResourceSet[core.NodeID, *scene.Entity](),
	}
}

/**
 * @brief Stores the geometry of a node. New nodes get attribute and index descriptors, updated
 * nodes keep theirs and retire the previous buffers and BLAS.
 * @return The geometry index, equal to the descriptor slot of its buffers.
 */
func (sm *SceneManager) AddOrUpdateGeometry(id core.NodeID, geometry Geometry) uint32 {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if previous, index := sm.geometry.LookupResource(id); index != containers.NotFound {
		geometry.AttributesDescriptor = previous.AttributesDescriptor
		geometry.IndicesDescriptor = previous.IndicesDescriptor
	} else {
		geometry.AttributesDescriptor = sm.descriptors.AllocateDescriptor(ResourceClassAttributeBuffer)
		geometry.IndicesDescriptor = sm.descriptors.AllocateDescriptor(ResourceClassIndexBuffer)
	}
	sm.descriptors.UpdateBufferDescriptor(geometry.AttributesDescriptor, geometry.Attributes)
	sm.descriptors.UpdateBufferDescriptor(geometry.IndicesDescriptor, geometry.Indices)

	index, previous, updated := sm.geometry.AddOrUpdateResource(id, geometry)
	if updated {
		sm.retiredGeometry.Retire(previous, sm.framesInFlight)
	}
	return index
}

func (sm *SceneManager) AddOrUpdateMaterial(id core.NodeID, material gpu.Material) uint32 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	index, _, _ := sm.materials.AddOrUpdateResource(id, material)
	return index
}

// AddOrUpdateTexture stores a shader readable image, writing its bindless descriptor.
func (sm *SceneManager) AddOrUpdateTexture(id core.NodeID, image gpu.Image) uint32 {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	texture := Texture{Image: image}
	if previous, index := sm.textures.LookupResource(id); index != containers.NotFound {
		texture.Descriptor = previous.Descriptor
	} else {
		texture.Descriptor = sm.descriptors.AllocateDescriptor(ResourceClassTexture)
	}
	sm.descriptors.UpdateImageDescriptor(texture.Descriptor, image)

	index, previous, updated := sm.textures.AddOrUpdateResource(id, texture)
	if updated {
		sm.retiredTextures.Retire(previous, sm.framesInFlight)
	}
	return index
}

func (sm *SceneManager) UpdateEmitters(emitters []gpu.Emitter) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.emitters = emitters
}

func (sm *SceneManager) UpdateSceneTLAS(tlas SceneTLAS) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.tlas.Update(tlas, sm.framesInFlight)
}

// ClearInstances retires the TLAS and the instance buffer once nothing is left to trace.
func (sm *SceneManager) ClearInstances() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.tlas.Update(SceneTLAS{}, sm.framesInFlight)
	sm.instanceBuffer.Update(gpu.Buffer{}, sm.framesInFlight)
}

func (sm *SceneManager) UpdateInstanceBuffer(buffer gpu.Buffer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.instanceBuffer.Update(buffer, sm.framesInFlight)
}

func (sm *SceneManager) UpdateMaterialBuffer(buffer gpu.Buffer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.materialBuffer.Update(buffer, sm.framesInFlight)
}

func (sm *SceneManager) UpdateEmitterBuffer(buffer gpu.Buffer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.emitterBuffer.Update(buffer, sm.framesInFlight)
}

func (sm *SceneManager) LookupGeometry(id core.NodeID) (Geometry, uint32) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.geometry.LookupResource(id)
}

func (sm *SceneManager) LookupGeometryIndex(id core.NodeID) uint32 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.geometry.LookupIndex(id)
}

func (sm *SceneManager) LookupMaterial(id core.NodeID) (gpu.Material, uint32) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.materials.LookupResource(id)
}

func (sm *SceneManager) LookupMaterialIndex(id core.NodeID) uint32 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.materials.LookupIndex(id)
}

// LookupTextureIndex returns gpu.InvalidIndex for the null node and unknown textures.
func (sm *SceneManager) LookupTextureIndex(id core.NodeID) uint32 {
	if id.IsNull() {
		return gpu.InvalidIndex
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.textures.LookupIndex(id)
}

func (sm *SceneManager) Materials() []gpu.Material {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.materials.Resources()
}

func (sm *SceneManager) Geometry() []Geometry {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.geometry.Resources()
}

func (sm *SceneManager) Emitters() []gpu.Emitter {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return append([]gpu.Emitter(nil), sm.emitters...)
}

func (sm *SceneManager) NumMaterials() uint32 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return uint32(sm.materials.Size())
}

func (sm *SceneManager) NumGeometry() uint32 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return uint32(sm.geometry.Size())
}

func (sm *SceneManager) NumTextures() uint32 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return uint32(sm.textures.Size())
}

func (sm *SceneManager) NumEmitters() uint32 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return uint32(len(sm.emitters))
}

func (sm *SceneManager) SceneTLAS() SceneTLAS {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.tlas.Resource
}

func (sm *SceneManager) InstanceBuffer() gpu.Buffer {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.instanceBuffer.Resource
}

func (sm *SceneManager) MaterialBuffer() gpu.Buffer {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.materialBuffer.Resource
}

func (sm *SceneManager) EmitterBuffer() gpu.Buffer {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.emitterBuffer.Resource
}

/**
 * @brief Rebuilds the renderable and emissive lists from the enabled entities of the scene,
 * in scene order. Render thread only.
 */
func (sm *SceneManager) GatherEntities(s *scene.Scene) {
	sm.renderables.Clear()
	sm.emissives.Clear()
	for _, e := range s.Entities() {
		if e.IsRenderable() {
			sm.renderables.AddResource(e.ID, e)
		}
		if s.IsEmissive(e) {
			sm.emissives.AddResource(e.ID, e)
		}
	}
}

func (sm *SceneManager) Renderables() []*scene.Entity {
	return sm.renderables.Resources()
}

func (sm *SceneManager) Emissives() []*scene.Entity {
	return sm.emissives.Resources()
}

// LookupRenderableIndex is the instance index of the entity in the TLAS.
func (sm *SceneManager) LookupRenderableIndex(id core.NodeID) uint32 {
	return sm.renderables.LookupIndex(id)
}

func (sm *SceneManager) LookupEmissiveIndex(id core.NodeID) uint32 {
	return sm.emissives.LookupIndex(id)
}

// IsReadyToRender reports whether every resource bound by the ray tracing pass exists.
func (sm *SceneManager) IsReadyToRender() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.tlas.IsValid() && sm.instanceBuffer.IsValid() && sm.materialBuffer.IsValid()
}

// UpdateRetiredResources counts down one frame for every retired resource. Render thread only.
func (sm *SceneManager) UpdateRetiredResources() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.tlas.UpdateRetiredTTL()
	sm.instanceBuffer.UpdateRetiredTTL()
	sm.materialBuffer.UpdateRetiredTTL()
	sm.emitterBuffer.UpdateRetiredTTL()
	sm.retiredGeometry.UpdateRetiredTTL()
	sm.retiredTextures.UpdateRetiredTTL()
}

// DestroyExpiredResources destroys resources no frame in flight can reference anymore.
func (sm *SceneManager) DestroyExpiredResources() {
	sm.mu.Lock()
	expiredTLAS := sm.tlas.TakeExpired()
	expiredBuffers := sm.instanceBuffer.TakeExpired()
	expiredBuffers = append(expiredBuffers, sm.materialBuffer.TakeExpired()...)
	expiredBuffers = append(expiredBuffers, sm.emitterBuffer.TakeExpired()...)
	expiredGeometry := sm.retiredGeometry.TakeExpired()
	expiredTextures := sm.retiredTextures.TakeExpired()
	sm.mu.Unlock()

	for i := range expiredTLAS {
		sm.device.DestroyAccelerationStructure(&expiredTLAS[i].AccelerationStructure)
	}
	for i := range expiredBuffers {
		sm.device.DestroyBuffer(&expiredBuffers[i])
	}
	for i := range expiredGeometry {
		sm.destroyGeometry(&expiredGeometry[i])
	}
	for i := range expiredTextures {
		sm.device.DestroyImage(&expiredTextures[i].Image)
	}
}

func (sm *SceneManager) destroyGeometry(g *Geometry) {
	sm.device.DestroyAccelerationStructure(&g.BLAS)
	sm.device.DestroyBuffer(&g.Attributes)
	sm.device.DestroyBuffer(&g.Indices)
}

// DestroyResources destroys every current and retired resource. The device must be idle.
func (sm *SceneManager) DestroyResources() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	destroyManagedAS(sm.device, &sm.tlas)
	for _, m := range []*containers.ManagedResource[gpu.Buffer]{&sm.instanceBuffer, &sm.materialBuffer, &sm.emitterBuffer} {
		buffers := append(m.Retired(), m.Resource)
		for i := range buffers {
			sm.device.DestroyBuffer(&buffers[i])
		}
		m.Reset()
	}
	geometry := append(sm.retiredGeometry.Retired(), sm.geometry.TakeResources()...)
	for i := range geometry {
		sm.destroyGeometry(&geometry[i])
	}
	sm.retiredGeometry.Reset()
	textures := append(sm.retiredTextures.Retired(), sm.textures.TakeResources()...)
	for i := range textures {
		sm.device.DestroyImage(&textures[i].Image)
	}
	sm.retiredTextures.Reset()
	sm.materials.Clear()
	sm.emitters = nil
	sm.renderables.Clear()
	sm.emissives.Clear()
}

func destroyManagedAS(device *gpu.Device, m *containers.ManagedResource[SceneTLAS]) {
	all := append(m.Retired(), m.Resource)
	for i := range all {
		device.DestroyAccelerationStructure(&all[i].AccelerationStructure)
	}
	m.Reset()
}
