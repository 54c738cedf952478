package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/quartz/engine/containers"
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/math"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/scene"
	"github.com/spaghettifunk/quartz/engine/systems"
)

// Jobs read the scene and the render thread lists while the frame loop waits for them.

func toAttributes(vertices []math.Vertex) []gpu.Attributes {
	attributes := make([]gpu.Attributes, len(vertices))
	for i, v := range vertices {
		attributes[i] = gpu.Attributes{
			Position:  v.Position.ToVec4(1).Array(),
			Normal:    v.Normal.ToVec4(0).Array(),
			Tangent:   v.Tangent.ToVec4(0).Array(),
			Bitangent: v.Bitangent.ToVec4(0).Array(),
			Texcoord:  [4]float32{v.Texcoord.X, v.Texcoord.Y, 0, 0},
		}
	}
	return attributes
}

/**
 * @brief Uploads the vertices and faces of a geometry node and builds its bottom level
 * acceleration structure. The scene manager gets the new record only once everything
 * has been recorded.
 */
func (r *Renderer) buildGeometry(id core.NodeID) error {
	source := r.scene.Geometry(id)
	if source == nil {
		return errors.Wrapf(scene.ErrNodeNotFound, "geometry %s", id)
	}
	if len(source.Vertices) == 0 || len(source.Faces) == 0 {
		return errors.Wrapf(ErrEmptyGeometry, "geometry %s", id)
	}

	attributeData := gpu.AsBytes(toAttributes(source.Vertices))
	indexData := gpu.AsBytes(source.Faces)

	batch := r.newUploadBatch()
	attributeStaging, ok1 := batch.stage(attributeData)
	indexStaging, ok2 := batch.stage(indexData)
	if !ok1 || !ok2 {
		batch.discard()
		return errors.Wrapf(ErrResourceCreation, "staging buffers for geometry %s", id)
	}

	geometry := systems.Geometry{
		NumVertices: uint32(len(source.Vertices)),
		NumIndices:  uint32(3 * len(source.Faces)),
	}
	fail := func(what string) error {
		batch.discard()
		r.destroyGeometry(&geometry)
		return errors.Wrapf(ErrResourceCreation, "%s for geometry %s", what, id)
	}

	geometry.Attributes = r.device.CreateBuffer(gpu.BufferCreateInfo{
		Size:   uint64(len(attributeData)),
		Usage:  gpu.BufferUsageTransferDst | gpu.BufferUsageStorage | gpu.BufferUsageRayTracing,
		Memory: gpu.MemoryUsageGPUOnly,
	})
	if !geometry.Attributes.IsValid() {
		return fail("attribute buffer")
	}
	geometry.Indices = r.device.CreateBuffer(gpu.BufferCreateInfo{
		Size:   uint64(len(indexData)),
		Usage:  gpu.BufferUsageTransferDst | gpu.BufferUsageStorage | gpu.BufferUsageRayTracing,
		Memory: gpu.MemoryUsageGPUOnly,
	})
	if !geometry.Indices.IsValid() {
		return fail("index buffer")
	}

	info := gpu.AccelerationStructureCreateInfo{
		Type:  gpu.AccelerationStructureBottomLevel,
		Flags: gpu.BuildAccelerationStructurePreferFastTrace,
		Geometries: []gpu.GeometryTriangles{{
			VertexBuffer: geometry.Attributes.Handle,
			VertexCount:  geometry.NumVertices,
			VertexStride: gpu.SizeOf[gpu.Attributes](),
			VertexFormat: gpu.FormatR32G32B32SFloat,
			IndexBuffer:  geometry.Indices.Handle,
			IndexCount:   geometry.NumIndices,
			IndexType:    gpu.IndexTypeUint32,
			Flags:        gpu.GeometryOpaque,
		}},
	}
	geometry.BLAS = r.device.CreateAccelerationStructure(info)
	if !geometry.BLAS.IsValid() {
		return fail("bottom level acceleration structure")
	}
	handle, ok := r.device.AccelerationStructureHandle(geometry.BLAS)
	if !ok {
		return fail("acceleration structure handle")
	}
	geometry.BLASHandle = handle

	scratch := r.device.CreateScratchBuffer(geometry.BLAS, gpu.ScratchBufferBuild)
	if !scratch.IsValid() {
		return fail("scratch buffer")
	}
	batch.transient.Buffers = append(batch.transient.Buffers, scratch)

	cb := r.commands.AcquireCommandBuffer()
	if !cb.IsValid() {
		batch.discard()
		r.destroyGeometry(&geometry)
		return errors.Wrapf(ErrCommandBuffer, "building geometry %s", id)
	}
	cb.CopyBuffer(attributeStaging.Buffer.Handle, geometry.Attributes.Handle, uint64(len(attributeData)))
	cb.CopyBuffer(indexStaging.Buffer.Handle, geometry.Indices.Handle, uint64(len(indexData)))
	cb.MemoryBarrier(gpu.MemoryStateCopyDest, gpu.MemoryStateAccelerationStructureBuildInput)
	cb.BuildAccelerationStructure(gpu.BuildAccelerationStructureInfo{
		Info:        info,
		Destination: geometry.BLAS.Handle,
		Scratch:     scratch.Handle,
	})
	cb.MemoryBarrier(gpu.MemoryStateAccelerationStructureWrite, gpu.MemoryStateAccelerationStructureRead)
	if !batch.release(cb) {
		r.destroyGeometry(&geometry)
		return errors.Wrapf(ErrCommandBuffer, "building geometry %s", id)
	}

	index := r.sceneManager.AddOrUpdateGeometry(id, geometry)
	core.LogDebug("built geometry %s at index %d: %d vertices, %d faces", id, index, geometry.NumVertices, len(source.Faces))
	return nil
}

func (r *Renderer) destroyGeometry(g *systems.Geometry) {
	r.device.DestroyAccelerationStructure(&g.BLAS)
	r.device.DestroyBuffer(&g.Attributes)
	r.device.DestroyBuffer(&g.Indices)
}

/**
 * @brief Builds the top level acceleration structure over every renderable with built
 * geometry. The custom index of an instance is its renderable index. An existing structure
 * with the same instance count is updated instead of rebuilt.
 */
func (r *Renderer) buildTLAS() error {
	renderables := r.sceneManager.Renderables()
	instances := make([]gpu.GeometryInstance, 0, len(renderables))
	for i, e := range renderables {
		geometry, index := r.sceneManager.LookupGeometry(e.Geometry)
		if index == containers.NotFound {
			core.LogWarn("entity %s references geometry %s which has not been built", e.Name, e.Geometry)
			continue
		}
		instances = append(instances, gpu.NewGeometryInstance(e.WorldTransform.Affine3x4(), uint32(i), 0xFF, geometry.BLASHandle))
	}
	if len(instances) == 0 {
		r.sceneManager.ClearInstances()
		return nil
	}

	batch := r.newUploadBatch()
	instanceBuffer := r.device.CreateHostBuffer(uint64(len(instances))*gpu.SizeOf[gpu.GeometryInstance](), gpu.BufferUsageRayTracing)
	if !instanceBuffer.IsValid() {
		return errors.Wrap(ErrResourceCreation, "TLAS instance buffer")
	}
	copy(instanceBuffer.Mapped, gpu.AsBytes(instances))
	batch.transient.Buffers = append(batch.transient.Buffers, instanceBuffer)

	info := gpu.AccelerationStructureCreateInfo{
		Type:          gpu.AccelerationStructureTopLevel,
		Flags:         gpu.BuildAccelerationStructurePreferFastTrace | gpu.BuildAccelerationStructureAllowUpdate,
		InstanceCount: uint32(len(instances)),
	}
	tlas := systems.SceneTLAS{
		AccelerationStructure: r.device.CreateAccelerationStructure(info),
		InstanceCount:         uint32(len(instances)),
	}
	if !tlas.IsValid() {
		batch.discard()
		return errors.Wrap(ErrResourceCreation, "top level acceleration structure")
	}

	previous := r.sceneManager.SceneTLAS()
	update := previous.IsValid() && previous.InstanceCount == tlas.InstanceCount
	scratchType := gpu.ScratchBufferBuild
	if update {
		scratchType = gpu.ScratchBufferUpdate
	}
	scratch := r.device.CreateScratchBuffer(tlas.AccelerationStructure, scratchType)
	if !scratch.IsValid() {
		batch.discard()
		r.device.DestroyAccelerationStructure(&tlas.AccelerationStructure)
		return errors.Wrap(ErrResourceCreation, "TLAS scratch buffer")
	}
	batch.transient.Buffers = append(batch.transient.Buffers, scratch)

	cb := r.commands.AcquireCommandBuffer()
	if !cb.IsValid() {
		batch.discard()
		r.device.DestroyAccelerationStructure(&tlas.AccelerationStructure)
		return errors.Wrap(ErrCommandBuffer, "building TLAS")
	}
	build := gpu.BuildAccelerationStructureInfo{
		Info:           info,
		InstanceBuffer: instanceBuffer.Handle,
		Update:         update,
		Destination:    tlas.Handle,
		Scratch:        scratch.Handle,
	}
	if update {
		build.Source = previous.Handle
	}
	cb.BuildAccelerationStructure(build)
	cb.MemoryBarrier(gpu.MemoryStateAccelerationStructureWrite, gpu.MemoryStateAccelerationStructureRead)
	if !batch.release(cb) {
		r.device.DestroyAccelerationStructure(&tlas.AccelerationStructure)
		return errors.Wrap(ErrCommandBuffer, "building TLAS")
	}

	r.sceneManager.UpdateSceneTLAS(tlas)
	core.LogDebug("built TLAS with %d instances (update: %t)", tlas.InstanceCount, update)
	return nil
}

// updateInstances uploads one instance record per renderable, in renderable order.
func (r *Renderer) updateInstances() error {
	renderables := r.sceneManager.Renderables()
	if len(renderables) == 0 {
		r.sceneManager.ClearInstances()
		return nil
	}
	instances := make([]gpu.EntityInstance, len(renderables))
	for i, e := range renderables {
		instances[i] = gpu.EntityInstance{
			MaterialIndex: r.sceneManager.LookupMaterialIndex(e.Material),
			GeometryIndex: r.sceneManager.LookupGeometryIndex(e.Geometry),
			Basis:         e.WorldTransform.NormalMatrix().Std430(),
		}
	}
	buffer, err := r.uploadStorageBuffer(gpu.AsBytes(instances), "instance")
	if err != nil {
		return err
	}
	r.sceneManager.UpdateInstanceBuffer(buffer)
	return nil
}

func (r *Renderer) gpuMaterial(m *scene.Material) gpu.Material {
	emission := m.Radiance()
	return gpu.Material{
		Albedo:           [3]float32{m.Albedo.X, m.Albedo.Y, m.Albedo.Z},
		Roughness:        m.Roughness,
		Emission:         [3]float32{emission.X, emission.Y, emission.Z},
		Metalness:        m.Metalness,
		AlbedoTexture:    r.sceneManager.LookupTextureIndex(m.AlbedoTexture),
		RoughnessTexture: r.sceneManager.LookupTextureIndex(m.RoughnessTexture),
		MetalnessTexture: r.sceneManager.LookupTextureIndex(m.MetalnessTexture),
		NormalTexture:    r.sceneManager.LookupTextureIndex(m.NormalTexture),
	}
}

// updateMaterials refreshes the given material records and uploads the whole table.
func (r *Renderer) updateMaterials(ids []core.NodeID) error {
	for _, id := range ids {
		m := r.scene.Material(id)
		if m == nil {
			core.LogWarn("material %s no longer exists, keeping its last record", id)
			continue
		}
		r.sceneManager.AddOrUpdateMaterial(id, r.gpuMaterial(m))
	}
	materials := r.sceneManager.Materials()
	if len(materials) == 0 {
		return nil
	}
	buffer, err := r.uploadStorageBuffer(gpu.AsBytes(materials), "material")
	if err != nil {
		return err
	}
	r.sceneManager.UpdateMaterialBuffer(buffer)
	return nil
}

func textureFormat(t *scene.Texture) gpu.Format {
	if t.SRGB {
		return gpu.FormatR8G8B8A8SRGB
	}
	return gpu.FormatR8G8B8A8Unorm
}

// uploadTexture copies the texels of a texture node into a new sampled image.
func (r *Renderer) uploadTexture(id core.NodeID) error {
	source := r.scene.Texture(id)
	if source == nil {
		return errors.Wrapf(scene.ErrNodeNotFound, "texture %s", id)
	}

	batch := r.newUploadBatch()
	staging, ok := batch.stage(source.Pixels)
	if !ok {
		return errors.Wrapf(ErrResourceCreation, "staging buffer for texture %s", id)
	}
	image := r.device.CreateImage(gpu.ImageCreateInfo{
		Type:   gpu.ImageType2D,
		Format: textureFormat(source),
		Extent: gpu.Extent3D{Width: source.Width, Height: source.Height, Depth: 1},
		Usage:  gpu.ImageUsageSampled | gpu.ImageUsageTransferDst,
		Memory: gpu.MemoryUsageGPUOnly,
	})
	if !image.IsValid() {
		batch.discard()
		return errors.Wrapf(ErrResourceCreation, "image for texture %s", id)
	}

	cb := r.commands.AcquireCommandBuffer()
	if !cb.IsValid() {
		batch.discard()
		r.device.DestroyImage(&image)
		return errors.Wrapf(ErrCommandBuffer, "uploading texture %s", id)
	}
	cb.TransitionImage(image, gpu.ImageStateUndefined, gpu.ImageStateCopyDest)
	cb.CopyBufferToImage(staging.Buffer.Handle, image)
	cb.TransitionImage(image, gpu.ImageStateCopyDest, gpu.ImageStateShaderRead)
	if !batch.release(cb) {
		r.device.DestroyImage(&image)
		return errors.Wrapf(ErrCommandBuffer, "uploading texture %s", id)
	}

	r.sceneManager.AddOrUpdateTexture(id, image)
	return nil
}

/**
 * @brief Rebuilds the emitter table: the sky first, then one emitter per distant light and
 * per emissive renderable, in emissive order.
 */
func (r *Renderer) updateEmitters() error {
	settings := r.scene.RenderSettings()
	emitters := []gpu.Emitter{{
		Radiance:      [3]float32{settings.SkyColor.X, settings.SkyColor.Y, settings.SkyColor.Z},
		Intensity:     settings.SkyIntensity,
		InstanceIndex: gpu.InvalidIndex,
		GeometryIndex: gpu.InvalidIndex,
		TextureIndex:  r.sceneManager.LookupTextureIndex(settings.SkyTexture),
	}}

	for _, e := range r.sceneManager.Emissives() {
		switch {
		case e.IsLight():
			direction := e.Light.Direction.TransformDirection(e.WorldTransform).Normalized()
			emitters = append(emitters, gpu.Emitter{
				Radiance:      [3]float32{e.Light.Color.X, e.Light.Color.Y, e.Light.Color.Z},
				Intensity:     e.Light.Intensity,
				Direction:     [3]float32{direction.X, direction.Y, direction.Z},
				InstanceIndex: gpu.InvalidIndex,
				GeometryIndex: gpu.InvalidIndex,
				TextureIndex:  gpu.InvalidIndex,
			})
		case e.IsRenderable():
			m := r.scene.Material(e.Material)
			if m == nil {
				continue
			}
			emitters = append(emitters, gpu.Emitter{
				Radiance:      [3]float32{m.Emission.X, m.Emission.Y, m.Emission.Z},
				Intensity:     m.EmissionIntensity,
				InstanceIndex: r.sceneManager.LookupRenderableIndex(e.ID),
				GeometryIndex: r.sceneManager.LookupGeometryIndex(e.Geometry),
				TextureIndex:  gpu.InvalidIndex,
			})
		}
	}

	buffer, err := r.uploadStorageBuffer(gpu.AsBytes(emitters), "emitter")
	if err != nil {
		return err
	}
	r.sceneManager.UpdateEmitters(emitters)
	r.sceneManager.UpdateEmitterBuffer(buffer)
	return nil
}

func (r *Renderer) updateRenderParameters() error {
	r.cameras.UpdateParameters()
	return nil
}
