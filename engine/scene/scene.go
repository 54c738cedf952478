package scene

import (
	"bytes"
	"maps"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/math"
)

var (
	ErrNodeExists   = errors.New("node already exists")
	ErrNodeNotFound = errors.New("node not found")
	ErrNullNode     = errors.New("null node identity")
)

/**
 * @brief The scene graph consumed by the renderer. Every mutation raises the matching
 * dirty flag; TakeDirty hands the accumulated set to the renderer once per frame.
 * Mutations must not overlap with a frame's job execution; reads are safe from any goroutine.
 */
type Scene struct {
	mu           sync.RWMutex
	entities     map[core.NodeID]*Entity
	order        []core.NodeID
	geometry     map[core.NodeID]*Geometry
	materials    map[core.NodeID]*Material
	textures     map[core.NodeID]*Texture
	settings     RenderSettings
	activeCamera core.NodeID
	dirty        dirtyTracker
}

func NewScene() *Scene {
	return &Scene{
		entities:  make(map[core.NodeID]*Entity),
		geometry:  make(map[core.NodeID]*Geometry),
		materials: make(map[core.NodeID]*Material),
		textures:  make(map[core.NodeID]*Texture),
		settings:  NewRenderSettings(),
		dirty:     dirtyTracker{flags: DirtyRenderSettings | DirtyCamera},
	}
}

// TakeDirty returns the changes since the previous call and clears them.
func (s *Scene) TakeDirty() DirtySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty.take()
}

// MarkAllDirty raises every flag and lists every geometry, material and texture node.
func (s *Scene) MarkAllDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty.flags = DirtyAll
	for _, id := range sortedIDs(s.geometry) {
		s.dirty.geometry.add(id)
	}
	for _, id := range sortedIDs(s.materials) {
		s.dirty.materials.add(id)
	}
	for _, id := range sortedIDs(s.textures) {
		s.dirty.textures.add(id)
	}
}

func sortedIDs[T any](nodes map[core.NodeID]T) []core.NodeID {
	ids := slices.Collect(maps.Keys(nodes))
	slices.SortFunc(ids, func(a, b core.NodeID) int {
		return bytes.Compare(a[:], b[:])
	})
	return ids
}

func (s *Scene) markDirty(flags DirtyFlags) {
	s.dirty.flags |= flags
}

func entityFlags(e *Entity) DirtyFlags {
	return DirtyEntity | transformFlags(e)
}

func (s *Scene) AddEntity(e *Entity) error {
	if e == nil || e.ID.IsNull() {
		return ErrNullNode
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[e.ID]; ok {
		return errors.Wrapf(ErrNodeExists, "entity %s", e.ID)
	}
	s.entities[e.ID] = e
	s.order = append(s.order, e.ID)
	s.updateWorldTransform(e)
	s.markDirty(entityFlags(e) | DirtyTransform)
	return nil
}

// RemoveEntity detaches the entity. Removing the active camera leaves the scene without one.
func (s *Scene) RemoveEntity(id core.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "entity %s", id)
	}
	delete(s.entities, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	flags := entityFlags(e)
	if s.activeCamera == id {
		s.activeCamera = core.NullNodeID
		flags |= DirtyCamera
	}
	s.markDirty(flags)
	return nil
}

func (s *Scene) Entity(id core.NodeID) *Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities[id]
}

// Entities returns the entities in insertion order.
func (s *Scene) Entities() []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entities[id])
	}
	return out
}

func (s *Scene) SetEnabled(id core.NodeID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "entity %s", id)
	}
	e.Enabled = enabled
	s.markDirty(entityFlags(e))
	return nil
}

func (s *Scene) SetTransform(id core.NodeID, t math.Transform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "entity %s", id)
	}
	e.Transform = t
	// Cameras and lights below the entity move with it.
	flags := DirtyTransform | transformFlags(e)
	for _, other := range s.entities {
		if other != e && s.hasAncestor(other, id) {
			flags |= transformFlags(other)
		}
	}
	s.markDirty(flags)
	return nil
}

func transformFlags(e *Entity) DirtyFlags {
	var flags DirtyFlags
	if e.Lens != nil {
		flags |= DirtyCamera
	}
	if e.Light != nil {
		flags |= DirtyLights
	}
	return flags
}

func (s *Scene) hasAncestor(e *Entity, ancestor core.NodeID) bool {
	parent := e.Parent
	for depth := 0; !parent.IsNull() && depth < len(s.order); depth++ {
		if parent == ancestor {
			return true
		}
		p, ok := s.entities[parent]
		if !ok {
			return false
		}
		parent = p.Parent
	}
	return false
}

// UpdateWorldTransforms propagates local transforms down the hierarchy.
func (s *Scene) UpdateWorldTransforms() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		s.updateWorldTransform(s.entities[id])
	}
}

func (s *Scene) updateWorldTransform(e *Entity) {
	world := e.Transform.Matrix()
	// Walk up the chain; depth is bounded by the entity count to stop on cycles.
	parent := e.Parent
	for depth := 0; !parent.IsNull() && depth < len(s.order); depth++ {
		p, ok := s.entities[parent]
		if !ok {
			break
		}
		world = world.Mul(p.Transform.Matrix())
		parent = p.Parent
	}
	e.WorldTransform = world
}

func (s *Scene) SetActiveCamera(id core.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !id.IsNull() {
		if _, ok := s.entities[id]; !ok {
			return errors.Wrapf(ErrNodeNotFound, "camera %s", id)
		}
	}
	s.activeCamera = id
	s.markDirty(DirtyCamera)
	return nil
}

// ActiveCamera returns nil when no camera is active.
func (s *Scene) ActiveCamera() *Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities[s.activeCamera]
}

func (s *Scene) SetCameraLens(id core.NodeID, lens *CameraLens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "entity %s", id)
	}
	e.Lens = lens
	s.markDirty(DirtyCamera)
	return nil
}

func (s *Scene) SetDistantLight(id core.NodeID, light *DistantLight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "entity %s", id)
	}
	e.Light = light
	s.markDirty(DirtyLights | DirtyEntity)
	return nil
}

// SetGeometry adds or replaces a geometry node.
func (s *Scene) SetGeometry(g *Geometry) error {
	if g == nil || g.ID.IsNull() {
		return ErrNullNode
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geometry[g.ID] = g
	s.dirty.geometry.add(g.ID)
	s.markDirty(DirtyGeometry)
	return nil
}

func (s *Scene) Geometry(id core.NodeID) *Geometry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.geometry[id]
}

// SetMaterial adds or replaces a material node.
func (s *Scene) SetMaterial(m *Material) error {
	if m == nil || m.ID.IsNull() {
		return ErrNullNode
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[m.ID] = m
	s.dirty.materials.add(m.ID)
	s.markDirty(DirtyMaterial)
	return nil
}

// UpdateMaterial applies fn to the stored material and marks it dirty.
func (s *Scene) UpdateMaterial(id core.NodeID, fn func(m *Material)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.materials[id]
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "material %s", id)
	}
	fn(m)
	s.dirty.materials.add(id)
	s.markDirty(DirtyMaterial)
	return nil
}

func (s *Scene) Material(id core.NodeID) *Material {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.materials[id]
}

// SetTexture adds or replaces a texture node. Pixels must hold Width*Height RGBA8 texels.
func (s *Scene) SetTexture(t *Texture) error {
	if t == nil || t.ID.IsNull() {
		return ErrNullNode
	}
	if uint64(len(t.Pixels)) != uint64(t.Width)*uint64(t.Height)*4 {
		return errors.Newf("texture %s: %d bytes for %dx%d RGBA8 texels", t.ID, len(t.Pixels), t.Width, t.Height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textures[t.ID] = t
	s.dirty.textures.add(t.ID)
	s.markDirty(DirtyTexture)
	return nil
}

func (s *Scene) Texture(id core.NodeID) *Texture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.textures[id]
}

func (s *Scene) SetRenderSettings(settings RenderSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.markDirty(DirtyRenderSettings)
}

func (s *Scene) RenderSettings() RenderSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// IsEmissive reports whether the entity contributes an emitter: a distant light or an emissive renderable.
func (s *Scene) IsEmissive(e *Entity) bool {
	if e.IsLight() {
		return true
	}
	if !e.IsRenderable() {
		return false
	}
	m := s.Material(e.Material)
	return m != nil && m.IsEmissive()
}
