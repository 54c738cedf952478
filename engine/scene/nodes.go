package scene

import (
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/math"
)

/** @brief Triangle mesh with per vertex attributes. */
type Geometry struct {
	ID       core.NodeID
	Vertices []math.Vertex
	Faces    [][3]uint32
}

/** @brief RGBA8 image data. */
type Texture struct {
	ID     core.NodeID
	Width  uint32
	Height uint32
	SRGB   bool
	Pixels []byte
}

type Material struct {
	ID        core.NodeID
	Albedo    math.Vec3
	Roughness float32
	Metalness float32
	Emission  math.Vec3
	// Emission is multiplied by this factor.
	EmissionIntensity float32
	AlbedoTexture     core.NodeID
	RoughnessTexture  core.NodeID
	MetalnessTexture  core.NodeID
	NormalTexture     core.NodeID
}

// NewMaterial returns a white diffuse material.
func NewMaterial() *Material {
	return &Material{
		ID:                core.NewNodeID(),
		Albedo:            math.NewVec3One(),
		Roughness:         1,
		EmissionIntensity: 1,
	}
}

func (m *Material) Radiance() math.Vec3 {
	return m.Emission.MulScalar(m.EmissionIntensity)
}

func (m *Material) IsEmissive() bool {
	r := m.Radiance()
	return r.X > 0 || r.Y > 0 || r.Z > 0
}

type CameraLens struct {
	FieldOfView   float32
	AspectRatio   float32
	Diameter      float32
	FocalDistance float32
	Gamma         float32
	Exposure      float32
	TonemapFactor float32
}

func NewCameraLens() *CameraLens {
	return &CameraLens{
		FieldOfView:   90,
		AspectRatio:   1,
		FocalDistance: 1,
		Gamma:         2.2,
		Exposure:      1,
		TonemapFactor: 1,
	}
}

type DistantLight struct {
	Direction math.Vec3
	Color     math.Vec3
	Intensity float32
}

func NewDistantLight(direction math.Vec3) *DistantLight {
	return &DistantLight{
		Direction: direction.Normalized(),
		Color:     math.NewVec3One(),
		Intensity: 1,
	}
}

func (l *DistantLight) Radiance() math.Vec3 {
	return l.Color.MulScalar(l.Intensity)
}

type RenderSettings struct {
	PrimarySamples   uint32
	SecondarySamples uint32
	MaxDepth         uint32
	SkyColor         math.Vec3
	SkyIntensity     float32
	SkyTexture       core.NodeID
}

func NewRenderSettings() RenderSettings {
	return RenderSettings{
		PrimarySamples:   1,
		SecondarySamples: 1,
		MaxDepth:         4,
		SkyColor:         math.NewVec3One(),
		SkyIntensity:     1,
	}
}

/**
 * @brief A scene graph node. Components are referenced by identity, lens and light are
 * owned by the entity.
 */
type Entity struct {
	ID        core.NodeID
	Name      string
	Enabled   bool
	Parent    core.NodeID
	Transform math.Transform
	// Computed by Scene.UpdateWorldTransforms.
	WorldTransform math.Mat4
	Geometry       core.NodeID
	Material       core.NodeID
	Lens           *CameraLens
	Light          *DistantLight
}

func NewEntity(name string) *Entity {
	return &Entity{
		ID:             core.NewNodeID(),
		Name:           name,
		Enabled:        true,
		Transform:      math.NewTransform(),
		WorldTransform: math.NewMat4Identity(),
	}
}

func (e *Entity) IsRenderable() bool {
	return e.Enabled && !e.Geometry.IsNull() && !e.Material.IsNull()
}

func (e *Entity) IsCamera() bool {
	return e.Enabled && e.Lens != nil
}

func (e *Entity) IsLight() bool {
	return e.Enabled && e.Light != nil
}
