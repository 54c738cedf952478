package gpu

import "unsafe"

// Descriptor sets and bindings shared with the shaders.
const (
	DSDisplay            = 0
	BindingDisplayBuffer = 0

	DSRender          = 0
	DSAttributeBuffer = 1
	DSIndexBuffer     = 2
	DSTexture         = 3

	BindingTLAS             = 0
	BindingInstances        = 1
	BindingMaterials        = 2
	BindingRenderBuffer     = 3
	BindingPrevRenderBuffer = 4
	BindingEmitters         = 5

	FrameParamFrameNumber = 0
	FrameParamRandomSeed  = 1

	RenderSettingPrimarySamples   = 0
	RenderSettingSecondarySamples = 1
	RenderSettingMaxDepth         = 2
	RenderSettingNumEmitters      = 3
)

// InvalidIndex marks an unset texture, instance or geometry slot on the GPU.
const InvalidIndex = ^uint32(0)

// Material is the std430 layout of one material record.
type Material struct {
	Albedo           [3]float32
	Roughness        float32
	Emission         [3]float32
	Metalness        float32
	AlbedoTexture    uint32
	RoughnessTexture uint32
	MetalnessTexture uint32
	NormalTexture    uint32
}

// NewMaterial returns a white, fully rough dielectric without textures.
func NewMaterial() Material {
	return Material{
		Albedo:           [3]float32{1, 1, 1},
		Roughness:        1,
		AlbedoTexture:    InvalidIndex,
		RoughnessTexture: InvalidIndex,
		MetalnessTexture: InvalidIndex,
		NormalTexture:    InvalidIndex,
	}
}

type Attributes struct {
	Position  [4]float32
	Normal    [4]float32
	Tangent   [4]float32
	Bitangent [4]float32
	Texcoord  [4]float32
}

type Face struct {
	Vertices [3]uint32
}

// EntityInstance carries the normal matrix as a std430 mat3, each column padded to vec4.
type EntityInstance struct {
	MaterialIndex uint32
	GeometryIndex uint32
	_             [2]uint32
	Basis         [12]float32
}

type Emitter struct {
	Radiance      [3]float32
	Intensity     float32
	Direction     [3]float32
	InstanceIndex uint32
	GeometryIndex uint32
	TextureIndex  uint32
	_             [2]uint32
}

// GeometryInstance is the top level acceleration structure instance record.
type GeometryInstance struct {
	Transform                   [12]float32
	// Custom index in the low 24 bits, visibility mask in the high 8 bits.
	InstanceCustomIndexAndMask  uint32
	// Hit group offset in the low 24 bits, instance flags in the high 8 bits.
	InstanceOffsetAndFlags      uint32
	AccelerationStructureHandle uint64
}

func NewGeometryInstance(transform [12]float32, customIndex uint32, mask uint8, blasHandle uint64) GeometryInstance {
	return GeometryInstance{
		Transform:                   transform,
		InstanceCustomIndexAndMask:  (customIndex & 0xffffff) | uint32(mask)<<24,
		InstanceOffsetAndFlags:      0,
		AccelerationStructureHandle: blasHandle,
	}
}

func (g GeometryInstance) CustomIndex() uint32 {
	return g.InstanceCustomIndexAndMask & 0xffffff
}

func (g GeometryInstance) Mask() uint8 {
	return uint8(g.InstanceCustomIndexAndMask >> 24)
}

type RenderParameters struct {
	CameraPositionAspect     [4]float32
	CameraUpVectorTanHalfFOV [4]float32
	CameraRightVectorLensR   [4]float32
	CameraForwardVectorLensF [4]float32
}

type DisplayParameters struct {
	InvGamma        float32
	Exposure        float32
	TonemapFactorSq float32
}

// RenderPushConstants is pushed to every ray tracing stage once per frame.
type RenderPushConstants struct {
	FrameParams    [2]uint32
	_              [2]uint32
	RenderSettings [4]uint32
	Parameters     RenderParameters
}

// AsBytes views a slice of plain structs as raw bytes without copying.
func AsBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*int(unsafe.Sizeof(zero)))
}

// ValueBytes views a single plain struct as raw bytes.
func ValueBytes[T any](value *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(value)), int(unsafe.Sizeof(*value)))
}

// SizeOf returns the byte size of one T.
func SizeOf[T any]() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}
