package gpu

type Format int

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8SRGB
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8SRGB
	FormatR16G16B16A16SFloat
	FormatR32SFloat
	FormatR32G32B32SFloat
	FormatR32G32B32A32SFloat
	FormatD16Unorm
	FormatD32SFloat
	FormatS8Uint
	FormatD24UnormS8Uint
	FormatD32SFloatS8Uint
)

// Aspect derives the image aspect implied by the format.
func (f Format) Aspect() ImageAspect {
	switch f {
	case FormatD16Unorm, FormatD32SFloat:
		return ImageAspectDepth
	case FormatS8Uint:
		return ImageAspectStencil
	case FormatD24UnormS8Uint, FormatD32SFloatS8Uint:
		return ImageAspectDepth | ImageAspectStencil
	default:
		return ImageAspectColor
	}
}

func (f Format) IsDepthStencil() bool {
	return f.Aspect() != ImageAspectColor
}

// Channels is the number of components per texel.
func (f Format) Channels() int {
	switch f {
	case FormatR8Unorm, FormatR32SFloat, FormatD16Unorm, FormatD32SFloat, FormatS8Uint:
		return 1
	case FormatD24UnormS8Uint, FormatD32SFloatS8Uint:
		return 2
	case FormatR32G32B32SFloat:
		return 3
	case FormatUndefined:
		return 0
	default:
		return 4
	}
}

// BytesPerPixel returns the texel size for uncompressed formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR8Unorm, FormatS8Uint:
		return 1
	case FormatD16Unorm:
		return 2
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8SRGB, FormatB8G8R8A8Unorm, FormatB8G8R8A8SRGB,
		FormatR32SFloat, FormatD32SFloat, FormatD24UnormS8Uint:
		return 4
	case FormatD32SFloatS8Uint, FormatR16G16B16A16SFloat:
		return 8
	case FormatR32G32B32SFloat:
		return 12
	case FormatR32G32B32A32SFloat:
		return 16
	default:
		return 0
	}
}

func (f Format) String() string {
	switch f {
	case FormatR8Unorm:
		return "R8_UNORM"
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatR8G8B8A8SRGB:
		return "R8G8B8A8_SRGB"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatB8G8R8A8SRGB:
		return "B8G8R8A8_SRGB"
	case FormatR16G16B16A16SFloat:
		return "R16G16B16A16_SFLOAT"
	case FormatR32SFloat:
		return "R32_SFLOAT"
	case FormatR32G32B32SFloat:
		return "R32G32B32_SFLOAT"
	case FormatR32G32B32A32SFloat:
		return "R32G32B32A32_SFLOAT"
	case FormatD16Unorm:
		return "D16_UNORM"
	case FormatD32SFloat:
		return "D32_SFLOAT"
	case FormatS8Uint:
		return "S8_UINT"
	case FormatD24UnormS8Uint:
		return "D24_UNORM_S8_UINT"
	case FormatD32SFloatS8Uint:
		return "D32_SFLOAT_S8_UINT"
	default:
		return "UNDEFINED"
	}
}

type ImageAspect uint32

const (
	ImageAspectColor ImageAspect = 1 << iota
	ImageAspectDepth
	ImageAspectStencil
)

type ImageType int

const (
	ImageType1D ImageType = iota
	ImageType2D
	ImageType3D
)

type ImageViewType int

const (
	ImageViewType1D ImageViewType = iota
	ImageViewType2D
	ImageViewType3D
	ImageViewTypeCube
	ImageViewType1DArray
	ImageViewType2DArray
	ImageViewTypeCubeArray
)

type ImageCreateFlags uint32

const (
	ImageCreateCubeCompatible ImageCreateFlags = 1 << iota
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
	BufferUsageRayTracing
)

// MemoryUsage selects the heap a resource is placed in.
type MemoryUsage int

const (
	MemoryUsageGPUOnly MemoryUsage = iota
	MemoryUsageCPUOnly
	MemoryUsageCPUToGPU
	MemoryUsageGPUToCPU
)

// IsHostVisible reports whether memory of this usage can be mapped.
func (m MemoryUsage) IsHostVisible() bool {
	return m != MemoryUsageGPUOnly
}

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageTessellationControl
	ShaderStageTessellationEvaluation
	ShaderStageGeometry
	ShaderStageFragment
	ShaderStageCompute
	ShaderStageRaygen
	ShaderStageAnyHit
	ShaderStageClosestHit
	ShaderStageMiss
	ShaderStageIntersection
	ShaderStageCallable

	ShaderStageAllGraphics = ShaderStageVertex | ShaderStageTessellationControl | ShaderStageTessellationEvaluation |
		ShaderStageGeometry | ShaderStageFragment
	ShaderStageAllRayTracing = ShaderStageRaygen | ShaderStageAnyHit | ShaderStageClosestHit | ShaderStageMiss |
		ShaderStageIntersection | ShaderStageCallable
	ShaderStageAll = ShaderStageAllGraphics | ShaderStageCompute | ShaderStageAllRayTracing
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vertex"
	case ShaderStageTessellationControl:
		return "tesscontrol"
	case ShaderStageTessellationEvaluation:
		return "tesseval"
	case ShaderStageGeometry:
		return "geometry"
	case ShaderStageFragment:
		return "fragment"
	case ShaderStageCompute:
		return "compute"
	case ShaderStageRaygen:
		return "raygen"
	case ShaderStageAnyHit:
		return "anyhit"
	case ShaderStageClosestHit:
		return "closesthit"
	case ShaderStageMiss:
		return "miss"
	case ShaderStageIntersection:
		return "intersection"
	case ShaderStageCallable:
		return "callable"
	default:
		return "unknown"
	}
}

// ParseShaderStage accepts the names produced by ShaderStage.String.
func ParseShaderStage(name string) (ShaderStage, bool) {
	for s := ShaderStageVertex; s <= ShaderStageCallable; s <<= 1 {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}

type DescriptorType int

const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeCombinedImageSampler
	DescriptorTypeSampledImage
	DescriptorTypeStorageImage
	DescriptorTypeUniformTexelBuffer
	DescriptorTypeStorageTexelBuffer
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
	DescriptorTypeUniformBufferDynamic
	DescriptorTypeStorageBufferDynamic
	DescriptorTypeInputAttachment
	DescriptorTypeAccelerationStructure
)

var descriptorTypeNames = map[DescriptorType]string{
	DescriptorTypeSampler:               "sampler",
	DescriptorTypeCombinedImageSampler:  "combined_image_sampler",
	DescriptorTypeSampledImage:          "sampled_image",
	DescriptorTypeStorageImage:          "storage_image",
	DescriptorTypeUniformTexelBuffer:    "uniform_texel_buffer",
	DescriptorTypeStorageTexelBuffer:    "storage_texel_buffer",
	DescriptorTypeUniformBuffer:         "uniform_buffer",
	DescriptorTypeStorageBuffer:         "storage_buffer",
	DescriptorTypeUniformBufferDynamic:  "uniform_buffer_dynamic",
	DescriptorTypeStorageBufferDynamic:  "storage_buffer_dynamic",
	DescriptorTypeInputAttachment:       "input_attachment",
	DescriptorTypeAccelerationStructure: "acceleration_structure",
}

func (t DescriptorType) String() string {
	if name, ok := descriptorTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

func ParseDescriptorType(name string) (DescriptorType, bool) {
	for t, n := range descriptorTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// UsesSampler reports whether immutable samplers apply to the type.
func (t DescriptorType) UsesSampler() bool {
	return t == DescriptorTypeSampler || t == DescriptorTypeCombinedImageSampler
}

type DescriptorBindingFlags uint32

const (
	DescriptorBindingUpdateAfterBind DescriptorBindingFlags = 1 << iota
	DescriptorBindingUpdateUnusedWhilePending
	DescriptorBindingPartiallyBound
	DescriptorBindingVariableDescriptorCount
)

type DescriptorPoolCreateFlags uint32

const (
	DescriptorPoolCreateFreeDescriptorSet DescriptorPoolCreateFlags = 1 << iota
	DescriptorPoolCreateUpdateAfterBind
)

type DescriptorSetLayoutCreateFlags uint32

const (
	DescriptorSetLayoutCreateUpdateAfterBindPool DescriptorSetLayoutCreateFlags = 1 << iota
)

type PipelineStage uint32

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageVertexInput
	PipelineStageVertexShader
	PipelineStageFragmentShader
	PipelineStageEarlyFragmentTests
	PipelineStageLateFragmentTests
	PipelineStageColorAttachmentOutput
	PipelineStageComputeShader
	PipelineStageTransfer
	PipelineStageBottomOfPipe
	PipelineStageRayTracingShader
	PipelineStageAccelerationStructureBuild
	PipelineStageHost

	PipelineStageAllShaders = PipelineStageVertexShader | PipelineStageFragmentShader |
		PipelineStageComputeShader | PipelineStageRayTracingShader
)

type Access uint32

const (
	AccessIndexRead Access = 1 << iota
	AccessVertexAttributeRead
	AccessUniformRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
	AccessMemoryRead
	AccessMemoryWrite
	AccessAccelerationStructureRead
	AccessAccelerationStructureWrite
)

type ImageLayout int

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachmentOptimal
	ImageLayoutDepthStencilAttachmentOptimal
	ImageLayoutDepthStencilReadOnlyOptimal
	ImageLayoutShaderReadOnlyOptimal
	ImageLayoutTransferSrcOptimal
	ImageLayoutTransferDstOptimal
	ImageLayoutPresentSrc
)

type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

type SamplerAddressMode int

const (
	SamplerAddressRepeat SamplerAddressMode = iota
	SamplerAddressMirroredRepeat
	SamplerAddressClampToEdge
	SamplerAddressClampToBorder
)

type QueryType int

const (
	QueryTypeOcclusion QueryType = iota
	QueryTypePipelineStatistics
	QueryTypeTimestamp
)

type IndexType int

const (
	IndexTypeUint16 IndexType = iota
	IndexTypeUint32
)

type AccelerationStructureType int

const (
	AccelerationStructureTopLevel AccelerationStructureType = iota
	AccelerationStructureBottomLevel
)

type BuildAccelerationStructureFlags uint32

const (
	BuildAccelerationStructureAllowUpdate BuildAccelerationStructureFlags = 1 << iota
	BuildAccelerationStructureAllowCompaction
	BuildAccelerationStructurePreferFastTrace
	BuildAccelerationStructurePreferFastBuild
	BuildAccelerationStructureLowMemory
)

type GeometryFlags uint32

const (
	GeometryOpaque GeometryFlags = 1 << iota
	GeometryNoDuplicateAnyHitInvocation
)

// ScratchBufferType selects which memory requirement a scratch buffer is sized for.
type ScratchBufferType int

const (
	ScratchBufferBuild ScratchBufferType = iota
	ScratchBufferUpdate
)

type ShaderGroupType int

const (
	ShaderGroupGeneral ShaderGroupType = iota
	ShaderGroupTrianglesHitGroup
	ShaderGroupProceduralHitGroup
)

// ShaderUnused marks an empty shader slot in a ray tracing group.
const ShaderUnused = ^uint32(0)

type PipelineBindPoint int

const (
	PipelineBindPointGraphics PipelineBindPoint = iota
	PipelineBindPointCompute
	PipelineBindPointRayTracing
)

type CommandBufferUsage uint32

const (
	CommandBufferUsageOneTimeSubmit CommandBufferUsage = 1 << iota
	CommandBufferUsageRenderPassContinue
	CommandBufferUsageSimultaneousUse
)

type CommandPoolCreateFlags uint32

const (
	CommandPoolCreateTransient CommandPoolCreateFlags = 1 << iota
	CommandPoolCreateResetCommandBuffer
)

type PrimitiveTopology int

const (
	PrimitiveTopologyPointList PrimitiveTopology = iota
	PrimitiveTopologyLineList
	PrimitiveTopologyLineStrip
	PrimitiveTopologyTriangleList
	PrimitiveTopologyTriangleStrip
	PrimitiveTopologyTriangleFan
)

type PolygonMode int

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
	PolygonModePoint
)

type CullMode uint32

const (
	CullModeNone  CullMode = 0
	CullModeFront CullMode = 1
	CullModeBack  CullMode = 2
)

type FrontFace int

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type CompareOp int

const (
	CompareOpNever CompareOp = iota
	CompareOpLess
	CompareOpEqual
	CompareOpLessOrEqual
	CompareOpGreater
	CompareOpNotEqual
	CompareOpGreaterOrEqual
	CompareOpAlways
)
